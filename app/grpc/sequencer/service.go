package sequencer

import (
	"context"

	"google.golang.org/grpc"

	"github.com/astriaorg/astria-sequencer/app/grpc/codec"
)

// unaryMethod builds the descriptor of a unary method whose request type is
// *Req.
func unaryMethod[Req any, PReq interface {
	*Req
	codec.Unmarshaler
}, Resp any](name string, call func(SequencerServiceServer, context.Context, PReq) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SequencerServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(SequencerServiceServer), ctx, req.(PReq))
			})
		},
	}
}

// ServiceDesc describes SequencerService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SequencerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetSequencerBlock", SequencerServiceServer.GetSequencerBlock),
		unaryMethod("GetSequencerBlockByHash", SequencerServiceServer.GetSequencerBlockByHash),
		unaryMethod("GetFilteredSequencerBlock", SequencerServiceServer.GetFilteredSequencerBlock),
		unaryMethod("GetPendingNonce", SequencerServiceServer.GetPendingNonce),
		unaryMethod("GetAllowedFeeAssets", SequencerServiceServer.GetAllowedFeeAssets),
		unaryMethod("GetValidatorSet", SequencerServiceServer.GetValidatorSet),
		unaryMethod("GetUpgradesInfo", SequencerServiceServer.GetUpgradesInfo),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "StreamSequencerBlocks",
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(StreamSequencerBlocksRequest)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return srv.(SequencerServiceServer).StreamSequencerBlocks(in, stream)
		},
	}},
}

// Client calls SequencerService.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client { return &Client{conn: conn} }

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, fullMethod(method), in, out, grpc.ForceCodec(codec.Codec{}))
}

func (c *Client) GetSequencerBlock(ctx context.Context, height uint64) ([]byte, error) {
	var out codec.Raw
	err := c.invoke(ctx, "GetSequencerBlock", &GetSequencerBlockRequest{Height: height}, &out)
	return out, err
}

func (c *Client) GetFilteredSequencerBlock(ctx context.Context, height uint64, rollupIDs [][]byte) ([]byte, error) {
	var out codec.Raw
	err := c.invoke(ctx, "GetFilteredSequencerBlock", &GetFilteredSequencerBlockRequest{Height: height, RollupIDs: rollupIDs}, &out)
	return out, err
}

func (c *Client) GetPendingNonce(ctx context.Context, addr string) (uint32, error) {
	out := &GetPendingNonceResponse{}
	err := c.invoke(ctx, "GetPendingNonce", &GetPendingNonceRequest{Address: Address{Bech32m: addr}}, out)
	return out.Inner, err
}

func (c *Client) GetAllowedFeeAssets(ctx context.Context) (*GetAllowedFeeAssetsResponse, error) {
	out := &GetAllowedFeeAssetsResponse{}
	return out, c.invoke(ctx, "GetAllowedFeeAssets", codec.Empty{}, out)
}

func (c *Client) GetValidatorSet(ctx context.Context) (*GetValidatorSetResponse, error) {
	out := &GetValidatorSetResponse{}
	return out, c.invoke(ctx, "GetValidatorSet", codec.Empty{}, out)
}

func (c *Client) GetUpgradesInfo(ctx context.Context) (*GetUpgradesInfoResponse, error) {
	out := &GetUpgradesInfoResponse{}
	return out, c.invoke(ctx, "GetUpgradesInfo", codec.Empty{}, out)
}

// StreamSequencerBlocks calls fn with every streamed block until fn returns
// false or the stream fails.
func (c *Client) StreamSequencerBlocks(ctx context.Context, start uint64, fn func([]byte) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("StreamSequencerBlocks"), grpc.ForceCodec(codec.Codec{}))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&StreamSequencerBlocksRequest{StartHeight: start}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		var out codec.Raw
		if err := stream.RecvMsg(&out); err != nil {
			return err
		}
		if !fn(out) {
			return nil
		}
	}
}
