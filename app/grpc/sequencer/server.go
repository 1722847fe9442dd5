// Package sequencer serves the read API over committed sequencer state:
// sequencer blocks by height or hash, blocks filtered down to some rollups,
// pending nonces and chain parameters.
package sequencer

import (
	"context"
	"errors"
	"fmt"

	"cosmossdk.io/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/astriaorg/astria-sequencer/app/grpc/codec"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/mempool"
	"github.com/astriaorg/astria-sequencer/pkg/rollup"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/upgrades"
	"github.com/astriaorg/astria-sequencer/x/accounts"
	xaddress "github.com/astriaorg/astria-sequencer/x/address"
	"github.com/astriaorg/astria-sequencer/x/assets"
	"github.com/astriaorg/astria-sequencer/x/authority"
	"github.com/astriaorg/astria-sequencer/x/grpcstore"
	"github.com/astriaorg/astria-sequencer/x/meta"
	xupgrades "github.com/astriaorg/astria-sequencer/x/upgrades"
)

const ServiceName = "astria.sequencerblock.v1.SequencerService"

// Node is the part of the app the read API needs.
type Node interface {
	Storage() *storage.Storage
	Mempool() *mempool.Mempool
	Upgrades() *upgrades.Upgrades
	SubscribeCommits(buffer int) (<-chan uint64, func())
}

// SequencerServiceServer is the read API.
type SequencerServiceServer interface {
	GetSequencerBlock(context.Context, *GetSequencerBlockRequest) (codec.Raw, error)
	GetSequencerBlockByHash(context.Context, *GetSequencerBlockByHashRequest) (codec.Raw, error)
	GetFilteredSequencerBlock(context.Context, *GetFilteredSequencerBlockRequest) (codec.Raw, error)
	GetPendingNonce(context.Context, *GetPendingNonceRequest) (*GetPendingNonceResponse, error)
	GetAllowedFeeAssets(context.Context, *codec.Empty) (*GetAllowedFeeAssetsResponse, error)
	GetValidatorSet(context.Context, *codec.Empty) (*GetValidatorSetResponse, error)
	GetUpgradesInfo(context.Context, *codec.Empty) (*GetUpgradesInfoResponse, error)
	StreamSequencerBlocks(*StreamSequencerBlocksRequest, grpc.ServerStream) error
}

var _ SequencerServiceServer = (*Server)(nil)

type Server struct {
	node   Node
	logger log.Logger
}

func NewServer(node Node, logger log.Logger) *Server {
	return &Server{node: node, logger: logger.With(log.ModuleKey, "grpc")}
}

// NewGRPCServer returns a gRPC server serving the read API and the standard
// health service.
func NewGRPCServer(node Node, logger log.Logger) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ForceServerCodec(codec.Codec{}),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	srv.RegisterService(&ServiceDesc, NewServer(node, logger))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// blockError maps storage errors to gRPC statuses.
func blockError(err error) error {
	if errors.Is(err, grpcstore.ErrBlockNotFound) {
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func (s *Server) GetSequencerBlock(_ context.Context, req *GetSequencerBlockRequest) (codec.Raw, error) {
	b, err := grpcstore.SequencerBlockByHeight(s.node.Storage().LatestSnapshot(), req.Height)
	if err != nil {
		return nil, blockError(err)
	}
	return b.Encode(), nil
}

func (s *Server) GetSequencerBlockByHash(_ context.Context, req *GetSequencerBlockByHashRequest) (codec.Raw, error) {
	var hash [32]byte
	if len(req.Hash) != len(hash) {
		return nil, status.Errorf(codes.InvalidArgument, "block hash must be 32 bytes, got %d", len(req.Hash))
	}
	copy(hash[:], req.Hash)
	b, err := grpcstore.SequencerBlockByHash(s.node.Storage().LatestSnapshot(), hash)
	if err != nil {
		return nil, blockError(err)
	}
	return b.Encode(), nil
}

func (s *Server) GetFilteredSequencerBlock(_ context.Context, req *GetFilteredSequencerBlockRequest) (codec.Raw, error) {
	ids := make([]rollup.ID, 0, len(req.RollupIDs))
	for _, raw := range req.RollupIDs {
		id, err := rollup.IDFromSlice(raw)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "rollup id: %s", err)
		}
		ids = append(ids, id)
	}
	b, err := grpcstore.SequencerBlockByHeight(s.node.Storage().LatestSnapshot(), req.Height)
	if err != nil {
		return nil, blockError(err)
	}
	return b.Filter(ids).Encode(), nil
}

// GetPendingNonce returns the nonce the account's next transaction should
// carry, counting the transactions waiting in the mempool.
func (s *Server) GetPendingNonce(_ context.Context, req *GetPendingNonceRequest) (*GetPendingNonceResponse, error) {
	snap := s.node.Storage().LatestSnapshot()
	addr, err := address.Parse(req.Address.Bech32m)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "address: %s", err)
	}
	if err := xaddress.EnsureBaseOrCompat(snap, addr); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if nonce, ok := s.node.Mempool().PendingNonce(addr.Bytes()); ok {
		return &GetPendingNonceResponse{Inner: nonce}, nil
	}
	nonce, err := accounts.Nonce(snap, addr.Bytes())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &GetPendingNonceResponse{Inner: nonce}, nil
}

func (s *Server) GetAllowedFeeAssets(context.Context, *codec.Empty) (*GetAllowedFeeAssetsResponse, error) {
	snap := s.node.Storage().LatestSnapshot()
	height, err := meta.BlockHeight(snap)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	ids, err := assets.FeeAssets(snap)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	resp := &GetAllowedFeeAssetsResponse{Height: height}
	for _, id := range ids {
		trace, found, err := assets.Denom(snap, id)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		if found {
			resp.FeeAssets = append(resp.FeeAssets, trace.String())
		} else {
			resp.FeeAssets = append(resp.FeeAssets, id.String())
		}
	}
	return resp, nil
}

func (s *Server) GetValidatorSet(context.Context, *codec.Empty) (*GetValidatorSetResponse, error) {
	snap := s.node.Storage().LatestSnapshot()
	height, err := meta.BlockHeight(snap)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	vals, err := authority.ValidatorSet(snap)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	resp := &GetValidatorSetResponse{Height: height}
	for _, v := range vals {
		resp.Validators = append(resp.Validators, Validator{PubKey: v.PubKey[:], Power: v.Power, Name: v.Name})
	}
	return resp, nil
}

// GetUpgradesInfo lists the changes applied by the chain and those this
// node has scheduled for later heights.
func (s *Server) GetUpgradesInfo(context.Context, *codec.Empty) (*GetUpgradesInfoResponse, error) {
	snap := s.node.Storage().LatestSnapshot()
	height, err := meta.BlockHeight(snap)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	applied, err := xupgrades.Applied(snap)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	resp := &GetUpgradesInfoResponse{}
	for _, a := range applied {
		resp.Applied = append(resp.Applied, ChangeInfo{
			ActivationHeight: a.Info.ActivationHeight,
			ChangeName:       a.Change,
			AppVersion:       a.Info.AppVersion,
			Hash:             a.Info.Hash[:],
		})
	}
	for _, u := range s.node.Upgrades().All() {
		if u.ActivationHeight() <= height {
			continue
		}
		for _, c := range u.Changes() {
			info, err := upgrades.Info(c)
			if err != nil {
				return nil, status.Error(codes.Internal, err.Error())
			}
			resp.Scheduled = append(resp.Scheduled, ChangeInfo{
				ActivationHeight: info.ActivationHeight,
				ChangeName:       c.Name(),
				AppVersion:       info.AppVersion,
				Hash:             info.Hash[:],
			})
		}
	}
	return resp, nil
}

// StreamSequencerBlocks sends every block from the start height on, in
// height order, and keeps sending new blocks as they are committed.
func (s *Server) StreamSequencerBlocks(req *StreamSequencerBlocksRequest, stream grpc.ServerStream) error {
	commits, cancel := s.node.SubscribeCommits(16)
	defer cancel()

	next := max(req.StartHeight, 1)
	sendUpTo := func() error {
		snap := s.node.Storage().LatestSnapshot()
		latest, err := meta.BlockHeight(snap)
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		for ; next <= latest; next++ {
			b, err := grpcstore.SequencerBlockByHeight(snap, next)
			if err != nil {
				return blockError(err)
			}
			if err := stream.SendMsg(codec.Raw(b.Encode())); err != nil {
				return err
			}
		}
		return nil
	}
	if err := sendUpTo(); err != nil {
		return err
	}
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case _, ok := <-commits:
			if !ok {
				return status.Error(codes.Unavailable, "node is shutting down")
			}
			if err := sendUpTo(); err != nil {
				s.logger.Debug("block stream ended", "next_height", next, "err", err)
				return err
			}
		}
	}
}

func fullMethod(name string) string { return fmt.Sprintf("/%s/%s", ServiceName, name) }
