package app

import (
	"context"
	"errors"
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/x/meta"
	xpricefeed "github.com/astriaorg/astria-sequencer/x/pricefeed"
)

var (
	errCommitInfoMismatch = errors.New("extended commit info does not match the last commit")
	errNotEnoughPower     = errors.New("extended commit info holds no more than two thirds of the voting power")
)

// ExtendVote attaches the prices observed by the local oracle. Failing to
// reach the oracle must not stop the node from voting, so every failure
// results in an empty extension.
func (app *App) ExtendVote(ctx context.Context, req *abci.RequestExtendVote) (*abci.ResponseExtendVote, error) {
	ctx, span := app.tracer.Start(ctx, "ExtendVote")
	defer span.End()

	if app.oracle == nil {
		return &abci.ResponseExtendVote{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, app.cfg.OracleTimeout)
	defer cancel()
	observed, err := app.oracle.Prices(ctx)
	if err != nil {
		app.logger.Warn("failed to query oracle prices; extending vote with no prices", "height", req.Height, "err", err)
		return &abci.ResponseExtendVote{}, nil
	}
	ext, err := xpricefeed.BuildVoteExtension(app.store.LatestSnapshot(), observed)
	if err != nil {
		app.logger.Error("failed to build vote extension", "height", req.Height, "err", err)
		return &abci.ResponseExtendVote{}, nil
	}
	app.logger.Debug("extending vote", "height", req.Height, "prices", len(ext))
	return &abci.ResponseExtendVote{VoteExtension: ext.Encode()}, nil
}

// VerifyVoteExtension accepts empty extensions and extensions that decode
// and carry at most one price per known currency pair.
func (app *App) VerifyVoteExtension(_ context.Context, req *abci.RequestVerifyVoteExtension) (*abci.ResponseVerifyVoteExtension, error) {
	if len(req.VoteExtension) == 0 {
		return &abci.ResponseVerifyVoteExtension{Status: abci.ResponseVerifyVoteExtension_ACCEPT}, nil
	}
	if err := xpricefeed.ValidateVoteExtension(app.store.LatestSnapshot(), req.VoteExtension); err != nil {
		app.logger.Info("rejecting vote extension", "height", req.Height, "validator", fmt.Sprintf("%X", req.ValidatorAddress), "err", err)
		return &abci.ResponseVerifyVoteExtension{Status: abci.ResponseVerifyVoteExtension_REJECT}, nil
	}
	return &abci.ResponseVerifyVoteExtension{Status: abci.ResponseVerifyVoteExtension_ACCEPT}, nil
}

// proposalCommitInfo prepares the local extended commit info for inclusion
// in a proposal: extensions that no longer validate are dropped together
// with their signatures.
func proposalCommitInfo(r storage.Reader, local abci.ExtendedCommitInfo) ([]byte, error) {
	votes := make([]abci.ExtendedVoteInfo, len(local.Votes))
	for i, v := range local.Votes {
		votes[i] = v
		if len(v.VoteExtension) == 0 {
			continue
		}
		if err := xpricefeed.ValidateVoteExtension(r, v.VoteExtension); err != nil {
			votes[i].VoteExtension = nil
			votes[i].ExtensionSignature = nil
		}
	}
	info := abci.ExtendedCommitInfo{Round: local.Round, Votes: votes}
	return info.Marshal()
}

// validateCommitInfo checks extended commit info carried by a proposal at
// height: it must describe the proposal's last commit, its extensions must
// be signed by their validators and valid, and the validators that committed
// must hold more than two thirds of the voting power.
func (app *App) validateCommitInfo(ctx context.Context, r storage.Reader, height uint64, bz []byte, last abci.CommitInfo) error {
	var info abci.ExtendedCommitInfo
	if err := info.Unmarshal(bz); err != nil {
		return fmt.Errorf("decoding extended commit info: %w", err)
	}
	if info.Round != last.Round || len(info.Votes) != len(last.Votes) {
		return errCommitInfoMismatch
	}
	chainID, err := meta.ChainID(r)
	if err != nil {
		return err
	}
	keys, err := app.validators.ValidatorsAt(ctx, int64(height)-1)
	if err != nil {
		return err
	}

	var total, committed int64
	for i, v := range info.Votes {
		want := last.Votes[i]
		if string(v.Validator.Address) != string(want.Validator.Address) ||
			v.Validator.Power != want.Validator.Power ||
			v.BlockIdFlag != want.BlockIdFlag {
			return fmt.Errorf("%w: vote %d", errCommitInfoMismatch, i)
		}
		total += v.Validator.Power
		if v.BlockIdFlag != cmtproto.BlockIDFlagCommit {
			if len(v.VoteExtension) != 0 || len(v.ExtensionSignature) != 0 {
				return fmt.Errorf("vote %d did not commit but carries an extension", i)
			}
			continue
		}
		committed += v.Validator.Power
		if len(v.VoteExtension) == 0 {
			continue
		}
		pk, ok := keys[string(v.Validator.Address)]
		if !ok {
			return fmt.Errorf("vote %d: unknown validator %X", i, v.Validator.Address)
		}
		signBytes := cmttypes.VoteExtensionSignBytes(chainID, &cmtproto.Vote{
			Type:      cmtproto.PrecommitType,
			Height:    int64(height) - 1,
			Round:     info.Round,
			Extension: v.VoteExtension,
		})
		if !pk.VerifySignature(signBytes, v.ExtensionSignature) {
			return fmt.Errorf("vote %d: invalid extension signature", i)
		}
		if err := xpricefeed.ValidateVoteExtension(r, v.VoteExtension); err != nil {
			return fmt.Errorf("vote %d: %w", i, err)
		}
	}
	if committed*3 <= total*2 {
		return errNotEnoughPower
	}
	return nil
}
