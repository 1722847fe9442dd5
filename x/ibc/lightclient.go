package ibc

import (
	"bytes"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/cometbft/cometbft/light"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

// maxClockDrift is how far a counterparty header may be ahead of this
// chain's block time.
const maxClockDrift = 10 * time.Second

func decodeSignedHeader(bz []byte) (*cmttypes.SignedHeader, error) {
	var pb cmtproto.SignedHeader
	if err := pb.Unmarshal(bz); err != nil {
		return nil, errorsmod.Wrap(ErrInvalidHeader, err.Error())
	}
	sh, err := cmttypes.SignedHeaderFromProto(&pb)
	if err != nil {
		return nil, errorsmod.Wrap(ErrInvalidHeader, err.Error())
	}
	return sh, nil
}

func decodeValidatorSet(bz []byte) (*cmttypes.ValidatorSet, error) {
	var pb cmtproto.ValidatorSet
	if err := pb.Unmarshal(bz); err != nil {
		return nil, errorsmod.Wrap(ErrInvalidHeader, err.Error())
	}
	vals, err := cmttypes.ValidatorSetFromProto(&pb)
	if err != nil {
		return nil, errorsmod.Wrap(ErrInvalidHeader, err.Error())
	}
	return vals, nil
}

func heightOf(sh *cmttypes.SignedHeader) actions.IbcHeight {
	return actions.IbcHeight{
		RevisionNumber: meta.RevisionFromChainID(sh.ChainID),
		RevisionHeight: uint64(sh.Height),
	}
}

func consensusOf(sh *cmttypes.SignedHeader) ConsensusState {
	return ConsensusState{
		Root:               sh.AppHash,
		Timestamp:          uint64(sh.Time.UnixNano()),
		NextValidatorsHash: sh.NextValidatorsHash,
	}
}

// verifyInitialHeader checks that sh is a block of chainID committed by more
// than two thirds of vals and young enough to be trusted at now.
func verifyInitialHeader(chainID string, sh *cmttypes.SignedHeader, vals *cmttypes.ValidatorSet, trustingPeriod time.Duration, now time.Time) error {
	if err := sh.ValidateBasic(chainID); err != nil {
		return errorsmod.Wrap(ErrInvalidHeader, err.Error())
	}
	if !bytes.Equal(sh.ValidatorsHash, vals.Hash()) {
		return errorsmod.Wrap(ErrInvalidHeader, "validator set does not match the header")
	}
	if light.HeaderExpired(sh, trustingPeriod, now) {
		return errorsmod.Wrapf(ErrInvalidHeader, "header time %s is outside the trusting period", sh.Time)
	}
	if !sh.Time.Before(now.Add(maxClockDrift)) {
		return errorsmod.Wrapf(ErrInvalidHeader, "header time %s is in the future", sh.Time)
	}
	if err := vals.VerifyCommitLight(chainID, sh.Commit.BlockID, sh.Height, sh.Commit); err != nil {
		return errorsmod.Wrap(ErrInvalidHeader, err.Error())
	}
	return nil
}

// verifyHeader checks sh against a trusted consensus state by the CometBFT
// light client rules: the header after the trusted one must be signed by the
// trusted next validators, later ones by at least a third of them.
func verifyHeader(cs ClientState, trustedHeight actions.IbcHeight, trusted ConsensusState, trustedVals *cmttypes.ValidatorSet, sh *cmttypes.SignedHeader, vals *cmttypes.ValidatorSet, now time.Time) error {
	if !bytes.Equal(trustedVals.Hash(), trusted.NextValidatorsHash) {
		return errorsmod.Wrapf(ErrInvalidHeader, "trusted validators do not match the consensus state at %s", trustedHeight)
	}
	trustedHeader := &cmttypes.SignedHeader{
		Header: &cmttypes.Header{
			ChainID:            cs.ChainID,
			Height:             int64(trustedHeight.RevisionHeight),
			Time:               time.Unix(0, int64(trusted.Timestamp)).UTC(),
			NextValidatorsHash: trusted.NextValidatorsHash,
		},
	}
	err := light.Verify(trustedHeader, trustedVals, sh, vals, cs.TrustingPeriod, now, maxClockDrift, light.DefaultTrustLevel)
	if err != nil {
		return errorsmod.Wrap(ErrInvalidHeader, err.Error())
	}
	return nil
}
