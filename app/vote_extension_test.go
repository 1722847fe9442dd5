package app_test

import (
	"context"
	"errors"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astriaorg/astria-sequencer/app"
	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
	"github.com/astriaorg/astria-sequencer/pkg/upgrades"
)

type failingOracle struct{}

func (failingOracle) Prices(context.Context) (map[pricefeed.CurrencyPair]pricefeed.Price, error) {
	return nil, errors.New("oracle unavailable")
}

func TestExtendVote(t *testing.T) {
	ta := newTestApp(t)
	resp, err := ta.ExtendVote(context.Background(), &abci.RequestExtendVote{Height: 1})
	require.NoError(t, err)
	assert.Empty(t, resp.VoteExtension)

	withOracle := newTestApp(t, func(o *app.Options) { o.Oracle = failingOracle{} })
	resp, err = withOracle.ExtendVote(context.Background(), &abci.RequestExtendVote{Height: 1})
	require.NoError(t, err)
	assert.Empty(t, resp.VoteExtension)
}

func TestVerifyVoteExtension(t *testing.T) {
	ta := newTestApp(t)
	resp, err := ta.VerifyVoteExtension(context.Background(), &abci.RequestVerifyVoteExtension{Height: 1})
	require.NoError(t, err)
	assert.Equal(t, abci.ResponseVerifyVoteExtension_ACCEPT, resp.Status)

	resp, err = ta.VerifyVoteExtension(context.Background(), &abci.RequestVerifyVoteExtension{
		Height:        1,
		VoteExtension: []byte{0xff, 0xff, 0xff},
	})
	require.NoError(t, err)
	assert.Equal(t, abci.ResponseVerifyVoteExtension_REJECT, resp.Status)
}

func TestProcessProposalValidatesCommitInfo(t *testing.T) {
	table := func() *upgrades.Upgrades {
		u, err := upgrades.New(upgrades.NewAspen(1, 2, pricefeed.Genesis{}))
		require.NoError(t, err)
		return u
	}
	proposerNode := newTestApp(t, withUpgrades(table()))
	follower := newTestApp(t, withUpgrades(table()))
	// extensions are enabled from height 2, so height 3 carries them
	for range 2 {
		txs, _ := proposerNode.nextBlock()
		require.Equal(t, abci.ResponseProcessProposal_ACCEPT, follower.process(txs))
		follower.finalize(txs)
	}
	txs := proposerNode.prepare()

	process := func(last abci.CommitInfo) abci.ResponseProcessProposal_ProposalStatus {
		resp, err := follower.ProcessProposal(context.Background(), &abci.RequestProcessProposal{
			Txs:                txs,
			ProposedLastCommit: last,
			Hash:               hashOf(3),
			Height:             3,
			Time:               blockTime(3),
			ProposerAddress:    proposer,
		})
		require.NoError(t, err)
		return resp.Status
	}

	_, last := lastCommit()
	assert.Equal(t, abci.ResponseProcessProposal_ACCEPT, process(last))

	wrongPower := abci.CommitInfo{Votes: []abci.VoteInfo{{
		Validator:   abci.Validator{Address: proposer, Power: 11},
		BlockIdFlag: cmtproto.BlockIDFlagCommit,
	}}}
	assert.Equal(t, abci.ResponseProcessProposal_REJECT, process(wrongPower))

	absent := abci.CommitInfo{Votes: []abci.VoteInfo{{
		Validator:   abci.Validator{Address: proposer, Power: 10},
		BlockIdFlag: cmtproto.BlockIDFlagAbsent,
	}}}
	assert.Equal(t, abci.ResponseProcessProposal_REJECT, process(absent))
}
