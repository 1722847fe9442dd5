package app

import (
	"bytes"
	"fmt"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"

	apperr "github.com/astriaorg/astria-sequencer/app/errors"
	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/sequencerblock"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
	"github.com/astriaorg/astria-sequencer/pkg/upgrades"
	"github.com/astriaorg/astria-sequencer/x/authority"
	"github.com/astriaorg/astria-sequencer/x/bridge"
	"github.com/astriaorg/astria-sequencer/x/fees"
	"github.com/astriaorg/astria-sequencer/x/grpcstore"
	"github.com/astriaorg/astria-sequencer/x/meta"
	xpricefeed "github.com/astriaorg/astria-sequencer/x/pricefeed"
)

// blockInfo is the CometBFT context a block executes in. Two proposals with
// the same info are the same proposal.
type blockInfo struct {
	height   uint64
	time     time.Time
	proposer []byte
}

func (b blockInfo) equal(other blockInfo) bool {
	return b.height == other.height && b.time.Equal(other.time) && bytes.Equal(b.proposer, other.proposer)
}

// executedBlock is a block whose transactions have run but whose end of
// block has not.
type executedBlock struct {
	info blockInfo
	// hash is set once a ProcessProposal accepted the block.
	hash  [32]byte
	delta *storage.Delta
	data  *sequencerblock.Data
	// groups are the rollup items of the block, deposits included.
	groups []sequencerblock.RollupGroup
	// txResults holds one result per transaction of data.Txs.
	txResults []*abci.ExecTxResult
	// includedIDs are the transactions that executed successfully.
	includedIDs []transaction.ID
	// paramUpdates is set when an upgrade changed the consensus params.
	paramUpdates *cmtproto.ConsensusParams
}

// finalizedBlock waits for Commit.
type finalizedBlock struct {
	height      uint64
	includedIDs []transaction.ID
}

// blockBuilder accumulates the outcome of executing a block's transactions.
type blockBuilder struct {
	app    *App
	info   blockInfo
	layout sequencerblock.Layout
	delta  *storage.Delta

	changeHashes [][32]byte
	eci          []byte
	paramUpdates *cmtproto.ConsensusParams

	rollups     *sequencerblock.RollupData
	txs         [][]byte
	txResults   []*abci.ExecTxResult
	includedIDs []transaction.ID
	dataBytes   int
}

// beginBlock opens a delta over the latest snapshot and runs everything that
// precedes the transactions: block metadata, the upgrade activating at this
// height and the prices voted on in the previous height.
func (app *App) beginBlock(info blockInfo, eci []byte) (*blockBuilder, error) {
	snap := app.store.LatestSnapshot()
	layout, err := app.layoutAt(snap, info.height)
	if err != nil {
		return nil, err
	}
	b := &blockBuilder{
		app:     app,
		info:    info,
		layout:  layout,
		delta:   storage.NewDelta(snap),
		rollups: sequencerblock.NewRollupData(),
	}
	if err := meta.PutBlockHeight(b.delta, info.height); err != nil {
		return nil, err
	}
	if err := meta.PutBlockTimestamp(b.delta, info.time); err != nil {
		return nil, err
	}
	if u, ok := app.upgrades.ActivatingAt(info.height); ok {
		applied, err := app.applyUpgrade(b.delta, u, info.height)
		if err != nil {
			return nil, err
		}
		b.changeHashes = applied.changeHashes
		b.paramUpdates = applied.params
	}
	if layout.ExtendedCommitInfo {
		b.eci = eci
		if err := app.applyOraclePrices(b.delta, eci); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// applyOraclePrices writes the stake weighted prices of the extended commit
// info. The info has been validated by ProcessProposal.
func (app *App) applyOraclePrices(d *storage.Delta, eci []byte) error {
	var info abci.ExtendedCommitInfo
	if err := info.Unmarshal(eci); err != nil {
		return fmt.Errorf("decoding extended commit info: %w", err)
	}
	votes := make([]xpricefeed.Vote, 0, len(info.Votes))
	for _, v := range info.Votes {
		vote := xpricefeed.Vote{Power: v.Validator.Power}
		if v.BlockIdFlag == cmtproto.BlockIDFlagCommit {
			vote.Extension = v.VoteExtension
		}
		votes = append(votes, vote)
	}
	prices := xpricefeed.AggregatePrices(votes)
	if err := xpricefeed.ApplyPrices(d, prices); err != nil {
		return err
	}
	app.metrics.OraclePricesApplied.Add(float64(len(prices)))
	return nil
}

// execute runs tx in the block. On success its sequenced data is added to
// the rollup items and it is appended to the block's transactions.
func (b *blockBuilder) execute(tx *transaction.Transaction, raw []byte) (*abci.ExecTxResult, error) {
	events, err := b.app.executeTx(b.delta, tx, b.info.height)
	if err != nil {
		b.app.metrics.TransactionsExecuted.WithLabelValues("failed").Inc()
		return nil, err
	}
	b.app.metrics.TransactionsExecuted.WithLabelValues("ok").Inc()
	for _, a := range tx.Actions() {
		if sub, ok := a.(*actions.RollupDataSubmission); ok {
			b.rollups.Append(sub.RollupID, sub.Data)
			b.dataBytes += len(sub.Data)
		}
	}
	res := &abci.ExecTxResult{Events: events}
	b.txs = append(b.txs, raw)
	b.txResults = append(b.txResults, res)
	b.includedIDs = append(b.includedIDs, tx.ID())
	return res, nil
}

// recordFailure keeps a failed transaction in the block, as FinalizeBlock
// must for blocks that were already decided.
func (b *blockBuilder) recordFailure(raw []byte, err error) {
	space, code, log := apperr.ABCIInfo(err, true)
	b.txs = append(b.txs, raw)
	b.txResults = append(b.txResults, &abci.ExecTxResult{Codespace: space, Code: code, Log: log})
}

// seal appends the block's deposits to the rollup items and lays out the
// block data.
func (b *blockBuilder) seal() *executedBlock {
	deposits := bridge.TakeDeposits(b.delta)
	for _, dep := range deposits {
		b.rollups.Append(dep.RollupID, sequencerblock.EncodeDepositItem(dep))
	}
	b.app.metrics.BlockDeposits.Add(float64(len(deposits)))
	b.app.metrics.SequencedDataBytes.Observe(float64(b.dataBytes))

	groups := b.rollups.Groups()
	data := sequencerblock.NewData(sequencerblock.ComputeCommitments(groups), b.layout, b.changeHashes, b.eci, b.txs)
	return &executedBlock{
		info:         b.info,
		delta:        b.delta,
		data:         data,
		groups:       groups,
		txResults:    b.txResults,
		includedIDs:  b.includedIDs,
		paramUpdates: b.paramUpdates,
	}
}

// endBlock applies the validator updates staged by the block, pays the
// block fees and stores the sequencer block. It returns the validator
// updates and the app hash of the resulting state.
func (app *App) endBlock(eb *executedBlock, hash [32]byte, chainID string) ([]abci.ValidatorUpdate, []byte, error) {
	d := eb.delta
	updates, err := authority.ApplyValidatorUpdates(d)
	if err != nil {
		return nil, nil, fmt.Errorf("applying validator updates: %w", err)
	}
	if err := fees.CreditBlockFees(d); err != nil {
		return nil, nil, fmt.Errorf("crediting block fees: %w", err)
	}

	header := sequencerblock.Header{
		ChainID:         chainID,
		Height:          eb.info.height,
		Time:            eb.info.time.UnixNano(),
		ProposerAddress: eb.info.proposer,
	}
	sb, err := sequencerblock.New(hash, header, eb.data, eb.groups)
	if err != nil {
		return nil, nil, err
	}
	if err := grpcstore.PutSequencerBlock(d, sb); err != nil {
		return nil, nil, err
	}
	if err := meta.PutStorageVersion(d, eb.info.height, uint64(app.store.LatestVersion()+1)); err != nil {
		return nil, nil, err
	}
	root, err := app.store.PrepareCommit(d)
	if err != nil {
		return nil, nil, fmt.Errorf("preparing commit: %w", err)
	}
	return updates, storage.AppHash(root), nil
}

// decodeBlockTxs decodes the transactions of proposed block data.
func decodeBlockTxs(raw [][]byte) ([]*transaction.Transaction, error) {
	txs := make([]*transaction.Transaction, len(raw))
	for i, r := range raw {
		tx, err := transaction.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		txs[i] = tx
	}
	return txs, nil
}

// expectedChangeHashes are the change hashes a block at height must carry.
func (app *App) expectedChangeHashes(height uint64) ([][32]byte, error) {
	u, ok := app.upgrades.ActivatingAt(height)
	if !ok {
		return nil, nil
	}
	var out [][32]byte
	for _, c := range u.Changes() {
		h, err := upgrades.Hash(c)
		if err != nil {
			return nil, err
		}
		out = append(out, [32]byte(h))
	}
	return out, nil
}
