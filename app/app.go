package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/astriaorg/astria-sequencer/app/metrics"
	"github.com/astriaorg/astria-sequencer/pkg/appconsts"
	"github.com/astriaorg/astria-sequencer/pkg/mempool"
	"github.com/astriaorg/astria-sequencer/pkg/sequencerblock"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/upgrades"
	"github.com/astriaorg/astria-sequencer/x/meta"
	xupgrades "github.com/astriaorg/astria-sequencer/x/upgrades"
)

// Name is the name of the application.
const Name = appconsts.DefaultNodeName

var _ abci.Application = (*App)(nil)

// Options are the dependencies of an App. Storage is required; everything
// else has a usable default.
type Options struct {
	Logger   log.Logger
	Config   Config
	Storage  *storage.Storage
	Upgrades *upgrades.Upgrades
	// Oracle feeds prices into vote extensions. Without it the node extends
	// its votes with empty extensions.
	Oracle OracleClient
	// Validators resolves the keys that signed vote extensions. It defaults
	// to the validator set kept in state.
	Validators ValidatorSource
	Metrics    *metrics.Metrics
	// OnShutdown is called after the commit of the last block before an
	// upgrade that needs the node restarted with a new binary.
	OnShutdown func(upgrade string)
}

// App is the sequencer's ABCI++ application. Consensus calls are serialized
// by CometBFT; CheckTx and the read API run concurrently with them and only
// ever see committed snapshots and the mempool.
type App struct {
	abci.BaseApplication

	logger     log.Logger
	cfg        Config
	store      *storage.Storage
	upgrades   *upgrades.Upgrades
	mempool    *mempool.Mempool
	metrics    *metrics.Metrics
	oracle     OracleClient
	validators ValidatorSource
	tracer     trace.Tracer
	onShutdown func(string)
	now        func() time.Time

	mu sync.Mutex
	// proposed is the block this node built in PrepareProposal.
	proposed *executedBlock
	// executed is the block accepted by the last ProcessProposal.
	executed *executedBlock
	// finalized is waiting for Commit.
	finalized *finalizedBlock
	// committed notifies stream subscribers of new heights.
	committed *blockFeed
}

// New builds the app on top of opts.Storage and checks that the upgrades
// the store has already applied match opts.Upgrades.
func New(opts Options) (*App, error) {
	if opts.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.Upgrades == nil {
		opts.Upgrades = upgrades.Empty()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.Config == (Config{}) {
		opts.Config = DefaultConfig()
	}
	logger := NewTxErrorLoggerWrapper(opts.Logger.With(log.ModuleKey, "app"))

	pool, err := mempool.New(opts.Config.Mempool, opts.Logger.With(log.ModuleKey, "mempool"))
	if err != nil {
		return nil, fmt.Errorf("creating mempool: %w", err)
	}

	app := &App{
		logger:     logger,
		cfg:        opts.Config,
		store:      opts.Storage,
		upgrades:   opts.Upgrades,
		mempool:    pool,
		metrics:    opts.Metrics,
		oracle:     opts.Oracle,
		validators: opts.Validators,
		tracer:     otel.Tracer("github.com/astriaorg/astria-sequencer/app"),
		onShutdown: opts.OnShutdown,
		now:        time.Now,
		committed:  newBlockFeed(),
	}
	if app.validators == nil {
		app.validators = StateValidators{store: opts.Storage}
	}

	snap := opts.Storage.LatestSnapshot()
	height, err := meta.BlockHeight(snap)
	if err != nil {
		return nil, fmt.Errorf("reading block height: %w", err)
	}
	if err := xupgrades.VerifyHistory(snap, opts.Upgrades, height); err != nil {
		return nil, fmt.Errorf("local upgrades do not match the chain: %w", err)
	}
	switch chainID, err := meta.ChainID(snap); {
	case err == nil:
		app.restrictDebug(chainID)
	case !errors.Is(err, meta.ErrNotSet):
		return nil, fmt.Errorf("reading chain id: %w", err)
	}
	logger.Info("app initialized", "height", height, "store_version", snap.Version())
	return app, nil
}

// restrictDebug turns Debug off on public networks, whose clients never see
// internal error details.
func (app *App) restrictDebug(chainID string) {
	if app.cfg.Debug && appconsts.IsPublicNetwork(chainID) {
		app.logger.Info("ignoring debug on a public network", "chain_id", chainID)
		app.cfg.Debug = false
	}
}

// Mempool exposes the app mempool to the read API.
func (app *App) Mempool() *mempool.Mempool { return app.mempool }

// Storage exposes the store to the read API.
func (app *App) Storage() *storage.Storage { return app.store }

// Upgrades is the node's upgrade table.
func (app *App) Upgrades() *upgrades.Upgrades { return app.upgrades }

// Logger returns the app logger.
func (app *App) Logger() log.Logger { return app.logger }

// SubscribeCommits registers for the heights committed from now on. A
// subscriber that falls behind misses heights and should read the store.
// The returned cancel func releases the subscription.
func (app *App) SubscribeCommits(buffer int) (<-chan uint64, func()) {
	return app.committed.subscribe(buffer)
}

// Info reports the last committed height and app hash so CometBFT can
// replay the blocks the app is missing.
func (app *App) Info(_ context.Context, _ *abci.RequestInfo) (*abci.ResponseInfo, error) {
	snap := app.store.LatestSnapshot()
	height, err := meta.BlockHeight(snap)
	if err != nil {
		return nil, err
	}
	resp := &abci.ResponseInfo{
		Data:            Name,
		Version:         appconsts.DefaultNodeName,
		AppVersion:      app.appVersion(snap),
		LastBlockHeight: int64(height),
	}
	if height > 0 {
		resp.LastBlockAppHash = snap.AppHash()
	}
	return resp, nil
}

// appVersion is the app version from the stored consensus params.
func (app *App) appVersion(r storage.Reader) uint64 {
	params, found, err := meta.ConsensusParams(r)
	if err != nil || !found || params.Version == nil || params.Version.App == 0 {
		return appconsts.Version
	}
	return params.Version.App
}

// layoutAt says which optional data items a block at height carries.
func (app *App) layoutAt(r storage.Reader, height uint64) (sequencerblock.Layout, error) {
	var layout sequencerblock.Layout
	if aspen, ok := app.upgrades.Aspen(); ok && height >= aspen.ActivationHeight() {
		layout.UpgradeChangeHashes = true
	}
	enabled, err := voteExtensionsEnabled(r, height-1)
	if err != nil {
		return layout, err
	}
	layout.ExtendedCommitInfo = enabled
	return layout, nil
}

// voteExtensionsEnabled reports whether votes at height carry extensions.
func voteExtensionsEnabled(r storage.Reader, height uint64) (bool, error) {
	params, found, err := meta.ConsensusParams(r)
	if err != nil || !found || params.Abci == nil {
		return false, err
	}
	enable := params.Abci.VoteExtensionsEnableHeight
	return enable != appconsts.VoteExtensionsDisabledHeight && int64(height) >= enable, nil
}
