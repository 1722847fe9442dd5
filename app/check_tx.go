package app

import (
	"context"
	"errors"
	"time"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	apperr "github.com/astriaorg/astria-sequencer/app/errors"
	"github.com/astriaorg/astria-sequencer/pkg/appconsts"
	"github.com/astriaorg/astria-sequencer/pkg/mempool"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
	"github.com/astriaorg/astria-sequencer/x/accounts"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

// CheckTx admits a transaction into the app mempool. It runs against the
// last committed state: stateless checks, the nonce and whether the signer
// can pay for it once its earlier transactions are included. Transactions
// with a nonce gap are parked rather than rejected.
func (app *App) CheckTx(ctx context.Context, req *abci.RequestCheckTx) (*abci.ResponseCheckTx, error) {
	_, span := app.tracer.Start(ctx, "CheckTx")
	defer span.End()

	start := time.Now()
	stage := "ok"
	defer func() {
		app.metrics.CheckTxDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}()
	reject := func(s string, err error) (*abci.ResponseCheckTx, error) {
		stage = s
		app.metrics.CheckTxRemoved.WithLabelValues(s).Inc()
		return responseCheckTx(err, app.cfg.Debug), nil
	}

	if len(req.Tx) > appconsts.MaxTxSize {
		return reject("too_large", errorsmod.Wrapf(apperr.ErrTxExceedsMaxSize,
			"tx size %d bytes is larger than the application's MaxTxSize of %d bytes", len(req.Tx), appconsts.MaxTxSize))
	}

	id := transaction.IDOf(req.Tx)
	if reason, removed := app.mempool.CheckRemovedComet(id); removed {
		// removal has no code of its own; the reason goes to the log
		return reject("removed", errorsmod.Wrapf(apperr.ErrInvalidParameter, "removed from the app mempool: %s", reason))
	}
	if app.mempool.Contains(id) {
		if req.Type == abci.CheckTxType_Recheck {
			return &abci.ResponseCheckTx{}, nil
		}
		return reject("already_present", errorsmod.Wrap(apperr.ErrInvalidParameter, mempool.ErrAlreadyPresent.Error()))
	}

	tx, err := transaction.Decode(req.Tx)
	if err != nil {
		return reject("decode", errorsmod.Wrap(apperr.ErrInvalidParameter, err.Error()))
	}
	snap := app.store.LatestSnapshot()
	chainID, err := meta.ChainID(snap)
	if err != nil {
		return reject("internal", err)
	}
	if err := checkTxStateless(tx, chainID); err != nil {
		return reject("stateless", err)
	}

	signer := tx.SignerBytes()
	nonce, err := accounts.Nonce(snap, signer)
	if err != nil {
		return reject("internal", err)
	}
	if tx.Nonce() < nonce {
		return reject("nonce", &apperr.NonceMismatch{Expected: nonce, Got: tx.Nonce()})
	}
	cost, err := txCost(snap, tx)
	if err != nil {
		return reject("cost", errorsmod.Wrap(apperr.ErrInvalidParameter, err.Error()))
	}
	balances, err := accounts.Balances(snap, signer)
	if err != nil {
		return reject("internal", err)
	}
	if tx.Nonce() == nonce && !cost.CoveredBy(mempool.Balances(balances)) {
		return reject("funds", errorsmod.Wrap(apperr.ErrInsufficientFunds, "signer cannot pay for the transaction"))
	}

	mtx, err := mempool.NewTx(tx, req.Tx, cost, app.now())
	if err != nil {
		return reject("stateless", errorsmod.Wrap(apperr.ErrInvalidParameter, err.Error()))
	}
	status, err := app.mempool.Insert(mtx, nonce, mempool.Balances(balances))
	if err != nil {
		if errors.Is(err, mempool.ErrNonceTooLow) {
			return reject("nonce", &apperr.NonceMismatch{Expected: nonce, Got: tx.Nonce()})
		}
		return reject("insert", errorsmod.Wrap(apperr.ErrInvalidParameter, err.Error()))
	}
	app.metrics.SetMempoolSizes(app.mempool.Sizes())
	app.logger.Debug("transaction admitted", "tx_id", id, "nonce", tx.Nonce(), "status", status)
	return &abci.ResponseCheckTx{Info: status.String()}, nil
}

func responseCheckTx(err error, debug bool) *abci.ResponseCheckTx {
	space, code, log := apperr.ABCIInfo(err, debug)
	return &abci.ResponseCheckTx{
		Codespace: space,
		Code:      code,
		Log:       log,
	}
}
