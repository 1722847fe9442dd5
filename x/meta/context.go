package meta

import (
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
)

// TxContext identifies the action being executed.
type TxContext struct {
	Signer      [address.Length]byte
	TxID        transaction.ID
	ActionIndex uint64
}

func PutTxContext(w storage.Writer, c TxContext) { w.PutObject(txContextKey, c) }

func TxContextOf(r storage.Reader) (TxContext, bool) {
	return storage.GetObject[TxContext](r, txContextKey)
}

func ClearTxContext(w storage.Writer) { w.DeleteObject(txContextKey) }

// EmitEvent queues an ABCI event. Events live in the delta so a failed
// transaction drops the events it emitted.
func EmitEvent(w storage.Writer, ev abci.Event) {
	prev, _ := storage.GetObject[[]abci.Event](w, eventsKey)
	next := make([]abci.Event, len(prev), len(prev)+1)
	copy(next, prev)
	w.PutObject(eventsKey, append(next, ev))
}

// TakeEvents returns and clears the queued events.
func TakeEvents(w storage.Writer) []abci.Event {
	evs, _ := storage.GetObject[[]abci.Event](w, eventsKey)
	w.DeleteObject(eventsKey)
	return evs
}

// CurrentTx returns the context of the executing action.
func CurrentTx(r storage.Reader) (TxContext, error) {
	c, ok := TxContextOf(r)
	if !ok {
		return TxContext{}, ErrNoTxContext
	}
	return c, nil
}
