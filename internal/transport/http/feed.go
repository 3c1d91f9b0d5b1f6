package transporthttp

import (
	"example.com/signinledger/internal/domain"
	"example.com/signinledger/internal/metrics"
)

// LedgerFeed is the ledger.Observer that keeps the size gauges and the live
// feed in step with the ledger. It runs under the ledger's write lock, so a
// clear can never reach listeners ahead of an event it removed.
type LedgerFeed struct {
	Metrics *metrics.Metrics
	Live    *LiveHub
}

func (f LedgerFeed) Stored(ev domain.Event, history, sessions int) {
	if f.Metrics != nil {
		f.Metrics.LedgerSize(history, sessions)
	}
	if f.Live != nil {
		f.Live.Broadcast(EventStored, ev)
	}
}

func (f LedgerFeed) Cleared(removed int) {
	if f.Metrics != nil {
		f.Metrics.LedgerSize(0, 0)
	}
	if f.Live != nil {
		f.Live.Broadcast(LedgerCleared, map[string]int{"removed": removed})
	}
}
