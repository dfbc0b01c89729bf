package record

import (
	"go.uber.org/zap"
)

// Keeper owns the in-memory record and flushes it after every mutation. It is the only writer of the record
// and is handed explicitly to everything that needs it
type Keeper struct {
	store  *Store
	rec    Record
	logger *zap.Logger
}

// NewKeeper starts from rec, normally the result of Store.Load
func NewKeeper(store *Store, rec Record, logger *zap.Logger) *Keeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Keeper{store: store, rec: rec, logger: logger}
}

// Record returns a copy of the current record
func (k *Keeper) Record() Record {
	return k.rec
}

// Update applies fn and writes the full record before returning. The in-memory copy keeps the change even when
// the write fails since it reflects what physically happened; the next successful save carries it to storage
func (k *Keeper) Update(fn func(*Record)) error {
	fn(&k.rec)
	return k.Flush()
}

// Flush writes the current record
func (k *Keeper) Flush() error {
	err := k.store.Save(k.rec)
	if err != nil {
		k.logger.Error("failed to save record", zap.Error(err))
	}
	return err
}

// Reset replaces the record with defaults, keeping the lifetime counters
func (k *Keeper) Reset() error {
	return k.Update(func(r *Record) {
		fresh := Default(k.store.dispenseSlots)
		fresh.BootCount = r.BootCount
		fresh.PillsDispensed = r.PillsDispensed
		fresh.PillsMissed = r.PillsMissed
		fresh.JoinedNetwork = r.JoinedNetwork
		*r = fresh
	})
}
