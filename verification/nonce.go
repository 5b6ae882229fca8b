package verification

import (
	"context"
	"errors"
	"time"

	"github.com/vitwit/payless/storage"
	"github.com/vitwit/payless/types"
)

// ErrReplay is returned when a nonce has already been consumed.
var ErrReplay = errors.New("payment nonce already used")

// NonceLedger records consumed (chain, nonce) pairs until they expire. The
// TTL must cover the freshness window so a proof cannot outlive its nonce.
type NonceLedger struct {
	store storage.Store[time.Time]
	ttl   time.Duration
	now   func() time.Time
}

func NewNonceLedger(store storage.Store[time.Time], ttl time.Duration, now func() time.Time) *NonceLedger {
	if now == nil {
		now = time.Now
	}
	return &NonceLedger{store: store, ttl: ttl, now: now}
}

func nonceKey(chain types.Chain, nonce string) string {
	return "nonce:" + string(chain) + ":" + nonce
}

// Consume marks the nonce as used. It fails with ErrReplay if the nonce was
// consumed earlier and has not yet expired.
func (l *NonceLedger) Consume(ctx context.Context, chain types.Chain, nonce string) error {
	key := nonceKey(chain, nonce)
	now := l.now()
	expires := now.Add(l.ttl)

	for {
		entry, err := l.store.Get(ctx, key)
		var version uint64
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return err
		case now.Before(entry.Value):
			return ErrReplay
		default:
			version = entry.Version
		}

		_, err = l.store.CompareAndSwap(ctx, key, version, expires)
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		return err
	}
}

// Sweep deletes expired entries and returns how many were removed.
func (l *NonceLedger) Sweep(ctx context.Context) (int, error) {
	now := l.now()
	var expired []string
	err := l.store.Scan(ctx, "nonce:", func(e storage.Entry[time.Time]) bool {
		if !now.Before(e.Value) {
			expired = append(expired, e.Key)
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	for _, key := range expired {
		if err := l.store.Delete(ctx, key); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}
