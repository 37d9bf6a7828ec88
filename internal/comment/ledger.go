package comment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/komentar/service/internal/storage"
)

// ErrConflictExhausted is returned when every append attempt lost the
// conditional-write race. The ledger is left exactly as the last successful
// writer committed it.
var ErrConflictExhausted = errors.New("ledger append retries exhausted")

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 50 * time.Millisecond
)

// Ledger is the single ordered comment collection, persisted as one JSON
// array object. The store offers no transactions, so appends run a bounded
// compare-and-swap loop keyed on the object's version token.
type Ledger struct {
	store storage.BlobStore
	cond  storage.ConditionalWriter // nil when the store cannot do CAS
	path  string

	maxAttempts int
	backoffBase time.Duration
}

// NewLedger creates a Ledger stored at path. A store without conditional
// writes degrades to plain load-merge-store with a small residual race
// window; that gap is flagged to operators here rather than hidden.
func NewLedger(store storage.BlobStore, path string) *Ledger {
	l := &Ledger{
		store:       store,
		path:        path,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
	}
	if cond, ok := store.(storage.ConditionalWriter); ok {
		l.cond = cond
	} else {
		slog.Warn("ledger store has no conditional writes; concurrent appends can lose updates",
			"path", path)
	}
	return l
}

// Load fetches the current ledger content and its version token. A ledger
// that has never been written yields an empty sequence and an empty token,
// not an error. Unparsable content is intentionally discarded after a
// warning: the next append replaces it, and the previous object version
// stays recoverable in the store.
func (l *Ledger) Load(ctx context.Context) ([]Record, string, error) {
	data, token, err := l.store.GetObject(ctx, l.path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []Record{}, "", nil
		}
		return nil, "", fmt.Errorf("load ledger: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Warn("ledger content unparsable, treating as empty",
			"path", l.path, "bytes", len(data), "err", err)
		return []Record{}, token, nil
	}
	return records, token, nil
}

// Append prepends rec to the ledger (newest-first) and persists the result.
// On a version conflict the fresh snapshot is re-loaded and the same record
// re-applied, up to a fixed number of attempts with jittered exponential
// backoff. A caller deadline elapsing mid-loop surfaces as the context error,
// distinct from ErrConflictExhausted.
func (l *Ledger) Append(ctx context.Context, rec Record) ([]Record, error) {
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := l.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		records, token, err := l.Load(ctx)
		if err != nil {
			return nil, err
		}

		updated := make([]Record, 0, len(records)+1)
		updated = append(updated, rec)
		updated = append(updated, records...)

		data, err := json.Marshal(updated)
		if err != nil {
			return nil, fmt.Errorf("encode ledger: %w", err)
		}

		if l.cond == nil {
			if _, err := l.store.PutObject(ctx, l.path, data, storage.PutOptions{Overwrite: true}); err != nil {
				return nil, fmt.Errorf("store ledger: %w", err)
			}
			return updated, nil
		}

		_, err = l.cond.PutObjectIfMatch(ctx, l.path, data, token)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return nil, fmt.Errorf("store ledger: %w", err)
		}
		slog.Debug("ledger append conflict, retrying", "path", l.path, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrConflictExhausted, l.maxAttempts)
}

// backoff sleeps for an exponentially growing, jittered interval, or returns
// early with the context error. Jitter spreads racing writers apart instead
// of letting them retry in lockstep.
func (l *Ledger) backoff(ctx context.Context, attempt int) error {
	base := l.backoffBase << (attempt - 1)
	delay := base/2 + rand.N(base)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
