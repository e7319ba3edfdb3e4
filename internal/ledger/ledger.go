package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Store is a key-value store keyed by calendar day (YYYY-MM-DD).
type Store interface {
	Played(ctx context.Context, dayKey string) (bool, error)
	MarkPlayed(ctx context.Context, dayKey string) error
}

// MemoryStore keeps the ledger in process memory. It is the fallback when no
// persistent store is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	days map[string]bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{days: make(map[string]bool)}
}

func (s *MemoryStore) Played(_ context.Context, dayKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.days[dayKey], nil
}

func (s *MemoryStore) MarkPlayed(_ context.Context, dayKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[dayKey] = true
	return nil
}

var _ Store = (*MemoryStore)(nil)

// Book fronts a Store for the runtime state. Reads are bounded by a timeout
// and writes happen in the background so the frame loop never waits on I/O.
type Book struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration

	wg sync.WaitGroup
}

// NewBook creates a Book. A non-positive timeout defaults to two seconds.
func NewBook(store Store, logger *slog.Logger, timeout time.Duration) *Book {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Book{store: store, logger: logger, timeout: timeout}
}

// Played reports whether dayKey is recorded in the store.
func (b *Book) Played(ctx context.Context, dayKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	played, err := b.store.Played(ctx, dayKey)
	if err != nil {
		return false, fmt.Errorf("read ledger %s: %w", dayKey, err)
	}
	return played, nil
}

// Record writes dayKey asynchronously. It never blocks and satisfies
// state.Recorder.
func (b *Book) Record(dayKey string) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if err := b.store.MarkPlayed(ctx, dayKey); err != nil {
			b.logger.Warn("ledger write failed", "day_key", dayKey, "error", err)
			return
		}
		b.logger.Debug("ledger entry recorded", "day_key", dayKey)
	}()
}

// Flush waits for pending writes or until ctx is done.
func (b *Book) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
