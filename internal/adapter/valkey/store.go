package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/couchcryptid/storm-ambiance/internal/ledger"
)

// entryTTL keeps a week of days; older entries can never gate a play again.
const entryTTL = 8 * 24 * time.Hour

// Store implements ledger.Store on top of a valkey.Client.
type Store struct {
	client valkey.Client
	prefix string
}

// NewStore constructs a Store. An empty prefix defaults to "ambiance".
func NewStore(client valkey.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "ambiance"
	}
	return &Store{client: client, prefix: prefix}
}

// Connect builds a client from addr, which is either host:port or a
// redis:// / valkey:// URL, and verifies it with a PING.
func Connect(ctx context.Context, addr string) (valkey.Client, error) {
	opt, err := clientOptions(addr)
	if err != nil {
		return nil, fmt.Errorf("parse valkey address: %w", err)
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey: %w", err)
	}
	return client, nil
}

func clientOptions(addr string) (valkey.ClientOption, error) {
	if strings.Contains(addr, "://") {
		return valkey.ParseURL(addr)
	}
	return valkey.ClientOption{InitAddress: []string{addr}}, nil
}

func (s *Store) Played(ctx context.Context, dayKey string) (bool, error) {
	cmd := s.client.B().Get().Key(s.dayKey(dayKey)).Build()
	_, err := s.client.Do(ctx, cmd).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) MarkPlayed(ctx context.Context, dayKey string) error {
	cmd := s.client.B().Set().Key(s.dayKey(dayKey)).Value("1").Ex(entryTTL).Build()
	return s.client.Do(ctx, cmd).Error()
}

func (s *Store) dayKey(day string) string {
	return fmt.Sprintf("%s:cinematic:%s", s.prefix, day)
}

var _ ledger.Store = (*Store)(nil)
