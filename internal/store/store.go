// Package store is the typed facade over the Redis-backed keyspace:
// every persistent tinymem operation is exposed as a single logical
// call, atomic where it touches more than one key.
package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/advpropsys/tinymem/internal/apierr"
	"github.com/advpropsys/tinymem/internal/logging"
)

// Store is the facade over the persistent keyspace, backed by a
// pooled *redis.Client. It is safe for concurrent use; the pool is
// the only shared mutable resource.
type Store struct {
	rdb    *redis.Client
	log    logging.Logger
	ttl    time.Duration // claude-session mapping TTL
	artCap int64
}

// Options configures a new Store.
type Options struct {
	URL        string
	PoolSize   int
	MappingTTL time.Duration
	ArtifactCap int64
	Logger     logging.Logger
}

// New parses url and opens a pooled Redis connection, mirroring the
// teacher's constructor-injected *redis.Client (internal/websocket/hub.go
// takes one directly; here the Store owns and builds it).
func New(opts Options) (*Store, error) {
	parsed, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, apierr.Internalf("parse redis url: %v", err)
	}
	if opts.PoolSize > 0 {
		parsed.PoolSize = opts.PoolSize
	} else {
		parsed.PoolSize = 8
	}
	rdb := redis.NewClient(parsed)
	return &Store{
		rdb:    rdb,
		log:    opts.Logger,
		ttl:    opts.MappingTTL,
		artCap: opts.ArtifactCap,
	}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.rdb.Close() }

// Ping checks backend reachability for the /healthz admin endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		return s.rdb.Ping(ctx).Err()
	})
}

// AnswerChannel names the pub/sub channel a given question's answer is
// delivered on.
func (s *Store) AnswerChannel(qid string) string { return answerChannel(qid) }

// Subscribe exposes the raw pub/sub subscription used by Rendezvous to
// receive cross-process answer delivery on answers:<qid>. Rendezvous
// opens one subscription per outstanding question rather than a
// single long-lived subscription, since questions are not a fixed,
// long-lived recipient set.
func (s *Store) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, channel)
}

// Publish publishes a message on channel (used by Rendezvous.Deliver and
// Rendezvous.ExpireForDone).
func (s *Store) Publish(ctx context.Context, channel, payload string) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		return s.rdb.Publish(ctx, channel, payload).Err()
	})
}

// withRetry retries a transient backend failure once with a 100ms
// backoff before surfacing backend_unavailable.
func (s *Store) withRetry(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || err == redis.Nil {
		return err
	}
	if !isTransient(err) {
		return apierr.Internalf("backend error: %v", err)
	}
	if s.log != nil {
		s.log.Warn("store", "transient backend error, retrying", map[string]any{"error": err.Error()})
	}
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return apierr.BackendUnavailablef("context cancelled during backoff: %v", ctx.Err())
	}
	err = fn(ctx)
	if err == nil || err == redis.Nil {
		return err
	}
	return apierr.BackendUnavailablef("backend unavailable: %v", err)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	switch err {
	case redis.Nil:
		return false
	}
	// Network timeouts / connection resets surface from the pool as
	// generic errors; go-redis does not export a typed sentinel for
	// them, so this is a pragmatic substring check on the common cases
	// (timeout, connection reset, EOF, broken pipe).
	msg := err.Error()
	return containsAny(msg, "i/o timeout", "connection reset", "EOF", "broken pipe", "use of closed network connection")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}
