package store

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/advpropsys/tinymem/internal/apierr"
	"github.com/advpropsys/tinymem/internal/model"
)

// AppendHook appends a hook event and returns its per-session sequence
// number. seq is gap-free and strictly increasing,
// produced by INCR on a dedicated counter key rather than derived from
// list length, so it stays correct even if entries are ever trimmed.
func (s *Store) AppendHook(ctx context.Context, id string, kind model.HookKind, task string, meta any, now int64) (int64, error) {
	done, err := s.IsDone(ctx, id)
	if err != nil {
		return 0, err
	}
	if done {
		return 0, apierr.Conflictf("session %s is done", id)
	}

	var seq int64
	err = s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.Incr(ctx, keySessionSeq(id)).Result()
		seq = v
		return err
	})
	if err != nil {
		return 0, err
	}

	hook := model.Hook{Seq: seq, Kind: kind, Task: task, Meta: meta, TS: now}
	payload, err := json.Marshal(hook)
	if err != nil {
		return 0, apierr.Internalf("marshal hook: %v", err)
	}
	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.rdb.RPush(ctx, keySessionHooks(id), payload).Err()
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// GetHooks returns the hook log for a session, oldest first.
func (s *Store) GetHooks(ctx context.Context, id string) ([]model.Hook, error) {
	var raws []string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.LRange(ctx, keySessionHooks(id), 0, -1).Result()
		raws = v
		return err
	})
	if err != nil && err != redis.Nil {
		return nil, err
	}
	out := make([]model.Hook, 0, len(raws))
	for _, r := range raws {
		var h model.Hook
		if err := json.Unmarshal([]byte(r), &h); err == nil {
			out = append(out, h)
		}
	}
	return out, nil
}
