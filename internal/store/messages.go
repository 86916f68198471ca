package store

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/advpropsys/tinymem/internal/apierr"
	"github.com/advpropsys/tinymem/internal/model"
)

// AppendMsg appends a message entry, refusing on a done session.
// /session/:id/msg and /session/:id/summary share this path, summary
// simply using role "summary".
func (s *Store) AppendMsg(ctx context.Context, id, role, content string, now int64) error {
	done, err := s.IsDone(ctx, id)
	if err != nil {
		return err
	}
	if done {
		return apierr.Conflictf("session %s is done", id)
	}
	msg := model.Message{Role: role, Content: content, TS: now}
	payload, err := json.Marshal(msg)
	if err != nil {
		return apierr.Internalf("marshal message: %v", err)
	}
	return s.withRetry(ctx, func(ctx context.Context) error {
		return s.rdb.RPush(ctx, keySessionMsgs(id), payload).Err()
	})
}

// GetMessages returns the message log for a session, oldest first.
func (s *Store) GetMessages(ctx context.Context, id string) ([]model.Message, error) {
	var raws []string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.LRange(ctx, keySessionMsgs(id), 0, -1).Result()
		raws = v
		return err
	})
	if err != nil && err != redis.Nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(raws))
	for _, r := range raws {
		var m model.Message
		if err := json.Unmarshal([]byte(r), &m); err == nil {
			out = append(out, m)
		}
	}
	return out, nil
}
