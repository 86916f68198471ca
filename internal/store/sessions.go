package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/advpropsys/tinymem/internal/apierr"
	"github.com/advpropsys/tinymem/internal/model"
)

// newSessionID generates a 128-bit random, hex-encoded session id.
func newSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", apierr.Internalf("generate session id: %v", err)
	}
	return hex.EncodeToString(b), nil
}

// CreateSession writes a new session record and its indexes atomically.
func (s *Store) CreateSession(ctx context.Context, agent, cwd, name string, now int64) (*model.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	sess := &model.Session{ID: id, Agent: agent, Cwd: cwd, Name: name, CreatedAt: now, Status: model.SessionActive}
	if err := s.writeSessionAndIndexes(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) writeSessionAndIndexes(ctx context.Context, sess *model.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return apierr.Internalf("marshal session: %v", err)
	}
	return s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, keySession(sess.ID), "json", payload)
			pipe.SAdd(ctx, keySessionActive(), sess.ID)
			pipe.ZAdd(ctx, keySessionAll(), redis.Z{Score: float64(sess.CreatedAt), Member: sess.ID})
			return nil
		})
		return err
	})
}

// GetSession reads a session record, or apierr.NotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var raw string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.HGet(ctx, keySession(id), "json").Result()
		raw = v
		return err
	})
	if err == redis.Nil {
		return nil, apierr.NotFoundf("session %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	var sess model.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, apierr.Internalf("unmarshal session %s: %v", id, err)
	}
	return &sess, nil
}

// ListSessions returns all sessions (active and done), newest first
// by created_at, for GET /session.
func (s *Store) ListSessions(ctx context.Context) ([]*model.Session, error) {
	var ids []string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.ZRevRange(ctx, keySessionAll(), 0, -1).Result()
		ids = v
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			if e, ok := apierr.As(err); ok && e.Kind == apierr.NotFound {
				continue
			}
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// StartSession implements /start's idempotent claude-session mapping
// reuse.
func (s *Store) StartSession(ctx context.Context, claudeSessionID, agent, cwd string, now int64) (id string, reused bool, err error) {
	var existing string
	err = s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.Get(ctx, keyClaudeMapping(claudeSessionID)).Result()
		existing = v
		return err
	})
	if err != nil && err != redis.Nil {
		return "", false, err
	}
	if err == nil {
		if sess, getErr := s.GetSession(ctx, existing); getErr == nil {
			// Refresh TTL on reuse within the window.
			_ = s.withRetry(ctx, func(ctx context.Context) error {
				return s.rdb.Expire(ctx, keyClaudeMapping(claudeSessionID), s.ttl).Err()
			})
			return sess.ID, true, nil
		}
	}

	sess, err := s.CreateSession(ctx, agent, cwd, "", now)
	if err != nil {
		return "", false, err
	}
	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.rdb.Set(ctx, keyClaudeMapping(claudeSessionID), sess.ID, s.ttl).Err()
	})
	if err != nil {
		return "", false, err
	}
	return sess.ID, false, nil
}

// MarkDone transitions a session to done, removes it from the active
// index, and expires every still-pending question for it. Idempotent:
// calling it twice returns ok both times and never reverts status.
func (s *Store) MarkDone(ctx context.Context, id string, now int64) ([]string, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	expiredIDs, err := s.PendingQuestionIDs(ctx, id)
	if err != nil {
		return nil, err
	}

	if sess.Status != model.SessionDone {
		sess.Status = model.SessionDone
		payload, err := json.Marshal(sess)
		if err != nil {
			return nil, apierr.Internalf("marshal session: %v", err)
		}
		err = s.withRetry(ctx, func(ctx context.Context) error {
			_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, keySession(id), "json", payload)
				pipe.SRem(ctx, keySessionActive(), id)
				return nil
			})
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	var actuallyExpired []string
	for _, qid := range expiredIDs {
		ok, _ := s.expireQuestionUnchecked(ctx, qid, now)
		if ok {
			actuallyExpired = append(actuallyExpired, qid)
		}
	}
	return actuallyExpired, nil
}

// IsDone reports whether a session is done, for API-layer 409 checks.
func (s *Store) IsDone(ctx context.Context, id string) (bool, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return false, err
	}
	return sess.Status == model.SessionDone, nil
}
