package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/advpropsys/tinymem/internal/apierr"
	"github.com/advpropsys/tinymem/internal/model"
)

// CreateQuestion writes a pending question and indexes it in both the
// per-session and global pending sets, refusing on a done session.
func (s *Store) CreateQuestion(ctx context.Context, sessionID, text string, now int64) (*model.Question, error) {
	done, err := s.IsDone(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, apierr.Conflictf("session %s is done", sessionID)
	}

	q := &model.Question{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Question:  text,
		CreatedAt: now,
		State:     model.QuestionPending,
	}
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, apierr.Internalf("marshal question: %v", err)
	}
	err = s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, keyQuestion(q.ID), "json", payload)
			pipe.SAdd(ctx, keySessionPending(sessionID), q.ID)
			pipe.ZAdd(ctx, keyPendingQueue(), redis.Z{Score: float64(now), Member: q.ID})
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// GetQuestion reads a question record, or apierr.NotFound.
func (s *Store) GetQuestion(ctx context.Context, qid string) (*model.Question, error) {
	var raw string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.HGet(ctx, keyQuestion(qid), "json").Result()
		raw = v
		return err
	})
	if err == redis.Nil {
		return nil, apierr.NotFoundf("question %s not found", qid)
	}
	if err != nil {
		return nil, err
	}
	var q model.Question
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, apierr.Internalf("unmarshal question %s: %v", qid, err)
	}
	return &q, nil
}

// maxCASAttempts bounds the optimistic-lock retry loop in
// transitionQuestion. Contention is a single TUI delivery racing a
// single sweep tick on the same question, so this converges almost
// always on the first or second attempt; it exists only as a backstop
// against a pathological WATCH storm.
const maxCASAttempts = 10

// AnswerQuestion atomically transitions pending->answered via a
// redis.Tx WATCH/MULTI on the question's key. If the question is
// already terminal, it returns the existing terminal record rather
// than an error, so delivering an answer twice is safe. The WATCH
// guards against ExpireQuestion (the ask-timer or the sweep loop)
// observing the same pending record concurrently: exactly one of the
// two writers commits, the other sees its transaction fail and re-reads
// the now-terminal record.
func (s *Store) AnswerQuestion(ctx context.Context, qid, answer string, now int64) (*model.Question, error) {
	return s.transitionQuestion(ctx, qid, func(q *model.Question) bool {
		q.State = model.QuestionAnswered
		q.Answer = answer
		q.AnsweredAt = now
		return true
	})
}

// ExpireQuestion atomically transitions pending->expired. Same
// WATCH-guarded CAS as AnswerQuestion, and idempotent in the same sense.
func (s *Store) ExpireQuestion(ctx context.Context, qid string, now int64) (*model.Question, error) {
	return s.transitionQuestion(ctx, qid, func(q *model.Question) bool {
		q.State = model.QuestionExpired
		q.AnsweredAt = now
		return true
	})
}

// expireQuestionUnchecked is used by MarkDone, which already knows the
// set of pending ids and wants a bool rather than the full record.
func (s *Store) expireQuestionUnchecked(ctx context.Context, qid string, now int64) (bool, error) {
	q, err := s.ExpireQuestion(ctx, qid, now)
	if err != nil {
		return false, err
	}
	return q.State == model.QuestionExpired, nil
}

// transitionQuestion reads the question inside a WATCH on its key, lets
// apply mutate it when still pending, and commits the write in the same
// MULTI/EXEC. A concurrent writer touching the watched key between the
// read and the commit aborts the transaction with redis.TxFailedErr;
// the loop re-reads and retries, so the question ends up terminal
// exactly once no matter how many callers race it.
func (s *Store) transitionQuestion(ctx context.Context, qid string, apply func(q *model.Question) bool) (*model.Question, error) {
	key := keyQuestion(qid)
	var result *model.Question

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.HGet(ctx, key, "json").Result()
			if err == redis.Nil {
				return apierr.NotFoundf("question %s not found", qid)
			}
			if err != nil {
				return err
			}
			var q model.Question
			if err := json.Unmarshal([]byte(raw), &q); err != nil {
				return apierr.Internalf("unmarshal question %s: %v", qid, err)
			}
			if q.Terminal() || !apply(&q) {
				result = &q
				return nil
			}
			payload, err := json.Marshal(&q)
			if err != nil {
				return apierr.Internalf("marshal question: %v", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, "json", payload)
				pipe.SRem(ctx, keySessionPending(q.SessionID), q.ID)
				pipe.ZRem(ctx, keyPendingQueue(), q.ID)
				return nil
			})
			if err != nil {
				return err
			}
			result = &q
			return nil
		}, key)

		switch {
		case err == nil:
			return result, nil
		case err == redis.TxFailedErr:
			continue // another writer touched the key between our read and commit; retry
		case isTransient(err):
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return nil, apierr.BackendUnavailablef("context cancelled during backoff: %v", ctx.Err())
			}
			continue
		default:
			if _, ok := apierr.As(err); ok {
				return nil, err
			}
			return nil, apierr.Internalf("backend error: %v", err)
		}
	}
	return nil, apierr.BackendUnavailablef("question %s: too much contention on its terminal transition", qid)
}

// PendingQuestionIDs lists a session's still-pending question ids.
func (s *Store) PendingQuestionIDs(ctx context.Context, sessionID string) ([]string, error) {
	var ids []string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.SMembers(ctx, keySessionPending(sessionID)).Result()
		ids = v
		return err
	})
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return ids, nil
}

// GlobalPendingQuestions lists every pending question across all
// sessions, ordered by creation time, for the TUI.
func (s *Store) GlobalPendingQuestions(ctx context.Context) ([]*model.Question, error) {
	var ids []string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		v, err := s.rdb.ZRangeByScore(ctx, keyPendingQueue(), &redis.ZRangeBy{Min: "-inf", Max: "+inf"}).Result()
		ids = v
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Question, 0, len(ids))
	for _, id := range ids {
		q, err := s.GetQuestion(ctx, id)
		if err != nil {
			if e, ok := apierr.As(err); ok && e.Kind == apierr.NotFound {
				continue
			}
			return nil, err
		}
		if q.State == model.QuestionPending {
			out = append(out, q)
		}
	}
	return out, nil
}
