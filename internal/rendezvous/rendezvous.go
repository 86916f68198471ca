// Package rendezvous turns a persisted Question (internal/store) into
// a synchronous wait for the HTTP/stdio ask call. The in-process
// waiter table is strictly an optimization: correctness depends only
// on the Store's authoritative record and the Redis pub/sub channel,
// never on the in-process signal alone.
//
// Rendezvous opens one pub/sub subscription per outstanding question
// (answers:<qid>) rather than a single long-lived subscription that
// dispatches by payload, because questions are not a long-lived,
// addressable recipient set — each one is answered at most once and
// then torn down.
package rendezvous

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/advpropsys/tinymem/internal/apierr"
	"github.com/advpropsys/tinymem/internal/eventbus"
	"github.com/advpropsys/tinymem/internal/logging"
	"github.com/advpropsys/tinymem/internal/model"
	"github.com/advpropsys/tinymem/internal/store"
)

// Outcome is the resolved state of an ask call.
type Outcome struct {
	Answer   string
	Expired  bool
	SessDone bool
}

type waiter struct {
	signal chan struct{}
}

// Rendezvous owns the in-process qid -> signal table. The persistent
// Question record lives entirely in Store.
type Rendezvous struct {
	store *store.Store
	bus   *eventbus.Bus
	log   logging.Logger

	mu      sync.Mutex
	waiters map[string]*waiter
}

func New(s *store.Store, bus *eventbus.Bus, log logging.Logger) *Rendezvous {
	return &Rendezvous{store: s, bus: bus, log: log, waiters: make(map[string]*waiter)}
}

// Ask runs the full blocking ask algorithm end to end.
func (r *Rendezvous) Ask(ctx context.Context, sessionID, question string, deadline time.Duration, now func() int64) (Outcome, error) {
	q, err := r.store.CreateQuestion(ctx, sessionID, question, now())
	if err != nil {
		if e, ok := apierr.As(err); ok && e.Kind == apierr.Conflict {
			return Outcome{SessDone: true}, nil
		}
		return Outcome{}, err
	}
	r.bus.Publish(eventbus.Notification{Kind: eventbus.KindQuestion, ID: q.ID})

	w := &waiter{signal: make(chan struct{}, 1)}
	r.mu.Lock()
	r.waiters[q.ID] = w
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.waiters, q.ID)
		r.mu.Unlock()
	}()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pubsub := r.store.Subscribe(subCtx, r.store.AnswerChannel(q.ID))
	defer pubsub.Close()
	subCh := pubsub.Channel()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-w.signal:
		return r.resolve(ctx, q.ID)
	case <-subCh:
		return r.resolve(ctx, q.ID)
	case <-timer.C:
		return r.expire(ctx, q.ID, now())
	case <-ctx.Done():
		// HTTP client disconnects do not cancel the question:
		// it remains pending until answered or expired by the caller
		// that eventually reads it, or by the sweep loop.
		return Outcome{}, apierr.Timeoutf("request cancelled while waiting")
	}
}

func (r *Rendezvous) resolve(ctx context.Context, qid string) (Outcome, error) {
	outcome, terminal, err := r.readOutcome(ctx, qid)
	if err != nil {
		return Outcome{}, err
	}
	if terminal {
		return outcome, nil
	}
	// Race: signalled before the record was visible to this reader's
	// connection. Wait once more on the record directly rather than
	// failing the caller for a timing window that closes in
	// milliseconds.
	time.Sleep(25 * time.Millisecond)
	outcome, terminal, err = r.readOutcome(ctx, qid)
	if err != nil {
		return Outcome{}, err
	}
	if terminal {
		return outcome, nil
	}
	return Outcome{}, apierr.Internalf("question %s not terminal after signal", qid)
}

func (r *Rendezvous) readOutcome(ctx context.Context, qid string) (Outcome, bool, error) {
	q, err := r.store.GetQuestion(ctx, qid)
	if err != nil {
		return Outcome{}, false, err
	}
	switch q.State {
	case model.QuestionAnswered:
		return Outcome{Answer: q.Answer}, true, nil
	case model.QuestionExpired:
		return Outcome{Expired: true}, true, nil
	default:
		return Outcome{}, false, nil
	}
}

func (r *Rendezvous) expire(ctx context.Context, qid string, now int64) (Outcome, error) {
	q, err := r.store.ExpireQuestion(ctx, qid, now)
	if err != nil {
		return Outcome{}, err
	}
	if q.State == model.QuestionExpired {
		r.bus.Publish(eventbus.Notification{Kind: eventbus.KindQuestion, ID: qid})
		return Outcome{Expired: true}, nil
	}
	// Raced with an answer: return that answer instead of expired.
	return Outcome{Answer: q.Answer}, nil
}

// Deliver answers a pending question (called by the TUI submit path, or
// any other writer). It is idempotent: repeated deliveries for a
// terminal question return the stored answer without modification.
func (r *Rendezvous) Deliver(ctx context.Context, qid, answer string, now int64) (*model.Question, error) {
	q, err := r.store.AnswerQuestion(ctx, qid, answer, now)
	if err != nil {
		return nil, err
	}
	r.signalLocal(qid)
	payload, _ := json.Marshal(struct {
		Answer string `json:"answer"`
	}{Answer: q.Answer})
	if pubErr := r.store.Publish(ctx, r.store.AnswerChannel(qid), string(payload)); pubErr != nil && r.log != nil {
		r.log.Warn("rendezvous", "failed to publish answer", map[string]any{"qid": qid, "error": pubErr.Error()})
	}
	r.bus.Publish(eventbus.Notification{Kind: eventbus.KindQuestion, ID: qid})
	return q, nil
}

// ExpireForDone wakes the waiters of questions the Store has already
// moved to expired (by MarkDone or by shutdown): it signals every local
// waiter and publishes so remote waiters (if any) wake too. It does not
// change any question record itself.
func (r *Rendezvous) ExpireForDone(ctx context.Context, expiredIDs []string) {
	for _, qid := range expiredIDs {
		r.signalLocal(qid)
		_ = r.store.Publish(ctx, r.store.AnswerChannel(qid), `{"expired":true}`)
		r.bus.Publish(eventbus.Notification{Kind: eventbus.KindQuestion, ID: qid})
	}
}

func (r *Rendezvous) signalLocal(qid string) {
	r.mu.Lock()
	w, ok := r.waiters[qid]
	r.mu.Unlock()
	if ok {
		select {
		case w.signal <- struct{}{}:
		default:
		}
	}
}

// Sweep expires any question whose deadline has passed even if its
// waiter's own timer somehow never fired — a safety net run once per
// second by the server's top-level loop.
func (r *Rendezvous) Sweep(ctx context.Context, deadline time.Duration, now int64) {
	pending, err := r.store.GlobalPendingQuestions(ctx)
	if err != nil {
		if r.log != nil {
			r.log.Warn("rendezvous", "sweep failed to list pending questions", map[string]any{"error": err.Error()})
		}
		return
	}
	cutoff := now - int64(deadline/time.Second)
	for _, q := range pending {
		if q.CreatedAt <= cutoff {
			if _, err := r.expire(ctx, q.ID, now); err != nil && r.log != nil {
				r.log.Warn("rendezvous", "sweep expire failed", map[string]any{"qid": q.ID, "error": err.Error()})
			}
		}
	}
}
