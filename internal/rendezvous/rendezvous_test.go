package rendezvous

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advpropsys/tinymem/internal/eventbus"
	"github.com/advpropsys/tinymem/internal/logging"
	"github.com/advpropsys/tinymem/internal/store"
)

// newTestRig mirrors internal/store's own test helper: it needs a real
// Redis for the cross-process pub/sub path Rendezvous relies on, and
// skips cleanly when nothing is listening.
func newTestRig(t *testing.T) (*store.Store, *Rendezvous) {
	t.Helper()
	url := os.Getenv("TINYMEM_TEST_REDIS_URL")
	if url == "" {
		url = "redis://127.0.0.1:6379/15"
	}
	st, err := store.New(store.Options{URL: url, MappingTTL: time.Hour, ArtifactCap: 1 << 20, Logger: logging.NewSilent(os.DevNull)})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		st.Close()
		t.Skipf("no reachable redis at %s: %v", url, err)
	}
	t.Cleanup(func() { st.Close() })

	bus := eventbus.New(16)
	return st, New(st, bus, logging.NewSilent(os.DevNull))
}

func TestAskUnblocksOnDeliver(t *testing.T) {
	st, rz := newTestRig(t)
	ctx := context.Background()
	now := func() int64 { return 1000 }

	sess, err := st.CreateSession(ctx, "claude-code", "/tmp", "", now())
	require.NoError(t, err)

	type askResult struct {
		out Outcome
		err error
	}
	resultCh := make(chan askResult, 1)
	go func() {
		out, err := rz.Ask(ctx, sess.ID, "should I continue?", 5*time.Second, now)
		resultCh <- askResult{out, err}
	}()

	// Give Ask time to register its waiter and subscription before we
	// deliver, otherwise Deliver could race ahead of both wake paths.
	time.Sleep(100 * time.Millisecond)

	pending, err := st.GlobalPendingQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = rz.Deliver(ctx, pending[0].ID, "yes, continue", now())
	require.NoError(t, err)

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		assert.Equal(t, "yes, continue", r.out.Answer)
		assert.False(t, r.out.Expired)
		assert.False(t, r.out.SessDone)
	case <-time.After(3 * time.Second):
		t.Fatal("Ask did not unblock within 3s of Deliver")
	}
}

func TestAskExpiresOnDeadline(t *testing.T) {
	st, rz := newTestRig(t)
	ctx := context.Background()
	now := func() int64 { return 2000 }

	sess, err := st.CreateSession(ctx, "claude-code", "/tmp", "", now())
	require.NoError(t, err)

	out, err := rz.Ask(ctx, sess.ID, "are you there?", 50*time.Millisecond, now)
	require.NoError(t, err)
	assert.True(t, out.Expired)
}

func TestAskOnDoneSessionReturnsSessDone(t *testing.T) {
	st, rz := newTestRig(t)
	ctx := context.Background()
	now := func() int64 { return 3000 }

	sess, err := st.CreateSession(ctx, "claude-code", "/tmp", "", now())
	require.NoError(t, err)
	_, err = st.MarkDone(ctx, sess.ID, now())
	require.NoError(t, err)

	out, err := rz.Ask(ctx, sess.ID, "anyone there?", time.Second, now)
	require.NoError(t, err)
	assert.True(t, out.SessDone)
}

func TestSweepExpiresPastDeadline(t *testing.T) {
	st, rz := newTestRig(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, "claude-code", "/tmp", "", 1000)
	require.NoError(t, err)
	q, err := st.CreateQuestion(ctx, sess.ID, "still there?", 1000)
	require.NoError(t, err)

	rz.Sweep(ctx, 10*time.Second, 1011) // cutoff = 1001, question created at 1000

	got, err := st.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.True(t, got.Terminal())
}
