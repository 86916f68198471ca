package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advpropsys/tinymem/internal/logging"
	"github.com/advpropsys/tinymem/internal/model"
)

// newTestStore opens a Store against a real Redis instance (default
// redis://127.0.0.1:6379/15, overridable with TINYMEM_TEST_REDIS_URL) and
// skips the test outright when nothing answers, the same way the
// integration suite for the HTTP layer requires a reachable database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TINYMEM_TEST_REDIS_URL")
	if url == "" {
		url = "redis://127.0.0.1:6379/15"
	}
	st, err := New(Options{URL: url, MappingTTL: time.Hour, ArtifactCap: 50 << 20, Logger: logging.NewSilent(os.DevNull)})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		st.Close()
		t.Skipf("no reachable redis at %s: %v", url, err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestCreateAndGetSession(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, "claude-code", "/tmp/proj", "", 1000)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	got, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "claude-code", got.Agent)
	assert.Equal(t, "/tmp/proj", got.Cwd)
}

func TestStartSessionReusesClaudeMapping(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id1, reused1, err := st.StartSession(ctx, "claude-abc", "claude-code", "/tmp/x", 1000)
	require.NoError(t, err)
	assert.False(t, reused1)

	id2, reused2, err := st.StartSession(ctx, "claude-abc", "claude-code", "/tmp/x", 1001)
	require.NoError(t, err)
	assert.True(t, reused2)
	assert.Equal(t, id1, id2)
}

func TestMarkDoneExpiresOutstandingQuestions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, "claude-code", "/tmp", "", 1000)
	require.NoError(t, err)
	q, err := st.CreateQuestion(ctx, sess.ID, "proceed?", 1001)
	require.NoError(t, err)

	expiredIDs, err := st.MarkDone(ctx, sess.ID, 1002)
	require.NoError(t, err)
	require.Len(t, expiredIDs, 1)
	assert.Equal(t, q.ID, expiredIDs[0])

	got, err := st.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.True(t, got.Terminal())
}

func TestAnswerQuestionIsOneShot(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, "claude-code", "/tmp", "", 1000)
	require.NoError(t, err)
	q, err := st.CreateQuestion(ctx, sess.ID, "proceed?", 1001)
	require.NoError(t, err)

	answered, err := st.AnswerQuestion(ctx, q.ID, "yes", 1002)
	require.NoError(t, err)
	assert.Equal(t, "yes", answered.Answer)

	// A second delivery on an already-terminal question is a no-op: it
	// returns the existing record unchanged rather than an error, so a
	// racing delivery from the TUI and a cross-process pub/sub replay
	// can't clobber the first answer.
	again, err := st.AnswerQuestion(ctx, q.ID, "no", 1003)
	require.NoError(t, err)
	assert.Equal(t, "yes", again.Answer, "second AnswerQuestion must preserve the original answer")
}

func TestAnswerAndExpireRaceLeavesExactlyOneTransition(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, "claude-code", "/tmp", "", 1000)
	require.NoError(t, err)
	q, err := st.CreateQuestion(ctx, sess.ID, "proceed?", 1001)
	require.NoError(t, err)

	const n = 20
	results := make(chan *model.Question, 2*n)
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			got, err := st.AnswerQuestion(ctx, q.ID, "yes", 1002)
			require.NoError(t, err)
			results <- got
		}()
		go func() {
			defer wg.Done()
			got, err := st.ExpireQuestion(ctx, q.ID, 1003)
			require.NoError(t, err)
			results <- got
		}()
	}
	wg.Wait()
	close(results)

	var state model.QuestionState
	for got := range results {
		if state == "" {
			state = got.State
			continue
		}
		assert.Equal(t, state, got.State, "every caller must observe the same winning terminal state")
	}

	final, err := st.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, state, final.State)
}

func TestChainLinkAndLoad(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	slug1, err := st.ChainLink(ctx, "refactor-auth", "", "started the refactor", 1000)
	require.NoError(t, err)
	slug2, err := st.ChainLink(ctx, "refactor-auth", "", "finished the refactor", 1001)
	require.NoError(t, err)
	assert.NotEqual(t, slug1, slug2, "a repeated slug must be given a numeric suffix")

	links, total, err := st.ChainLoad(ctx, "refactor-auth", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, links, 2)
}

func TestSaveAndDeleteArtifact(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tmp, err := os.CreateTemp(t.TempDir(), "artifact-*.txt")
	require.NoError(t, err)
	_, err = tmp.WriteString("design notes")
	require.NoError(t, err)
	tmp.Close()

	art, err := st.SaveArtifact(ctx, tmp.Name(), "Design notes", "", nil, 1000)
	require.NoError(t, err)
	require.NotEmpty(t, art.ID)

	require.NoError(t, st.DeleteArtifact(ctx, art.ID))
	_, err = st.GetArtifact(ctx, art.ID)
	assert.Error(t, err, "GetArtifact should fail after delete")
}
