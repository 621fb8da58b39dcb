package alerts

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/newsbell/internal/clock"
	"github.com/aristath/newsbell/internal/domain"
)

type recorder struct {
	mu    sync.Mutex
	links []string
	fired chan string
}

func newRecorder() *recorder {
	return &recorder{fired: make(chan string, 16)}
}

func (r *recorder) fire(_ context.Context, item domain.CandidateItem) {
	r.mu.Lock()
	r.links = append(r.links, item.Link)
	r.mu.Unlock()
	r.fired <- item.Link
}

func (r *recorder) Links() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.links...)
}

func (r *recorder) await(t *testing.T) string {
	t.Helper()
	select {
	case link := <-r.fired:
		return link
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alert")
		return ""
	}
}

var start = time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)

func item(link string) domain.CandidateItem {
	return domain.CandidateItem{Title: link, Link: link, PublishedAt: start, SourceLabel: "news"}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestArm_FiresOnceAfterDelay(t *testing.T) {
	clk := clock.NewFake(start)
	rec := newRecorder()
	s := NewScheduler(clk, rec.fire, zerolog.Nop())

	h := s.Arm(item("a"), 10*time.Minute)
	assert.Equal(t, start.Add(10*time.Minute), h.FireAt)
	assert.Equal(t, start, h.ArmedAt)

	clk.Advance(9 * time.Minute)
	assert.Len(t, s.Pending(), 1)
	assert.Empty(t, rec.Links())

	clk.Advance(time.Minute)
	assert.Equal(t, "a", rec.await(t))
	require.NoError(t, s.Wait(waitCtx(t)))

	clk.Advance(time.Hour)
	assert.Equal(t, []string{"a"}, rec.Links())
	assert.Empty(t, s.Pending())
}

func TestArm_TimersAreIndependent(t *testing.T) {
	clk := clock.NewFake(start)
	rec := newRecorder()
	s := NewScheduler(clk, rec.fire, zerolog.Nop())

	s.Arm(item("slow"), 10*time.Minute)
	clk.Advance(time.Minute)
	s.Arm(item("fast"), 2*time.Minute)

	pending := s.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "fast", pending[0].Item.Link)
	assert.Equal(t, "slow", pending[1].Item.Link)

	clk.Advance(2 * time.Minute)
	assert.Equal(t, "fast", rec.await(t))

	require.Eventually(t, func() bool { return len(s.Pending()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "slow", s.Pending()[0].Item.Link)

	clk.Advance(10 * time.Minute)
	assert.Equal(t, "slow", rec.await(t))
	require.NoError(t, s.Wait(waitCtx(t)))
}

func TestArm_PanicIsRecovered(t *testing.T) {
	clk := clock.NewFake(start)
	s := NewScheduler(clk, func(context.Context, domain.CandidateItem) { panic("sink exploded") }, zerolog.Nop())

	s.Arm(item("a"), 0)
	require.NoError(t, s.Wait(waitCtx(t)))
	assert.Empty(t, s.Pending())
}

func TestShutdown_DeliveredTimersLeaveNoSpool(t *testing.T) {
	clk := clock.NewFake(start)
	rec := newRecorder()
	s := NewScheduler(clk, rec.fire, zerolog.Nop())
	spool := filepath.Join(t.TempDir(), "pending_alerts.msgpack")

	s.Arm(item("a"), time.Minute)
	clk.Advance(time.Minute)

	require.NoError(t, s.Shutdown(waitCtx(t), spool))
	_, err := os.Stat(spool)
	assert.True(t, os.IsNotExist(err))
}

func TestShutdown_SpoolsAndRestores(t *testing.T) {
	clk := clock.NewFake(start)
	rec := newRecorder()
	s := NewScheduler(clk, rec.fire, zerolog.Nop())
	spool := filepath.Join(t.TempDir(), "data", "pending_alerts.msgpack")

	s.Arm(item("soon"), 5*time.Minute)
	s.Arm(item("later"), 30*time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx, spool))
	require.FileExists(t, spool)

	// next process, started after "soon" was due
	clk2 := clock.NewFake(start.Add(10 * time.Minute))
	rec2 := newRecorder()
	s2 := NewScheduler(clk2, rec2.fire, zerolog.Nop())

	n, err := s2.Restore(spool)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoFileExists(t, spool)

	assert.Equal(t, "soon", rec2.await(t))

	require.Eventually(t, func() bool { return len(s2.Pending()) == 1 }, time.Second, 5*time.Millisecond)
	pending := s2.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "later", pending[0].Item.Link)
	assert.Equal(t, start.Add(30*time.Minute), pending[0].FireAt.UTC())

	clk2.Advance(20 * time.Minute)
	assert.Equal(t, "later", rec2.await(t))
}

func TestShutdown_SpooledTimerFiresOnlyAfterRestore(t *testing.T) {
	clk := clock.NewFake(start)
	rec := newRecorder()
	s := NewScheduler(clk, rec.fire, zerolog.Nop())
	spool := filepath.Join(t.TempDir(), "pending_alerts.msgpack")

	s.Arm(item("a"), 10*time.Minute)

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Shutdown(expired, spool))
	require.FileExists(t, spool)
	assert.Empty(t, s.Pending())

	// the old process lives on past the fire time
	clk.Advance(10 * time.Minute)
	require.NoError(t, s.Wait(waitCtx(t)))
	assert.Empty(t, rec.Links())

	s2 := NewScheduler(clock.NewFake(start.Add(10*time.Minute)), rec.fire, zerolog.Nop())
	n, err := s2.Restore(spool)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "a", rec.await(t))
	require.NoError(t, s2.Wait(waitCtx(t)))
	assert.Equal(t, []string{"a"}, rec.Links())
}

func TestShutdown_UnwritableSpoolKeepsTimersArmed(t *testing.T) {
	clk := clock.NewFake(start)
	rec := newRecorder()
	s := NewScheduler(clk, rec.fire, zerolog.Nop())

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	spool := filepath.Join(blocker, "pending_alerts.msgpack")

	s.Arm(item("a"), time.Minute)

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Shutdown(expired, spool))
	assert.Len(t, s.Pending(), 1)

	clk.Advance(time.Minute)
	assert.Equal(t, "a", rec.await(t))
}

func TestRestore_MissingSpool(t *testing.T) {
	s := NewScheduler(clock.NewFake(start), newRecorder().fire, zerolog.Nop())

	n, err := s.Restore(filepath.Join(t.TempDir(), "none.msgpack"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRestore_CorruptSpool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.msgpack")
	require.NoError(t, os.WriteFile(path, []byte{0xc1, 0xff}, 0644))

	s := NewScheduler(clock.NewFake(start), newRecorder().fire, zerolog.Nop())
	_, err := s.Restore(path)
	assert.Error(t, err)
}
