package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "sent_links.txt")
	l, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	return l, path
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	l, _ := newTestLedger(t)

	assert.Equal(t, 0, l.Len())
	assert.False(t, l.IsSeen("https://example.com/a"))
}

func TestOpen_RehydratesExistingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent_links.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://a\n\n  https://b  \nhttps://a\n"), 0644))

	l, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 2, l.Len())
	assert.True(t, l.IsSeen("https://a"))
	assert.True(t, l.IsSeen("https://b"))
}

func TestMarkSeen_PersistsAcrossRestart(t *testing.T) {
	l, path := newTestLedger(t)

	l.MarkSeen("https://example.com/a")
	assert.True(t, l.IsSeen("https://example.com/a"))

	reopened, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, reopened.IsSeen("https://example.com/a"))
}

func TestMarkSeen_Idempotent(t *testing.T) {
	l, path := newTestLedger(t)

	l.MarkSeen("a")
	l.MarkSeen("a")
	l.MarkSeen(" a ")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(data))
	assert.Equal(t, 1, l.Len())
}

func TestMarkIfNew(t *testing.T) {
	l, _ := newTestLedger(t)

	assert.True(t, l.MarkIfNew("a"))
	assert.False(t, l.MarkIfNew("a"))
	assert.False(t, l.MarkIfNew(""))
	assert.False(t, l.MarkIfNew("bad\nid"))
	assert.Equal(t, 1, l.Len())
}

func TestMarkIfNew_ConcurrentWritersRecordOnce(t *testing.T) {
	l, path := newTestLedger(t)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.MarkIfNew("https://example.com/shared") {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/shared\n", string(data))
}

func TestMarkSeen_WriteFailureDegradesToMemory(t *testing.T) {
	l, path := newTestLedger(t)
	l.openFile = func(string) (*os.File, error) {
		return nil, errors.New("disk full")
	}

	assert.NotPanics(t, func() { l.MarkSeen("a") })
	assert.True(t, l.IsSeen("a"))
	assert.True(t, l.Degraded())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
