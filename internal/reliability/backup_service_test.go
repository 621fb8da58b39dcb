package reliability

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/newsbell/internal/clock"
)

type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Upload(_ context.Context, key string, body io.Reader) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ObjectInfo
	for k, v := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var backupNow = time.Date(2025, 10, 14, 3, 0, 0, 0, time.UTC)

func writeLedger(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sent_links.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLedgerBackup_UploadsDatedAndLatest(t *testing.T) {
	store := newMemStore()
	path := writeLedger(t, "https://a\nhttps://b\n")
	b := NewLedgerBackup(store, path, 30, clock.NewFake(backupNow), time.UTC, zerolog.Nop())

	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, []string{
		"ledger/sent_links-2025-10-14.txt",
		"ledger/sent_links-latest.txt",
	}, store.keys())
	assert.Equal(t, "https://a\nhttps://b\n", string(store.objects["ledger/sent_links-latest.txt"]))
}

func TestLedgerBackup_MissingLedgerIsNotAnError(t *testing.T) {
	store := newMemStore()
	b := NewLedgerBackup(store, filepath.Join(t.TempDir(), "missing.txt"), 30, clock.NewFake(backupNow), time.UTC, zerolog.Nop())

	require.NoError(t, b.Run(context.Background()))
	assert.Empty(t, store.keys())
}

func TestLedgerBackup_UploadFailure(t *testing.T) {
	store := newMemStore()
	store.uploadErr = errors.New("access denied")
	b := NewLedgerBackup(store, writeLedger(t, "a\n"), 30, clock.NewFake(backupNow), time.UTC, zerolog.Nop())

	assert.ErrorContains(t, b.Run(context.Background()), "access denied")
}

func TestLedgerBackup_RotationKeepsNewestAndRecent(t *testing.T) {
	store := newMemStore()
	for _, day := range []string{"2025-07-01", "2025-07-02", "2025-07-03", "2025-08-01", "2025-10-01"} {
		store.objects["ledger/sent_links-"+day+".txt"] = []byte("x")
	}
	store.objects["ledger/sent_links-garbage.txt"] = []byte("x")

	b := NewLedgerBackup(store, writeLedger(t, "a\n"), 30, clock.NewFake(backupNow), time.UTC, zerolog.Nop())
	require.NoError(t, b.Run(context.Background()))

	// Newest three (10-14, 10-01, 08-01) always survive; older ones past
	// the retention window go.
	assert.Equal(t, []string{
		"ledger/sent_links-2025-08-01.txt",
		"ledger/sent_links-2025-10-01.txt",
		"ledger/sent_links-2025-10-14.txt",
		"ledger/sent_links-garbage.txt",
		"ledger/sent_links-latest.txt",
	}, store.keys())

	backups, err := b.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 3)
	assert.Equal(t, "ledger/sent_links-2025-10-14.txt", backups[0].Key)
}

func TestLedgerBackup_ZeroRetentionKeepsEverything(t *testing.T) {
	store := newMemStore()
	for _, day := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"} {
		store.objects["ledger/sent_links-"+day+".txt"] = []byte("x")
	}

	b := NewLedgerBackup(store, writeLedger(t, "a\n"), 0, clock.NewFake(backupNow), time.UTC, zerolog.Nop())
	require.NoError(t, b.Run(context.Background()))
	assert.Len(t, store.keys(), 6)
}
