package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testEntry(credID *uuid.UUID) Entry {
	return Entry{
		Timestamp: time.Now().UTC(),
		CredentialID: credID,
		Action:    ActionHTTPRequest,
		Tool:      "http_request",
		Success:   true,
	}
}

func TestAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l := New(path)

	id := uuid.New()
	require.NoError(t, l.Append(testEntry(&id)))
	require.NoError(t, l.Append(testEntry(nil)))

	all, err := l.Read(ReadFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	filtered, err := l.Read(ReadFilter{CredentialID: &id})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
}

func TestReadNonexistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "audit.jsonl")
	l := New(path)
	entries, err := l.Read(ReadFilter{})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestReadLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l := New(path)
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Append(testEntry(nil)))
	}

	limited, err := l.Read(ReadFilter{Limit: 3})
	require.NoError(t, err)
	require.Len(t, limited, 3)
}

func TestReadDescendingByTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l := New(path)

	e1 := testEntry(nil)
	e1.Timestamp = time.Now().Add(-time.Hour)
	e2 := testEntry(nil)
	e2.Timestamp = time.Now()

	require.NoError(t, l.Append(e1))
	require.NoError(t, l.Append(e2))

	entries, err := l.Read(ReadFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, entries[0].Timestamp.After(entries[1].Timestamp))
}

func TestSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l := New(path)
	require.NoError(t, l.Append(testEntry(nil)))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := l.Read(ReadFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
