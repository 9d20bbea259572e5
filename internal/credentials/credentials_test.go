package credentials

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "creds.json"))

	require.NoError(t, s.Set("example.com", "alice", "hunter2"))

	rec, ok := s.Get("example.com")
	require.True(t, ok)
	require.Equal(t, "alice", rec.Username)
	require.Equal(t, "hunter2", rec.Secret)
	require.False(t, rec.SavedAt.IsZero())
}

func TestGetMissing(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "creds.json"))
	_, ok := s.Get("nowhere.com")
	require.False(t, ok)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	s1 := Open(path)
	require.NoError(t, s1.Set("example.com", "alice", "hunter2"))

	s2 := Open(path)
	rec, ok := s2.Get("example.com")
	require.True(t, ok)
	require.Equal(t, "alice", rec.Username)
}

func TestDomainOf(t *testing.T) {
	require.Equal(t, "example.com", DomainOf("https://example.com/path?x=1"))
	require.Equal(t, "sub.example.com", DomainOf("http://sub.example.com"))
	require.Equal(t, "", DomainOf("not-a-url"))
}
