package cache

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"https://x.com/a/?q=1#h": "https://x.com/a",
		"https://x.com/a/":       "https://x.com/a",
		"https://x.com/a":        "https://x.com/a",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeURL(in), "input %q", in)
	}
}

func TestSetAndGetHit(t *testing.T) {
	s := Open(Options{Path: filepath.Join(t.TempDir(), "cache.json")})

	analysis, _ := json.Marshal(map[string]string{"title": "Home"})
	s.Set("https://x.com/?q=1", "hash1", analysis)

	got, ok := s.Get("https://x.com/", "hash1")
	require.True(t, ok)
	require.JSONEq(t, string(analysis), string(got))
}

func TestGetMissOnHashMismatch(t *testing.T) {
	s := Open(Options{Path: filepath.Join(t.TempDir(), "cache.json")})
	s.Set("https://x.com", "hash1", json.RawMessage(`{}`))

	_, ok := s.Get("https://x.com", "hash2")
	require.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	s := Open(Options{Path: filepath.Join(t.TempDir(), "cache.json")})
	s.Set("https://x.com", "hash1", json.RawMessage(`{}`))
	s.Invalidate("https://x.com")

	_, ok := s.Get("https://x.com", "hash1")
	require.False(t, ok)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s1 := Open(Options{Path: path})
	s1.Set("https://x.com", "hash1", json.RawMessage(`{"a":1}`))

	s2 := Open(Options{Path: path})
	got, ok := s2.Get("https://x.com", "hash1")
	require.True(t, ok)
	require.JSONEq(t, `{"a":1}`, string(got))
}

func TestEvictsLeastRecentlyHit(t *testing.T) {
	s := Open(Options{Path: filepath.Join(t.TempDir(), "cache.json"), MaxEntries: 2})

	s.Set("https://a.com", "h", json.RawMessage(`{}`))
	s.Set("https://b.com", "h", json.RawMessage(`{}`))
	s.Get("https://b.com", "h") // touch b so it is most recently hit

	s.Set("https://c.com", "h", json.RawMessage(`{}`))

	require.Equal(t, 2, s.Len())
	_, bOK := s.Get("https://b.com", "h")
	_, cOK := s.Get("https://c.com", "h")
	require.True(t, bOK)
	require.True(t, cOK)
}

func TestExpiredEntryTreatedAsAbsent(t *testing.T) {
	s := Open(Options{Path: filepath.Join(t.TempDir(), "cache.json"), MaxAge: time.Millisecond})
	s.Set("https://x.com", "h", json.RawMessage(`{}`))
	time.Sleep(5 * time.Millisecond)

	_, ok := s.Get("https://x.com", "h")
	require.False(t, ok)
}
