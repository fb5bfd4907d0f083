// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package cookies

import (
	"context"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Exlord/amphtml/core/dom"
)

// memStore is a minimal in-memory Store for tests.
type memStore struct {
	values map[string]string
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (s *memStore) GetCookie(_ context.Context, origin, name string) (string, error) {
	return s.values[origin+"\x00"+name], nil
}

func (s *memStore) SetCookie(_ context.Context, origin, name, value string, _ time.Time) error {
	s.values[origin+"\x00"+name] = value

	return nil
}

func newTestCookies() (*Cookies, *memStore) {
	store := newMemStore()
	win := dom.NewWindow("https://example.com", nil)

	return ForWindow(win, store), store
}

func TestSetAndGetJSON(t *testing.T) {
	t.Parallel()

	c, _ := newTestCookies()
	ctx := context.Background()

	err := c.Set(ctx, "prefs", map[string]any{"theme": "dark", "count": float64(3)}, Attributes{})
	require.NoError(t, err)

	value, err := c.GetJSON(ctx, "prefs")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"theme": "dark", "count": float64(3)}, value)
}

func TestGetReturnsRawString(t *testing.T) {
	t.Parallel()

	c, store := newTestCookies()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "token", "abc", Attributes{}))

	raw, err := c.Get(ctx, "token")
	require.NoError(t, err)

	// raw JSON text, unparsed
	assert.Equal(t, `"abc"`, raw)
	assert.Equal(t, `"abc"`, store.values["https://example.com\x00token"])
}

func TestGetJSONAbsentCookie(t *testing.T) {
	t.Parallel()

	c, _ := newTestCookies()

	value, err := c.GetJSON(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestGetJSONMalformed(t *testing.T) {
	t.Parallel()

	c, store := newTestCookies()
	store.values["https://example.com\x00bad"] = "{not json"

	_, err := c.GetJSON(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestSetUnserializableValue(t *testing.T) {
	t.Parallel()

	c, _ := newTestCookies()

	err := c.Set(context.Background(), "bad", make(chan int), Attributes{})
	require.Error(t, err)
}

func TestOversizedValueRoundTrip(t *testing.T) {
	t.Parallel()

	c, store := newTestCookies()
	ctx := context.Background()

	big := strings.Repeat("the quick brown fox ", 200)
	require.NoError(t, c.Set(ctx, "blob", big, Attributes{}))

	stored := store.values["https://example.com\x00blob"]
	assert.True(t, strings.HasPrefix(stored, compressedPrefix), "large value should be stored compressed")
	assert.Less(t, len(stored), len(big))

	value, err := c.GetJSON(ctx, "blob")
	require.NoError(t, err)
	assert.Equal(t, big, value)
}

func TestCompressIncompressibleValueKeptPlain(t *testing.T) {
	t.Parallel()

	// random noise compresses poorly; the plain form must win
	raw := make([]byte, 2048)
	_, err := rand.Read(raw)
	require.NoError(t, err)

	noise := string(raw)
	assert.Equal(t, noise, maybeCompress(noise))
}
