// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package cookies exposes a per-window cookie accessor over a host-provided
store.

The accessor never caches: every read and write round-trips to the store, so
there is no staleness to reason about and no lock discipline beyond what the
store itself provides.
*/
package cookies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Exlord/amphtml/core/dom"
)

var errInvalidCookieJSON = errors.New("cookie contained invalid JSON")

// Store is the host cookie jar. Implementations own storage semantics
// (expiry enforcement, persistence); this package only shapes values.
type Store interface {
	// GetCookie returns the raw stored value, or "" when the cookie is
	// absent or expired.
	GetCookie(ctx context.Context, origin, name string) (string, error)

	// SetCookie writes a cookie. A zero expires means a session cookie.
	SetCookie(ctx context.Context, origin, name, value string, expires time.Time) error
}

// Attributes carries the cookie attributes the accessor supports.
type Attributes struct {
	// Expires is the absolute expiry time. Zero means session lifetime.
	Expires time.Time
}

// Cookies is the cookie accessor for a single window.
type Cookies struct {
	win   *dom.Window
	store Store
}

// ForWindow binds a cookie accessor to a window and a host store.
func ForWindow(win *dom.Window, store Store) *Cookies {
	return &Cookies{win: win, store: store}
}

// Set serializes value to JSON and writes it under key.
//
// Serialization failures propagate unchanged; oversized values are stored
// compressed (see maybeCompress).
func (c *Cookies) Set(ctx context.Context, key string, value any, attrs Attributes) error {
	text, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize cookie %q: %w", key, err)
	}

	return c.store.SetCookie(ctx, c.win.Origin(), key, maybeCompress(string(text)), attrs.Expires)
}

// Get returns the raw cookie string, unparsed. Absent cookies read as "".
func (c *Cookies) Get(ctx context.Context, key string) (string, error) {
	raw, err := c.store.GetCookie(ctx, c.win.Origin(), key)
	if err != nil {
		return "", err
	}

	return decompress(raw)
}

// GetJSON reads the cookie under key and parses it as JSON.
//
// An absent cookie yields (nil, nil). A present cookie holding malformed
// JSON yields an error; malformed state is never silently swallowed.
func (c *Cookies) GetJSON(ctx context.Context, key string) (any, error) {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if raw == "" {
		return nil, nil
	}

	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: %s", errInvalidCookieJSON, key)
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("%w: %s", errInvalidCookieJSON, key)
	}

	return value, nil
}
