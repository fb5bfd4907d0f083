// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package viewer

import (
	"context"
	"sync"
)

// visibility latches the first "visible" transition. Once visible, always
// visible: WhenFirstVisible is about the first paint, not the current state.
type visibility struct {
	once sync.Once
	ch   chan struct{}
}

func newVisibility() *visibility {
	return &visibility{ch: make(chan struct{})}
}

func (v *visibility) markVisible() {
	v.once.Do(func() { close(v.ch) })
}

func (v *visibility) wait(ctx context.Context) error {
	select {
	case <-v.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
