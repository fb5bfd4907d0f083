// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package viewer implements the messaging channel between an embedded document
and its hosting viewer.

The concrete Messenger speaks JSON-RPC over a WebSocket; consumers depend on
the Channel interface so tests and alternative hosts can supply their own.
*/
package viewer

import (
	"context"
	"encoding/json"
)

// Method names of the viewer protocol. Exported because the host side
// serves the same wire surface.
const (
	// TopicXHR carries an intercepted request to the viewer.
	TopicXHR = "xhr"

	// MethodHandshake opens a session and returns the viewer's capabilities.
	MethodHandshake = "handshake"

	// MethodTrusted asks whether the viewer is on the trusted list.
	MethodTrusted = "trusted"

	// NotifyVisibility is pushed by the viewer on visibility transitions.
	NotifyVisibility = "visibilitychange"
)

// Channel is the document side of a viewer connection.
type Channel interface {
	// HasCapability reports whether the viewer declared the named
	// capability. Synchronous; answers from the handshake state without
	// awaiting anything.
	HasCapability(name string) bool

	// IsTrustedViewer asks the viewer for its trust status.
	IsTrustedViewer(ctx context.Context) (bool, error)

	// WhenFirstVisible blocks until the document has been visible at least
	// once, or ctx is done.
	WhenFirstVisible(ctx context.Context) error

	// SendMessageAwaitResponse sends payload under topic and returns the
	// viewer's response verbatim.
	SendMessageAwaitResponse(ctx context.Context, topic string, payload any) (json.RawMessage, error)
}

// HandshakeResult is the answer to the handshake method.
type HandshakeResult struct {
	Capabilities []string `json:"capabilities"`
}

// VisibilityEvent is the payload of a visibilitychange notification.
type VisibilityEvent struct {
	State string `json:"state"`
}

// VisibilityVisible is the visibility state that releases WhenFirstVisible.
const VisibilityVisible = "visible"
