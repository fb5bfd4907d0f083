// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package viewer

import (
	"context"
	"encoding/json"
	"fmt"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"

	"github.com/Exlord/amphtml/core/audit"
	"github.com/Exlord/amphtml/core/idgen"
)

// Messenger is the JSON-RPC implementation of Channel.
//
// Capabilities are fixed at handshake time; visibility is fed by
// visibilitychange notifications pushed from the host. A Messenger is safe
// for concurrent use; each message round-trip is independent.
type Messenger struct {
	client *jrpc2.Client
	caps   Capabilities
	vis    *visibility
}

// Dial connects to a viewer host WebSocket endpoint and performs the
// handshake. The returned Messenger must be closed when the document
// detaches.
func Dial(ctx context.Context, wsURL string) (*Messenger, error) {
	conn, _, err := cws.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial viewer host %s: %w", wsURL, err)
	}

	// The channel context outlives ctx: ctx bounds connection setup, the
	// channel lives until Close.
	return NewMessenger(ctx, NewWSChannel(context.WithoutCancel(ctx), conn))
}

// NewMessenger builds a Messenger over an established channel and performs
// the capability handshake on it.
func NewMessenger(ctx context.Context, ch channel.Channel) (*Messenger, error) {
	m := &Messenger{vis: newVisibility()}

	m.client = jrpc2.NewClient(ch, &jrpc2.ClientOptions{
		OnNotify: m.handleNotify,
	})

	var hs HandshakeResult
	if err := m.client.CallResult(ctx, MethodHandshake, nil, &hs); err != nil {
		_ = m.client.Close()

		return nil, fmt.Errorf("viewer handshake failed: %w", err)
	}

	m.caps = NewCapabilities(hs.Capabilities)

	return m, nil
}

// Close tears down the connection. In-flight calls fail.
func (m *Messenger) Close() error {
	return m.client.Close()
}

// HasCapability reports whether the viewer declared the named capability.
func (m *Messenger) HasCapability(name string) bool {
	return m.caps.Has(name)
}

// IsTrustedViewer asks the host for its trust status.
func (m *Messenger) IsTrustedViewer(ctx context.Context) (bool, error) {
	var trusted bool
	if err := m.client.CallResult(ctx, MethodTrusted, nil, &trusted); err != nil {
		return false, fmt.Errorf("trust query failed: %w", err)
	}

	return trusted, nil
}

// WhenFirstVisible blocks until the first visible transition or ctx done.
func (m *Messenger) WhenFirstVisible(ctx context.Context) error {
	return m.vis.wait(ctx)
}

// SendMessageAwaitResponse sends payload under topic and returns the raw
// response. The round-trip is audited.
func (m *Messenger) SendMessageAwaitResponse(ctx context.Context, topic string, payload any) (_ json.RawMessage, err error) {
	span := audit.Span{
		Destination: audit.ToViewer,
		Topic:       topic,
		MessageID:   idgen.Make(),
	}

	defer func() {
		span.Error = err

		span.End()
		span.Log()
	}()

	ctx = span.Begin(ctx)

	var raw json.RawMessage
	if err := m.client.CallResult(ctx, topic, payload, &raw); err != nil {
		return nil, fmt.Errorf("viewer message %q failed: %w", topic, err)
	}

	span.Size = len(raw)

	return raw, nil
}

func (m *Messenger) handleNotify(req *jrpc2.Request) {
	if req.Method() != NotifyVisibility {
		return
	}

	var event VisibilityEvent
	if err := req.UnmarshalParams(&event); err != nil {
		return
	}

	if event.State == VisibilityVisible {
		m.vis.markVisible()
	}
}
