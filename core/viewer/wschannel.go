// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package viewer

import (
	"context"

	cws "github.com/coder/websocket"
)

// WSChannel adapts a coder/websocket.Conn to the jrpc2 Channel interface,
// bridging read/write operations between the WebSocket transport and the
// JSON-RPC machinery on either side of a viewer connection.
type WSChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

// NewWSChannel wraps a WebSocket connection for JSON-RPC framing. The
// context bounds all reads and writes on the connection.
func NewWSChannel(ctx context.Context, conn *cws.Conn) *WSChannel {
	return &WSChannel{conn: conn, ctx: ctx}
}

// Send writes a JSON-RPC message to the WebSocket connection.
func (c *WSChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

// Recv reads a JSON-RPC message from the WebSocket connection.
func (c *WSChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)

	return data, err
}

// Close shuts down the WebSocket connection with a normal closure status.
func (c *WSChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}
