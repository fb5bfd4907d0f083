// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package interception

import "github.com/Exlord/amphtml/core/fetchinit"

// Message is the payload sent to the viewer for one intercepted request.
// Constructed fresh per call; never persisted.
type Message struct {
	OriginalRequest OriginalRequest `json:"originalRequest"`
}

// OriginalRequest carries the request description across the messaging
// boundary.
type OriginalRequest struct {
	Input string   `json:"input"`
	Init  WireInit `json:"init"`
}

// WireInit is the subset of RequestInit that crosses the messaging boundary.
// Local dispatch flags (PrerenderSafe, BypassInterceptorForDev) are stripped.
type WireInit struct {
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        any               `json:"body,omitempty"`
	Credentials string            `json:"credentials,omitempty"`
}

// NewMessage builds the interception message for input and init.
func NewMessage(input string, init *fetchinit.RequestInit) Message {
	wire := WireInit{}

	if init != nil {
		wire.Method = init.Method
		wire.Headers = init.Headers
		wire.Body = init.Body
		wire.Credentials = init.Credentials
	}

	return Message{OriginalRequest: OriginalRequest{Input: input, Init: wire}}
}
