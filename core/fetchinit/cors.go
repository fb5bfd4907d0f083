// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package fetchinit

import (
	"github.com/Exlord/amphtml/core/dom"
	"github.com/Exlord/amphtml/server/utils"
)

// AMPSameOriginHeader marks a request as targeting the window's own origin,
// letting the receiving endpoint skip CORS checks.
const AMPSameOriginHeader = "AMP-Same-Origin"

// SetupAMPCors sets the AMP-Same-Origin header on init when rawurl resolves
// to the same origin as win.
//
// The header is only ever set to "true"; on a cross-origin URL it is left
// absent, never set to "false". init is updated in place and returned for
// chaining. A nil init gets a fresh one.
func SetupAMPCors(win *dom.Window, rawurl string, init *RequestInit) *RequestInit {
	if init == nil {
		init = &RequestInit{}
	}

	if win == nil {
		return init
	}

	origin, err := utils.OriginOf(rawurl)
	if err != nil {
		// Relative and unparseable URLs never get the marker header.
		return init
	}

	winOrigin, err := utils.OriginOf(win.Origin())
	if err != nil {
		return init
	}

	if origin == winOrigin {
		if init.Headers == nil {
			init.Headers = make(map[string]string, 1)
		}

		init.Headers[AMPSameOriginHeader] = "true"
	}

	return init
}
