// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package interception decides whether a document fetch is answered by the
hosting viewer instead of the real network, and dispatches it when so.

Eligibility is an ordered list of named guard rules evaluated against the
document and window state. The list is data: inserting a guard is an edit to
the slice, not a restructuring of branch logic. A failing guard is a normal
negative outcome, not an error; only a messaging failure after all guards
pass surfaces to the caller.
*/
package interception

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Exlord/amphtml/core/dom"
	"github.com/Exlord/amphtml/core/fetchinit"
	"github.com/Exlord/amphtml/core/viewer"
)

// CapabilityXHRInterception is the viewer capability required for
// interception.
const CapabilityXHRInterception = "xhr-interception"

// AllowAttr is the documentElement attribute by which a document opts in to
// interception.
const AllowAttr = "allow-xhr-interception"

// Interceptor evaluates and dispatches viewer interception for one window.
type Interceptor struct {
	win            *dom.Window
	channel        viewer.Channel
	localDev       bool
	trustedOrigins []*url.URL
}

// Options configures an Interceptor. All collaborators are passed in
// explicitly; the interceptor reads no global state.
type Options struct {
	// Window is the browsing context, possibly without a document.
	Window *dom.Window

	// Channel is the viewer connection. May be nil when no viewer is
	// attached.
	Channel viewer.Channel

	// LocalDev marks a local development runtime.
	LocalDev bool

	// TrustedOrigins are the platform CDN/proxy origins whose requests are
	// never intercepted.
	TrustedOrigins []*url.URL
}

// New creates an Interceptor.
func New(opts Options) *Interceptor {
	return &Interceptor{
		win:            opts.Window,
		channel:        opts.Channel,
		localDev:       opts.LocalDev,
		trustedOrigins: opts.TrustedOrigins,
	}
}

// call is the state one eligibility pass runs against.
type call struct {
	input string
	init  *fetchinit.RequestInit
}

// guard is one named eligibility rule. eligible returning false vetoes the
// interception; later guards are not consulted.
type guard struct {
	name     string
	eligible func(ic *Interceptor, c *call) bool
}

// guards run in order; each may assume every earlier guard passed.
var guards = []guard{
	{
		name: "document-context",
		eligible: func(ic *Interceptor, _ *call) bool {
			return ic.win != nil && ic.win.Document() != nil
		},
	},
	{
		name: "viewer-capability",
		eligible: func(ic *Interceptor, _ *call) bool {
			return ic.channel != nil && ic.channel.HasCapability(CapabilityXHRInterception)
		},
	},
	{
		name: "dev-bypass",
		eligible: func(ic *Interceptor, c *call) bool {
			return !(c.init.BypassInterceptorForDev && ic.localDev)
		},
	},
	{
		name: "opt-in-attribute",
		eligible: func(ic *Interceptor, _ *call) bool {
			return ic.win.Document().Element().HasAttribute(AllowAttr)
		},
	},
	{
		name: "untrusted-url",
		eligible: func(ic *Interceptor, c *call) bool {
			return !ic.isTrustedURL(c.input)
		},
	},
}

// MaybeIntercept forwards the request described by input and init to the
// viewer if every eligibility guard passes.
//
// A (nil, nil) return means "not intercepted": the caller proceeds to the
// real network. init must already be normalized (see fetchinit.SetupInit);
// a nil init is treated as a plain GET.
func (ic *Interceptor) MaybeIntercept(ctx context.Context, input string, init *fetchinit.RequestInit) (json.RawMessage, error) {
	if init == nil {
		init = &fetchinit.RequestInit{}
	}

	c := &call{input: input, init: init}

	for _, g := range guards {
		if !g.eligible(ic, c) {
			log.Debug().
				Str("sys", "interception").
				Str("guard", g.name).
				Str("url", input).
				Msg("Interception not eligible")

			return nil, nil
		}
	}

	// Prerender-safe fetches may go out before first paint; everything else
	// waits for the document to have been visible once.
	if !init.PrerenderSafe {
		if err := ic.channel.WhenFirstVisible(ctx); err != nil {
			return nil, err
		}
	}

	return ic.channel.SendMessageAwaitResponse(ctx, viewer.TopicXHR, NewMessage(input, init))
}

// isTrustedURL reports whether input resolves to one of the platform's
// trusted CDN/proxy origins. Requests already bound for the trusted delivery
// network are not intercepted.
func (ic *Interceptor) isTrustedURL(input string) bool {
	parsed, err := url.Parse(input)
	if err != nil {
		return false
	}

	for _, origin := range ic.trustedOrigins {
		if strings.EqualFold(parsed.Scheme, origin.Scheme) &&
			strings.EqualFold(parsed.Host, origin.Host) {
			return true
		}
	}

	return false
}
