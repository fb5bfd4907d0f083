// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package server implements the viewer host: the page-side endpoint an
embedded document's Messenger dials.

Each WebSocket connection becomes one JSON-RPC session serving the viewer
protocol (handshake, trusted, xhr) and receiving visibility push
notifications. Intercepted fetches are performed against the real network
with the shared HTTP client, with stored cookies forwarded according to the
request's credentials mode.
*/
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	servertiming "github.com/mitchellh/go-server-timing"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Exlord/amphtml/core/audit"
	"github.com/Exlord/amphtml/core/authtoken"
	"github.com/Exlord/amphtml/core/fetchinit"
	"github.com/Exlord/amphtml/core/idgen"
	"github.com/Exlord/amphtml/core/interception"
	"github.com/Exlord/amphtml/core/viewer"
	"github.com/Exlord/amphtml/server/utils"
)

const (
	codeInvalidParams = jrpc2.Code(-32602)

	// Cap on proxied response bodies. Documents fetch JSON and fragments,
	// not media.
	maxFetchBody = 10 << 20
)

// CookieJar is what the host needs from a cookie store to forward
// credentials on proxied fetches.
type CookieJar interface {
	All(ctx context.Context, origin string) (map[string]string, error)
	SetCookie(ctx context.Context, origin, name, value string, expires time.Time) error
}

// FetchResult is the xhr method response handed back to the document.
type FetchResult struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body"`
}

// HostOptions configures a Host.
type HostOptions struct {
	// Capabilities advertised in the handshake.
	Capabilities []string

	// Trusted is the answer to the trusted method.
	Trusted bool

	// Client performs the real fetches. Defaults to utils.HTTPClient.
	Client *http.Client

	// Jar stores and forwards cookies. Nil disables credential forwarding.
	Jar CookieJar

	// FetchesPerSecond and FetchBurst bound proxied fetches per connection.
	FetchesPerSecond float64
	FetchBurst       int

	// FetchTimeout bounds each proxied fetch. Zero means no deadline
	// beyond the connection's.
	FetchTimeout time.Duration

	// CookieMaxAge caps the lifetime of stored response cookies. Session
	// cookies and longer-lived ones are pinned to it. Zero disables the cap.
	CookieMaxAge time.Duration

	// TrustedOrigins are the serving CDN origins. Documents load those
	// resources directly, so the host refuses to proxy fetches to them.
	TrustedOrigins []*url.URL

	// Assist mints identity tokens for connected documents. Nil leaves the
	// token method unregistered.
	Assist authtoken.Assistance

	// InitiallyVisible pushes a visible notification to every new session
	// as soon as it connects, for hosts that are never prerendering.
	InitiallyVisible bool
}

// Host serves the viewer protocol to connected documents.
type Host struct {
	capabilities   []string
	trusted        bool
	client         *http.Client
	jar            CookieJar
	fetchRate      rate.Limit
	fetchBurst     int
	fetchTimeout   time.Duration
	cookieMaxAge   time.Duration
	trustedOrigins []*url.URL
	assist         authtoken.Assistance
	visible        bool

	mu       sync.RWMutex
	sessions map[*session]struct{}
}

// NewHost creates a Host.
func NewHost(opts HostOptions) *Host {
	client := opts.Client
	if client == nil {
		client = utils.HTTPClient
	}

	fetchRate := rate.Limit(opts.FetchesPerSecond)
	if fetchRate <= 0 {
		fetchRate = 10
	}

	burst := opts.FetchBurst
	if burst <= 0 {
		burst = 20
	}

	return &Host{
		capabilities:   opts.Capabilities,
		trusted:        opts.Trusted,
		client:         client,
		jar:            opts.Jar,
		fetchRate:      fetchRate,
		fetchBurst:     burst,
		fetchTimeout:   opts.FetchTimeout,
		cookieMaxAge:   opts.CookieMaxAge,
		trustedOrigins: opts.TrustedOrigins,
		assist:         opts.Assist,
		visible:        opts.InitiallyVisible,
		sessions:       make(map[*session]struct{}),
	}
}

// Handler returns the HTTP handler exposing the viewer endpoint at /viewer,
// wrapped with Server-Timing so messaging spans export their metrics.
func (h *Host) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/viewer", h.serveViewer)

	return servertiming.Middleware(mux, nil)
}

// AnnounceVisibility pushes a visibility state to every connected document.
// Sessions that fail to receive are dropped.
func (h *Host) AnnounceVisibility(ctx context.Context, state string) {
	h.mu.RLock()
	sessions := make([]*session, 0, len(h.sessions))

	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		err := s.srv.Notify(ctx, viewer.NotifyVisibility, viewer.VisibilityEvent{State: state})
		if err != nil {
			log.Debug().
				Err(err).
				Msg("Dropping viewer session after failed push")
			h.unregister(s)
		}
	}
}

func (h *Host) register(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[s] = struct{}{}
}

func (h *Host) unregister(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.sessions, s)
}

// serveViewer upgrades the connection and runs one JSON-RPC session on it
// until the document disconnects.
func (h *Host) serveViewer(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, nil)
	if err != nil {
		log.Warn().
			Err(err).
			Str("remote", r.RemoteAddr).
			Msg("WebSocket upgrade failed")

		return
	}

	s := &session{
		host:    h,
		limiter: rate.NewLimiter(h.fetchRate, h.fetchBurst),
	}

	methods := handler.Map{
		viewer.MethodHandshake: handler.New(s.handshake),
		viewer.MethodTrusted:   handler.New(s.trusted),
		viewer.TopicXHR:        handler.New(s.xhr),
	}

	if h.assist != nil {
		methods[authtoken.AssistanceCapability] = handler.New(s.idToken)
	}

	s.srv = jrpc2.NewServer(methods, &jrpc2.ServerOptions{AllowPush: true})
	s.srv.Start(viewer.NewWSChannel(context.WithoutCancel(r.Context()), conn))

	h.register(s)
	defer h.unregister(s)

	if h.visible {
		_ = s.srv.Notify(context.WithoutCancel(r.Context()),
			viewer.NotifyVisibility, viewer.VisibilityEvent{State: viewer.VisibilityVisible})
	}

	if err := s.srv.Wait(); err != nil {
		log.Debug().
			Err(err).
			Str("remote", r.RemoteAddr).
			Msg("Viewer session ended")
	}
}

// session is one connected document.
type session struct {
	host    *Host
	srv     *jrpc2.Server
	limiter *rate.Limiter
}

func (s *session) handshake(_ context.Context) (*viewer.HandshakeResult, error) {
	return &viewer.HandshakeResult{Capabilities: s.host.capabilities}, nil
}

func (s *session) trusted(_ context.Context) (bool, error) {
	return s.host.trusted, nil
}

func (s *session) idToken(ctx context.Context) (string, error) {
	return s.host.assist.GetIDToken(ctx)
}

// xhr performs the intercepted fetch against the real network.
func (s *session) xhr(ctx context.Context, msg interception.Message) (_ *FetchResult, err error) {
	original := msg.OriginalRequest
	if original.Input == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing request url"}
	}

	if s.refusesOrigin(original.Input) {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "refusing to proxy a fetch to a serving origin"}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch throttled: %w", err)
	}

	if s.host.fetchTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.host.fetchTimeout)
		defer cancel()
	}

	method := original.Init.Method
	if method == "" {
		method = http.MethodGet
	}

	span := audit.Span{
		Destination: audit.ToNetwork,
		Topic:       viewer.TopicXHR,
		MessageID:   idgen.Make(),
		Method:      method,
		URL:         original.Input,
	}

	defer func() {
		span.Error = err

		span.End()
		span.Log()
	}()

	ctx = span.Begin(ctx)

	body, err := requestBody(original.Init.Body)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, method, original.Input, body)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	}

	for name, value := range original.Init.Headers {
		req.Header.Set(name, value)
	}

	origin, originErr := utils.OriginOf(original.Input)
	forwardCookies := s.host.jar != nil &&
		originErr == nil &&
		original.Init.Credentials != fetchinit.CredentialsOmit

	if forwardCookies {
		if header := s.cookieHeader(ctx, origin); header != "" {
			req.Header.Set("Cookie", header)
		}
	}

	resp, err := s.host.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if forwardCookies {
		s.storeCookies(ctx, origin, resp.Cookies())
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read fetch response: %w", err)
	}

	span.StatusCode = resp.StatusCode
	span.Size = len(data)

	return &FetchResult{
		Status:  resp.StatusCode,
		Headers: flattenHeader(resp.Header),
		Body:    string(data),
	}, nil
}

// refusesOrigin reports whether input targets one of the serving CDN
// origins. Documents fetch those resources directly, never through the
// viewer channel.
func (s *session) refusesOrigin(input string) bool {
	target, err := url.Parse(input)
	if err != nil {
		return false
	}

	for _, origin := range s.host.trustedOrigins {
		if strings.EqualFold(target.Scheme, origin.Scheme) &&
			strings.EqualFold(target.Host, origin.Host) {
			return true
		}
	}

	return false
}

// cookieHeader builds a Cookie header value from every live cookie stored
// for the origin, sorted by name for a stable wire form.
func (s *session) cookieHeader(ctx context.Context, origin string) string {
	stored, err := s.host.jar.All(ctx, origin)
	if err != nil {
		log.Warn().
			Err(err).
			Str("origin", origin).
			Msg("Cookie lookup failed, fetching without credentials")

		return ""
	}

	names := make([]string, 0, len(stored))
	for name := range stored {
		names = append(names, name)
	}

	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+stored[name])
	}

	return strings.Join(pairs, "; ")
}

func (s *session) storeCookies(ctx context.Context, origin string, received []*http.Cookie) {
	for _, c := range received {
		var expires time.Time

		switch {
		case c.MaxAge > 0:
			expires = time.Now().Add(time.Duration(c.MaxAge) * time.Second)
		case !c.Expires.IsZero():
			expires = c.Expires
		}

		if maxAge := s.host.cookieMaxAge; maxAge > 0 {
			limit := time.Now().Add(maxAge)
			if expires.IsZero() || expires.After(limit) {
				expires = limit
			}
		}

		if err := s.host.jar.SetCookie(ctx, origin, c.Name, c.Value, expires); err != nil {
			log.Warn().
				Err(err).
				Str("origin", origin).
				Str("cookie", c.Name).
				Msg("Failed to store response cookie")
		}
	}
}

// requestBody shapes a forwarded init body into a reader. Serialized JSON
// bodies arrive as strings; anything else still attached is re-serialized.
func requestBody(body any) (io.Reader, error) {
	switch value := body.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(value), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("unserializable request body: %w", err)
		}

		return bytes.NewReader(data), nil
	}
}

func flattenHeader(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for name := range header {
		flat[name] = header.Get(name)
	}

	return flat
}
