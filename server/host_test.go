// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/Exlord/amphtml/core/authtoken"
	"github.com/Exlord/amphtml/core/cookiejar"
	"github.com/Exlord/amphtml/core/dom"
	"github.com/Exlord/amphtml/core/fetchinit"
	"github.com/Exlord/amphtml/core/interception"
	"github.com/Exlord/amphtml/core/viewer"
	"github.com/Exlord/amphtml/server"
	"github.com/Exlord/amphtml/server/utils"
)

func dialHost(t *testing.T, h *server.Host) *viewer.Messenger {
	t.Helper()

	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/viewer"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m, err := viewer.Dial(ctx, wsURL)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	return m
}

func TestHostHandshakeAndTrust(t *testing.T) {
	t.Parallel()

	h := server.NewHost(server.HostOptions{
		Capabilities: []string{"xhr-interception", "cid"},
		Trusted:      true,
	})

	m := dialHost(t, h)

	require.True(t, m.HasCapability("xhr-interception"))
	require.True(t, m.HasCapability("cid"))
	require.False(t, m.HasCapability("fragment"))

	trusted, err := m.IsTrustedViewer(context.Background())
	require.NoError(t, err)
	require.True(t, trusted)
}

func TestHostXHRFetch(t *testing.T) {
	t.Parallel()

	var gotAccept atomic.Value

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept.Store(r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"items":[1,2,3]}`))
	}))
	t.Cleanup(backend.Close)

	h := server.NewHost(server.HostOptions{Capabilities: []string{"xhr-interception"}})
	m := dialHost(t, h)

	init, err := fetchinit.SetupJSONFetchInit(&fetchinit.RequestInit{})
	require.NoError(t, err)

	raw, err := m.SendMessageAwaitResponse(context.Background(),
		viewer.TopicXHR, interception.NewMessage(backend.URL, init))
	require.NoError(t, err)

	var result server.FetchResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Equal(t, http.StatusOK, result.Status)
	require.JSONEq(t, `{"items":[1,2,3]}`, result.Body)
	require.Equal(t, "application/json", result.Headers["Content-Type"])
	require.Equal(t, "application/json", gotAccept.Load())
}

func TestHostXHRPostBody(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "text/plain;charset=utf-8", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	}))
	t.Cleanup(backend.Close)

	h := server.NewHost(server.HostOptions{})
	m := dialHost(t, h)

	init, err := fetchinit.SetupJSONFetchInit(&fetchinit.RequestInit{
		Method: http.MethodPost,
		Body:   map[string]any{"q": "sunset"},
	})
	require.NoError(t, err)

	raw, err := m.SendMessageAwaitResponse(context.Background(),
		viewer.TopicXHR, interception.NewMessage(backend.URL, init))
	require.NoError(t, err)

	var result server.FetchResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.JSONEq(t, `{"q":"sunset"}`, result.Body)
}

func TestHostXHRMissingURL(t *testing.T) {
	t.Parallel()

	h := server.NewHost(server.HostOptions{})
	m := dialHost(t, h)

	_, err := m.SendMessageAwaitResponse(context.Background(),
		viewer.TopicXHR, interception.NewMessage("", nil))
	require.ErrorContains(t, err, "missing request url")
}

func TestHostCookieForwarding(t *testing.T) {
	t.Parallel()

	jar, err := cookiejar.Open(filepath.Join(t.TempDir(), "cookies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { jar.Close() })

	var sawCookie atomic.Value

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawCookie.Store(r.Header.Get("Cookie"))
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", MaxAge: 3600})
		w.Write([]byte("ok"))
	}))
	t.Cleanup(backend.Close)

	h := server.NewHost(server.HostOptions{Jar: jar})
	m := dialHost(t, h)

	send := func(credentials string) {
		t.Helper()

		_, err := m.SendMessageAwaitResponse(context.Background(), viewer.TopicXHR,
			interception.NewMessage(backend.URL,
				&fetchinit.RequestInit{Credentials: credentials}))
		require.NoError(t, err)
	}

	// First fetch has nothing stored yet; the response sets a cookie.
	send(fetchinit.CredentialsInclude)
	require.Equal(t, "", sawCookie.Load())

	// Second fetch forwards it.
	send(fetchinit.CredentialsInclude)
	require.Equal(t, "session=s1", sawCookie.Load())

	// Omit leaves the jar untouched on the wire.
	send(fetchinit.CredentialsOmit)
	require.Equal(t, "", sawCookie.Load())
}

func TestHostFetchTimeout(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(backend.Close)

	h := server.NewHost(server.HostOptions{FetchTimeout: 50 * time.Millisecond})
	m := dialHost(t, h)

	_, err := m.SendMessageAwaitResponse(context.Background(),
		viewer.TopicXHR, interception.NewMessage(backend.URL, nil))
	require.ErrorContains(t, err, "context deadline exceeded")
}

func TestHostRefusesServingOrigin(t *testing.T) {
	t.Parallel()

	cdn, err := url.Parse("https://cdn.ampproject.org")
	require.NoError(t, err)

	h := server.NewHost(server.HostOptions{TrustedOrigins: []*url.URL{cdn}})
	m := dialHost(t, h)

	for _, target := range []string{
		"https://cdn.ampproject.org/v0.js",
		"https://CDN.AMPPROJECT.ORG/c/s/example.com/article",
	} {
		_, err := m.SendMessageAwaitResponse(context.Background(),
			viewer.TopicXHR, interception.NewMessage(target, nil))
		require.ErrorContains(t, err, "refusing to proxy", target)
	}
}

func TestHostCookieMaxAgeCap(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a session cookie, which would otherwise never expire
		http.SetCookie(w, &http.Cookie{Name: "sticky", Value: "v"})
		w.Write([]byte("ok"))
	}))
	t.Cleanup(backend.Close)

	origin, err := utils.OriginOf(backend.URL)
	require.NoError(t, err)

	send := func(h *server.Host) {
		t.Helper()

		m := dialHost(t, h)

		_, err := m.SendMessageAwaitResponse(context.Background(), viewer.TopicXHR,
			interception.NewMessage(backend.URL,
				&fetchinit.RequestInit{Credentials: fetchinit.CredentialsInclude}))
		require.NoError(t, err)
	}

	uncapped, err := cookiejar.Open(filepath.Join(t.TempDir(), "uncapped.db"))
	require.NoError(t, err)
	t.Cleanup(func() { uncapped.Close() })

	send(server.NewHost(server.HostOptions{Jar: uncapped}))

	stored, err := uncapped.All(context.Background(), origin)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"sticky": "v"}, stored)

	capped, err := cookiejar.Open(filepath.Join(t.TempDir(), "capped.db"))
	require.NoError(t, err)
	t.Cleanup(func() { capped.Close() })

	send(server.NewHost(server.HostOptions{Jar: capped, CookieMaxAge: 50 * time.Millisecond}))

	// The cap pins even a session cookie to a real expiry, so it ages out.
	require.Eventually(t, func() bool {
		stored, err := capped.All(context.Background(), origin)

		return err == nil && len(stored) == 0
	}, 3*time.Second, 100*time.Millisecond)
}

func TestHostIdentityToken(t *testing.T) {
	t.Parallel()

	assist, err := authtoken.NewPasetoAssistance(authtoken.NewSecretKeyHex(), "localhost:8280")
	require.NoError(t, err)

	h := server.NewHost(server.HostOptions{
		Capabilities: []string{authtoken.AssistanceCapability},
		Assist:       assist,
	})
	m := dialHost(t, h)

	el := dom.NewElement(&html.Node{
		Type: html.ElementNode,
		Data: "amp-list",
		Attr: []html.Attribute{{Key: authtoken.CrossOriginAttr, Val: authtoken.ViaPostMarker}},
	})

	token, ok := authtoken.Retrieve(context.Background(), el, authtoken.NewChannelRegistry(m))
	require.True(t, ok)
	require.NotEmpty(t, token)

	audience, err := assist.VerifyIDToken(token)
	require.NoError(t, err)
	require.Equal(t, "localhost:8280", audience)
}

func TestHostWithoutAssistHasNoTokenMethod(t *testing.T) {
	t.Parallel()

	h := server.NewHost(server.HostOptions{Capabilities: []string{"xhr-interception"}})
	m := dialHost(t, h)

	assist, err := authtoken.NewChannelRegistry(m).AssistanceForDoc(context.Background())
	require.NoError(t, err)
	require.Nil(t, assist)
}

// Failed proxied fetches must still land in the message audit log.
func TestHostXHRFailureIsAudited(t *testing.T) {
	// swaps the global logger, so not parallel
	var buf bytes.Buffer

	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	backend := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := backend.URL
	backend.Close()

	h := server.NewHost(server.HostOptions{})
	m := dialHost(t, h)

	_, err := m.SendMessageAwaitResponse(context.Background(),
		viewer.TopicXHR, interception.NewMessage(target, nil))
	require.ErrorContains(t, err, "fetch failed")

	logged := buf.String()
	require.Contains(t, logged, `"sys":"msg"`)
	require.Contains(t, logged, `"destination":"network"`)
	require.Contains(t, logged, `"error"`)
	require.Contains(t, logged, "fetch failed")
}

func TestHostVisibilityPush(t *testing.T) {
	t.Parallel()

	h := server.NewHost(server.HostOptions{})
	m := dialHost(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Announce until the push lands; session registration happens just
	// after the handshake response is sent.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.AnnounceVisibility(context.Background(), viewer.VisibilityVisible)
			}
		}
	}()

	require.NoError(t, m.WhenFirstVisible(ctx))
	close(stop)

	// Already-visible documents don't block again.
	require.NoError(t, m.WhenFirstVisible(context.Background()))
}
