// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package authtoken_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/Exlord/amphtml/core/authtoken"
	"github.com/Exlord/amphtml/core/dom"
)

type fakeAssistance struct {
	token string
	err   error
	calls int
}

func (f *fakeAssistance) GetIDToken(_ context.Context) (string, error) {
	f.calls++

	return f.token, f.err
}

type fakeRegistry struct {
	assist authtoken.Assistance
	err    error
}

func (f *fakeRegistry) AssistanceForDoc(_ context.Context) (authtoken.Assistance, error) {
	return f.assist, f.err
}

func elementWithAttrs(attrs map[string]string) *dom.Element {
	node := &html.Node{Type: html.ElementNode, Data: "amp-state"}
	for key, val := range attrs {
		node.Attr = append(node.Attr, html.Attribute{Key: key, Val: val})
	}

	return dom.NewElement(node)
}

func TestRetrieve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		attrs     map[string]string
		registry  authtoken.Registry
		wantToken string
		wantOK    bool
	}{
		{
			name:     "attribute absent",
			attrs:    map[string]string{},
			registry: &fakeRegistry{assist: &fakeAssistance{token: "tok"}},
			wantOK:   false,
		},
		{
			name:     "attribute with wrong value",
			attrs:    map[string]string{"crossorigin": "anonymous"},
			registry: &fakeRegistry{assist: &fakeAssistance{token: "tok"}},
			wantOK:   false,
		},
		{
			name:     "marker must match exactly",
			attrs:    map[string]string{"crossorigin": "amp-viewer-auth-token-via-post-extra"},
			registry: &fakeRegistry{assist: &fakeAssistance{token: "tok"}},
			wantOK:   false,
		},
		{
			name:     "no registry",
			attrs:    map[string]string{"crossorigin": authtoken.ViaPostMarker},
			registry: nil,
			wantOK:   true,
		},
		{
			name:     "extension not installed",
			attrs:    map[string]string{"crossorigin": authtoken.ViaPostMarker},
			registry: &fakeRegistry{},
			wantOK:   true,
		},
		{
			name:     "registry lookup fails",
			attrs:    map[string]string{"crossorigin": authtoken.ViaPostMarker},
			registry: &fakeRegistry{err: errors.New("lookup broke")},
			wantOK:   true,
		},
		{
			name:      "token resolves",
			attrs:     map[string]string{"crossorigin": authtoken.ViaPostMarker},
			registry:  &fakeRegistry{assist: &fakeAssistance{token: "identity-token"}},
			wantToken: "identity-token",
			wantOK:    true,
		},
		{
			name:     "token fetch fails",
			attrs:    map[string]string{"crossorigin": authtoken.ViaPostMarker},
			registry: &fakeRegistry{assist: &fakeAssistance{err: errors.New("mint broke")}},
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			el := elementWithAttrs(tt.attrs)

			token, ok := authtoken.Retrieve(context.Background(), el, tt.registry)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantToken, token)
		})
	}
}

func TestRetrieveDoesNotTouchServiceWhenNotApplicable(t *testing.T) {
	t.Parallel()

	assist := &fakeAssistance{token: "tok"}
	el := elementWithAttrs(map[string]string{"crossorigin": "use-credentials"})

	_, ok := authtoken.Retrieve(context.Background(), el, &fakeRegistry{assist: assist})
	require.False(t, ok)
	require.Zero(t, assist.calls)
}

func TestPasetoAssistanceRoundTrip(t *testing.T) {
	t.Parallel()

	assist, err := authtoken.NewPasetoAssistance(authtoken.NewSecretKeyHex(), "https://pub.example.com")
	require.NoError(t, err)

	token, err := assist.GetIDToken(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	audience, err := assist.VerifyIDToken(token)
	require.NoError(t, err)
	require.Equal(t, "https://pub.example.com", audience)
}

func TestPasetoAssistanceRejectsForeignToken(t *testing.T) {
	t.Parallel()

	minter, err := authtoken.NewPasetoAssistance(authtoken.NewSecretKeyHex(), "https://pub.example.com")
	require.NoError(t, err)

	verifier, err := authtoken.NewPasetoAssistance(authtoken.NewSecretKeyHex(), "https://pub.example.com")
	require.NoError(t, err)

	token, err := minter.GetIDToken(context.Background())
	require.NoError(t, err)

	_, err = verifier.VerifyIDToken(token)
	require.Error(t, err)
}

func TestNewPasetoAssistanceBadKey(t *testing.T) {
	t.Parallel()

	_, err := authtoken.NewPasetoAssistance("not-hex", "aud")
	require.Error(t, err)
}
