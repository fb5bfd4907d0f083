// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package authtoken

import (
	"context"
	"time"

	"aidanwoods.dev/go-paseto"
)

// Implicit is the domain separation key for identity tokens. Changing it
// invalidates every previously minted token.
const Implicit = "amphtml viewer assistance identity"

const (
	idTokenSubject = "viewer identity"
	idTokenTTL     = 10 * time.Minute
)

var idTokenParser = paseto.MakeParser([]paseto.Rule{
	paseto.NotExpired(),
	paseto.Subject(idTokenSubject),
})

// NewSecretKeyHex generates a fresh v4.public secret key in hex form,
// suitable for the paseto_secret config field.
func NewSecretKeyHex() string {
	return paseto.NewV4AsymmetricSecretKey().ExportHex()
}

// PasetoAssistance implements Assistance with locally minted v4.public
// tokens. The viewer host uses it when no upstream identity provider is
// wired in.
type PasetoAssistance struct {
	secretKey paseto.V4AsymmetricSecretKey
	audience  string
}

// NewPasetoAssistance creates an assistance service signing for audience
// with the hex-encoded secret key.
func NewPasetoAssistance(secretHex, audience string) (*PasetoAssistance, error) {
	key, err := paseto.NewV4AsymmetricSecretKeyFromHex(secretHex)
	if err != nil {
		return nil, err
	}

	return &PasetoAssistance{secretKey: key, audience: audience}, nil
}

// GetIDToken mints a short-lived identity token for the configured audience.
func (a *PasetoAssistance) GetIDToken(_ context.Context) (string, error) {
	token := paseto.NewToken()
	token.SetIssuedAt(time.Now())
	token.SetExpiration(time.Now().Add(idTokenTTL))
	token.SetSubject(idTokenSubject) // checked by idTokenParser
	token.SetAudience(a.audience)

	return token.V4Sign(a.secretKey, []byte(Implicit)), nil
}

// VerifyIDToken validates a token minted by GetIDToken and returns its
// audience.
func (a *PasetoAssistance) VerifyIDToken(signed string) (string, error) {
	token, err := idTokenParser.ParseV4Public(a.secretKey.Public(), signed, []byte(Implicit))
	if err != nil {
		return "", err
	}

	return token.GetAudience()
}
