// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package authtoken retrieves a viewer-supplied identity token for documents
that opt in via a marker attribute.

Retrieval distinguishes "not applicable" (the document never asked for a
token) from "asked but failed" (the assistance service is missing or broke).
Callers get the first as ok=false and the second as ok=true with an empty
token; collapsing the two would lose information the surrounding request
flow acts on.
*/
package authtoken

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/Exlord/amphtml/core/dom"
)

// CrossOriginAttr is the element attribute inspected for the opt-in marker.
const CrossOriginAttr = "crossorigin"

// ViaPostMarker is the attribute value that requests an identity token.
// Any other value, including a prefix or suffix match, does not.
const ViaPostMarker = "amp-viewer-auth-token-via-post"

// Assistance is the optional viewer-assistance service. It may be backed by
// an extension the host never installed, which is why consumers go through a
// Registry rather than holding an Assistance directly.
type Assistance interface {
	// GetIDToken returns a signed identity token for the current document.
	GetIDToken(ctx context.Context) (string, error)
}

// Registry resolves the assistance service for one document.
type Registry interface {
	// AssistanceForDoc returns the document's assistance service, or
	// (nil, nil) when the backing extension is not installed.
	AssistanceForDoc(ctx context.Context) (Assistance, error)
}

// Retrieve returns the identity token for the element's document.
//
// ok is false when el does not carry the exact opt-in marker; the token is
// simply not applicable to this request. Once the marker matches, ok is
// always true and every failure mode degrades to an empty token rather than
// an error: a missing extension emits one diagnostic, a failing service or
// token fetch is absorbed silently.
func Retrieve(ctx context.Context, el *dom.Element, registry Registry) (token string, ok bool) {
	value, present := el.GetAttribute(CrossOriginAttr)
	if !present || value != ViaPostMarker {
		return "", false
	}

	if registry == nil {
		logAssistanceRequired()

		return "", true
	}

	assist, err := registry.AssistanceForDoc(ctx)
	if err != nil {
		log.Debug().
			Err(err).
			Str("sys", "authtoken").
			Msg("Assistance lookup failed")

		return "", true
	}

	if assist == nil {
		logAssistanceRequired()

		return "", true
	}

	token, err = assist.GetIDToken(ctx)
	if err != nil {
		log.Debug().
			Err(err).
			Str("sys", "authtoken").
			Msg("Identity token fetch failed")

		return "", true
	}

	return token, true
}

func logAssistanceRequired() {
	log.Error().
		Str("sys", "authtoken").
		Str("attribute", CrossOriginAttr).
		Str("value", ViaPostMarker).
		Msg("amp-viewer-assistance extension is required for identity tokens")
}
