// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package fetchinit builds normalized request-configuration objects for
fetches made by embedded documents.

The normalizers are pure: they never alias the caller's maps, and the only
failure mode is an invalid credentials value, which is a programmer error
surfaced fast rather than a runtime condition to recover from.
*/
package fetchinit

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
)

// Allowed values for RequestInit.Credentials.
const (
	CredentialsInclude = "include"
	CredentialsOmit    = "omit"
)

// Header names set by the normalizers.
const (
	acceptHeader      = "Accept"
	contentTypeHeader = "Content-Type"
)

// jsonContentType is deliberately text/plain: an application/json content
// type on a cross-origin request forces a CORS preflight, and the endpoints
// receiving these bodies parse them regardless of the declared type.
const jsonContentType = "text/plain;charset=utf-8"

// RequestInit describes one fetch. The zero value is a plain GET.
type RequestInit struct {
	// Method is the HTTP method; empty means GET.
	Method string

	// Headers maps header name to value. May be nil.
	Headers map[string]string

	// Body is the request payload. For JSON fetches with a non-GET method it
	// is serialized by SetupJSONFetchInit; otherwise it is carried as is.
	Body any

	// Credentials is "", CredentialsInclude or CredentialsOmit. Anything
	// else is rejected by SetupInit.
	Credentials string

	// PrerenderSafe marks the fetch as allowed before the document becomes
	// visible. Local flag; never crosses the messaging boundary.
	PrerenderSafe bool

	// BypassInterceptorForDev skips viewer interception under local
	// development. Local flag; never crosses the messaging boundary.
	BypassInterceptorForDev bool
}

// SetupInit normalizes init into a fresh RequestInit.
//
// The method defaults to GET only when unset, headers are copied (never
// aliased), and accept, when non-empty, is set as the Accept header unless
// the caller already provided one. init may be nil.
func SetupInit(init *RequestInit, accept string) (*RequestInit, error) {
	if init == nil {
		init = &RequestInit{}
	}

	if err := validateCredentials(init.Credentials); err != nil {
		return nil, err
	}

	out := &RequestInit{
		Method:                  init.Method,
		Body:                    init.Body,
		Credentials:             init.Credentials,
		PrerenderSafe:           init.PrerenderSafe,
		BypassInterceptorForDev: init.BypassInterceptorForDev,
	}

	if out.Method == "" {
		out.Method = http.MethodGet
	}

	out.Headers = make(map[string]string, len(init.Headers)+1)
	maps.Copy(out.Headers, init.Headers)

	if accept != "" {
		if _, ok := out.Headers[acceptHeader]; !ok {
			out.Headers[acceptHeader] = accept
		}
	}

	return out, nil
}

// SetupJSONFetchInit normalizes init for a JSON fetch.
//
// The Accept header is set to application/json. For non-GET methods the body
// is serialized to JSON text and the Content-Type set to text/plain (see
// jsonContentType); for GET the body passes through unserialized.
func SetupJSONFetchInit(init *RequestInit) (*RequestInit, error) {
	out, err := SetupInit(init, "application/json")
	if err != nil {
		return nil, err
	}

	if out.Method != http.MethodGet {
		body, err := json.Marshal(out.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize fetch body: %w", err)
		}

		out.Body = string(body)
		out.Headers[contentTypeHeader] = jsonContentType
	}

	return out, nil
}

func validateCredentials(value string) error {
	switch value {
	case "", CredentialsInclude, CredentialsOmit:
		return nil
	default:
		return &InvalidCredentialsError{Value: value}
	}
}
