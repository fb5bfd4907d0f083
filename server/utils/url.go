// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseURL parses a URL string and returns a *url.URL.
//
// Unlike url.Parse it requires both a scheme and a host, since every URL this
// module handles is absolute.
func ParseURL(urlStr, urlType string) (*url.URL, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s URL: %w", urlType, err)
	}

	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf(
			"%s URL is invalid: %s. Please specify a complete URL with scheme and host, e.g. https://example.com",
			urlType,
			urlStr)
	}

	parsedURL.Path = strings.TrimSuffix(parsedURL.Path, "/")

	return parsedURL, nil
}

// OriginOf returns the origin (scheme://host) of a URL string, lower-cased.
//
// Returns an error for relative or scheme-less URLs; origin comparison on a
// partial URL would silently succeed against the wrong value.
func OriginOf(urlStr string) (string, error) {
	parsedURL, err := ParseURL(urlStr, "origin source")
	if err != nil {
		return "", err
	}

	return strings.ToLower(parsedURL.Scheme) + "://" + strings.ToLower(parsedURL.Host), nil
}

// SameOrigin reports whether two absolute URL strings share an origin.
//
// Any parse failure counts as "not same origin".
func SameOrigin(a, b string) bool {
	originA, err := OriginOf(a)
	if err != nil {
		return false
	}

	originB, err := OriginOf(b)
	if err != nil {
		return false
	}

	return originA == originB
}
