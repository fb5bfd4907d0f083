// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package cookies

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// compressedPrefix marks a stored value as zstd-compressed, base64url-coded.
// RFC 6265 cookie-octets exclude most of the byte range, hence the text
// encoding.
const compressedPrefix = "z:"

// compressThreshold is the stored-value length above which compression is
// attempted. Small values are left alone: zstd framing outweighs the gain.
const compressThreshold = 1024

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

func maybeCompress(value string) string {
	if len(value) <= compressThreshold {
		return value
	}

	packed := compressedPrefix + base64.RawURLEncoding.EncodeToString(
		zstdEncoder.EncodeAll([]byte(value), nil))

	// Incompressible payloads can grow; keep whichever form is smaller.
	if len(packed) >= len(value) {
		return value
	}

	return packed
}

func decompress(value string) (string, error) {
	if !strings.HasPrefix(value, compressedPrefix) {
		return value, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, compressedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode compressed cookie: %w", err)
	}

	text, err := zstdDecoder.DecodeAll(raw, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decompress cookie: %w", err)
	}

	return string(text), nil
}
