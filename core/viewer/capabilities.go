// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package viewer

import (
	"net/url"
	"slices"
	"strings"
)

// capParam is the viewer URL fragment parameter carrying the capability list.
const capParam = "cap"

// Capabilities is the set of capabilities a viewer declared.
type Capabilities map[string]struct{}

// NewCapabilities builds a set from a list of capability names. Empty names
// are dropped.
func NewCapabilities(names []string) Capabilities {
	caps := make(Capabilities, len(names))

	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			caps[name] = struct{}{}
		}
	}

	return caps
}

// ParseCapabilityFragment extracts capabilities from a viewer URL fragment,
// e.g. "origin=...&cap=xhr-interception,a2a". An unparseable fragment yields
// an empty set; capability parsing never fails a connection.
func ParseCapabilityFragment(fragment string) Capabilities {
	params, err := url.ParseQuery(fragment)
	if err != nil {
		return Capabilities{}
	}

	return NewCapabilities(strings.Split(params.Get(capParam), ","))
}

// Has reports whether the named capability was declared.
func (c Capabilities) Has(name string) bool {
	_, ok := c[name]

	return ok
}

// List returns the capability names, sorted.
func (c Capabilities) List() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
