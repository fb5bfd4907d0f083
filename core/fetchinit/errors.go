// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package fetchinit

import "fmt"

// InvalidCredentialsError reports a RequestInit.Credentials value outside the
// supported set. It indicates a programmer error: callers should fix the
// offending init rather than catch and continue.
type InvalidCredentialsError struct {
	// Value is the rejected credentials value.
	Value string
}

// Error returns a message identifying the offending value.
func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("Only credentials=include|omit support: %v", e.Value)
}
