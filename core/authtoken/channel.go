// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package authtoken

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Exlord/amphtml/core/viewer"
)

// AssistanceCapability is the capability a viewer host declares when it can
// mint identity tokens. The message topic for fetching one shares the name.
const AssistanceCapability = "viewer-assistance"

// ChannelRegistry resolves assistance over the viewer messaging channel.
// A document holds a ChannelRegistry from connection time; whether
// assistance exists depends on the capabilities the host declared.
type ChannelRegistry struct {
	channel viewer.Channel
}

// NewChannelRegistry wraps a connected viewer channel.
func NewChannelRegistry(channel viewer.Channel) *ChannelRegistry {
	return &ChannelRegistry{channel: channel}
}

// AssistanceForDoc returns (nil, nil) when there is no channel or the host
// never declared the assistance capability.
func (r *ChannelRegistry) AssistanceForDoc(_ context.Context) (Assistance, error) {
	if r.channel == nil || !r.channel.HasCapability(AssistanceCapability) {
		return nil, nil
	}

	return &channelAssistance{channel: r.channel}, nil
}

type channelAssistance struct {
	channel viewer.Channel
}

func (a *channelAssistance) GetIDToken(ctx context.Context) (string, error) {
	raw, err := a.channel.SendMessageAwaitResponse(ctx, AssistanceCapability, nil)
	if err != nil {
		return "", fmt.Errorf("identity token request failed: %w", err)
	}

	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", fmt.Errorf("malformed identity token response: %w", err)
	}

	return token, nil
}
