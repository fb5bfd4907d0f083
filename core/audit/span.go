// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package audit

import (
	"context"
	"encoding/base64"
	"fmt"
	"runtime/trace"
	"strconv"
	"time"

	servertiming "github.com/mitchellh/go-server-timing"
	"github.com/rs/zerolog/log"
)

// Span represents a single round-trip in flight: either a viewer message
// awaiting its response, or a network fetch made on behalf of an embedded
// document.
type Span struct {
	// only these fields are set automatically
	task     *trace.Task
	start    time.Time
	duration time.Duration
	metric   *servertiming.Metric

	Destination TrafficDestination
	MessageID   string
	Topic       string
	Method      string
	URL         string
	StatusCode  int
	Error       error
	Size        int
}

// TrafficDestination describes the logical destination of a round-trip.
type TrafficDestination string

// Constants for traffic destinations.
const (
	ToViewer  TrafficDestination = "viewer"
	ToNetwork TrafficDestination = "network"
)

func (span Span) ServerTimingName() string {
	// base64 without trailing '=' to match the Server-Timing token syntax
	return string(span.Destination) + "$" + span.Topic + "$" + base64.RawURLEncoding.EncodeToString([]byte(span.URL))
}

func (span *Span) Begin(ctx context.Context) context.Context {
	span.start = time.Now()

	ctx, span.task = trace.NewTask(ctx, "msg."+string(span.Destination))
	if servertimingContext := servertiming.FromContext(ctx); servertimingContext != nil {
		span.metric = servertimingContext.NewMetric(span.ServerTimingName())
		span.metric.Extra = make(map[string]string)
		span.metric.Extra["start"] = strconv.FormatFloat(float64(span.start.UnixNano())/float64(time.Millisecond), 'f', -1, 64)
	}

	return ctx
}

// End finalizes the span duration. Safe to call more than once.
func (span *Span) End() {
	// only finalize once
	if span.task != nil {
		span.duration = time.Since(span.start)
		span.task.End()

		if span.metric != nil {
			span.metric.Duration = span.duration
		}

		span.task = nil
	}
}

func (span Span) Log() {
	event := log.Debug()

	event.Str("sys", "msg")
	event.Str("destination", string(span.Destination))
	event.Str("topic", span.Topic)
	event.Str("message_id", span.MessageID)
	event.Dur("dur", span.duration)

	if span.Method != "" {
		event.Str("method", span.Method)
	}

	if span.URL != "" {
		event.Str("url", span.URL)
	}

	if span.StatusCode != 0 {
		event.Int("status_code", span.StatusCode)
	}

	if span.Size != 0 {
		event.Str("len", humanizeSize(span.Size))
	}

	if span.Error != nil {
		event.Err(span.Error)
	}

	event.Send()
}

const (
	bytesInKB = 1024
	bytesInMB = bytesInKB * bytesInKB
	bytesInGB = bytesInMB * bytesInKB
)

func humanizeSize(x int) string {
	if x < bytesInKB {
		return strconv.Itoa(x)
	}

	if x < bytesInMB {
		return fmt.Sprintf("%.2fK", float64(x)/bytesInKB)
	}

	if x < bytesInGB {
		return fmt.Sprintf("%.2fM", float64(x)/bytesInMB)
	}

	return fmt.Sprintf("%.2fG", float64(x)/bytesInGB)
}
