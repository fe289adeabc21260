// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("ideaboard/auth")

// Option configures a service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source. A nil func is ignored.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions(opts []Option) serviceOptions {
	o := serviceOptions{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// startSpan opens a span named op tagged with the username. The returned
// func ends it, recording *errp when non-nil.
func startSpan(ctx context.Context, op, username string) (context.Context, func(errp *error)) {
	ctx, span := tracer.Start(ctx, op,
		trace.WithAttributes(attribute.String("account.username", username)),
	)
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			span.RecordError(*errp)
			span.SetStatus(codes.Error, (*errp).Error())
		}
		span.End()
	}
}
