// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/ideaboard/ideaboard/internal/auth"
	"github.com/ideaboard/ideaboard/internal/observability"
	"github.com/ideaboard/ideaboard/pkg/errutil"
)

// DefaultSendTimeout bounds a single delivery.
const DefaultSendTimeout = 30 * time.Second

// Dispatcher sends mail in the background so request handlers never wait
// on SMTP. Failures are logged and counted, never returned to the caller.
type Dispatcher struct {
	mailer  Mailer
	metrics *observability.Metrics
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	stop   context.CancelFunc
	base   context.Context
}

// NewDispatcher creates a Dispatcher. A non-positive timeout uses
// DefaultSendTimeout. metrics may be nil.
func NewDispatcher(mailer Mailer, metrics *observability.Metrics, logger *slog.Logger, timeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	base, stop := context.WithCancel(context.Background())
	return &Dispatcher{
		mailer:  mailer,
		metrics: metrics,
		logger:  logger,
		timeout: timeout,
		base:    base,
		stop:    stop,
	}
}

// ResetCode queues delivery of a password reset code.
func (d *Dispatcher) ResetCode(ctx context.Context, issued *auth.IssuedCode) {
	d.dispatch(ctx, observability.CodeKindReset, issued, d.mailer.SendResetCode)
}

// VerificationCode queues delivery of an email verification code.
func (d *Dispatcher) VerificationCode(ctx context.Context, issued *auth.IssuedCode) {
	d.dispatch(ctx, observability.CodeKindEmail, issued, d.mailer.SendVerificationCode)
}

type sendFunc func(ctx context.Context, to, username, code string) error

func (d *Dispatcher) dispatch(ctx context.Context, kind string, issued *auth.IssuedCode, send sendFunc) {
	if issued == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.WarnContext(ctx, "mail dispatcher closed, dropping message", "kind", kind, "username", issued.Username)
		d.metrics.RecordMailFailure(kind)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	// Keep request values such as the trace span, drop its cancellation.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	unlink := context.AfterFunc(d.base, cancel)
	to, username, code := issued.Email, issued.Username, issued.Code

	go func() {
		defer d.wg.Done()
		defer cancel()
		defer unlink()

		if err := send(sendCtx, to, username, code); err != nil {
			d.metrics.RecordMailFailure(kind)
			errutil.LogErrorContext(sendCtx, d.logger, "mail delivery failed",
				oops.With("kind", kind).With("username", username).Wrap(err))
		}
	}()
}

// Close stops accepting messages and waits for in-flight deliveries until
// ctx is done. At the deadline it cancels whatever is still running and
// returns without waiting for those sends to unwind.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.stop()
		return nil
	case <-ctx.Done():
		d.stop()
		return oops.Code("MAIL_CLOSE_TIMEOUT").Wrap(ctx.Err())
	}
}
