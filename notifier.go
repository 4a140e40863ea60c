package credtrust

import (
	"context"
	"log/slog"
	"time"
)

// Message kinds passed to the Notifier.
const (
	KindEmailVerification = "email_verification"
	KindPhoneVerification = "phone_verification"
	KindPasswordReset     = "password_reset"
)

// Message is one out-of-band delivery: a verification link, an SMS code, a
// reset secret. Secret is the plaintext code or token; the engine only ever
// stores its hash.
type Message struct {
	Kind        string
	Destination string
	Secret      string
}

// Notifier delivers messages to the subject's contact channel. The engine
// treats delivery failures as operation failures, so implementations should
// retry transient errors themselves or be wrapped in NewRetryNotifier.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes deliveries to the structured logger. Development
// stub; it deliberately logs only the destination and kind, never the secret.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier. A nil logger falls back to
// slog.Default().
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggerNotifier{logger: logger}
}

func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	n.logger.Info("notification",
		"kind", message.Kind,
		"destination", message.Destination,
	)
	return nil
}

// RetryNotifier wraps another notifier with bounded retries and a fixed
// backoff between attempts.
type RetryNotifier struct {
	next     Notifier
	attempts int
	backoff  time.Duration
}

// NewRetryNotifier wraps next. Attempts below 1 are clamped to 1.
func NewRetryNotifier(next Notifier, attempts int, backoff time.Duration) *RetryNotifier {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryNotifier{next: next, attempts: attempts, backoff: backoff}
}

func (n *RetryNotifier) Send(ctx context.Context, message Message) error {
	var err error
	for i := 0; i < n.attempts; i++ {
		if i > 0 && n.backoff > 0 {
			select {
			case <-time.After(n.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = n.next.Send(ctx, message); err == nil {
			return nil
		}
	}
	return err
}
