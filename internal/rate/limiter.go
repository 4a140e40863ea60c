package rate

import (
	"context"
	"strings"
	"time"
)

// Rule is the budget for one endpoint: at most Max hits per fixed Window.
type Rule struct {
	Max    int
	Window time.Duration
}

// Key builds the bucket key for a client hitting an endpoint. Discriminator is
// optional and further partitions the bucket (a username, a contact, a route
// parameter).
func Key(endpoint, clientIP, discriminator string) string {
	parts := []string{"rl", endpoint, clientIP}
	if discriminator != "" {
		parts = append(parts, discriminator)
	}
	return strings.Join(parts, ":")
}

// Limiter counts hits against fixed windows. Allow records the hit and reports
// whether it fit the budget; when it did not, retryAfter is the time left in
// the current window.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (allowed bool, retryAfter time.Duration, err error)
}
