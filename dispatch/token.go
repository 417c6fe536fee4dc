package dispatch

import (
	"crypto/sha1"
	"encoding/base64"
	"strings"
	"sync"
	"time"
)

// nodeToken computes the salted scheduler auth token:
// base64(sha1(uppercase(node)+yyyymm+salt)).
func nodeToken(node, salt string, now time.Time) string {
	month := now.UTC().Format("200601")
	sum := sha1.Sum([]byte(strings.ToUpper(node) + month + salt))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// NodeToken computes the salted scheduler auth token for (node, salt) as
// of now. Exported for HealthReporter, which authenticates diagnostics
// pings to scheduler nodes with the same scheme Dispatcher uses to poll
// them.
func NodeToken(node, salt string) string {
	return nodeToken(node, salt, time.Now())
}

// tokenCache recomputes the scheduler token only when the calendar month,
// node, or salt changes, avoiding a hash per poll.
type tokenCache struct {
	mu    sync.Mutex
	month string
	node  string
	salt  string
	token string
}

// Token returns the current token for (node, salt), recomputing on month
// rollover or a changed node/salt pair.
func (c *tokenCache) Token(node, salt string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	month := now.UTC().Format("200601")
	if c.token == "" || c.month != month || c.node != node || c.salt != salt {
		c.month = month
		c.node = node
		c.salt = salt
		c.token = nodeToken(node, salt, now)
	}
	return c.token
}

// TokenCache is the exported form of the month-scoped token cache, for
// HealthReporter's own diagnostics-ping auth headers.
type TokenCache struct {
	inner tokenCache
}

// Token returns the current salted token for (node, salt).
func (c *TokenCache) Token(node, salt string) string {
	return c.inner.Token(node, salt)
}
