package ai

import (
	"sync"
	"time"
)

// DefaultRetryTTL is how long a failed request stays replayable.
const DefaultRetryTTL = 5 * time.Minute

// RetryCache holds the last AI request so a retry after an upstream
// failure replays the exact prior prompt. One cache is shared by every
// handler; a successful response clears it to prevent stale retries.
type RetryCache struct {
	mu          sync.Mutex
	messages    []PromptMessage
	instruction string
	storedAt    time.Time
	ttl         time.Duration
	clock       func() time.Time
}

// NewRetryCache creates a cache with the default 5-minute TTL.
func NewRetryCache() *RetryCache {
	return &RetryCache{ttl: DefaultRetryTTL, clock: time.Now}
}

// Store records the prompt transcript and optional initial instruction.
func (c *RetryCache) Store(messages []PromptMessage, instruction string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append([]PromptMessage(nil), messages...)
	c.instruction = instruction
	c.storedAt = c.clock()
}

// Get returns the cached request when it is still within the TTL.
func (c *RetryCache) Get() (messages []PromptMessage, instruction string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.validLocked() {
		return nil, "", false
	}
	return append([]PromptMessage(nil), c.messages...), c.instruction, true
}

// CanRetry reports whether a replayable request is cached and fresh.
func (c *RetryCache) CanRetry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validLocked()
}

// Clear drops the cached request. Called on any successful response.
func (c *RetryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.instruction = ""
	c.storedAt = time.Time{}
}

func (c *RetryCache) validLocked() bool {
	if len(c.messages) == 0 {
		return false
	}
	return c.clock().Sub(c.storedAt) <= c.ttl
}
