package marketplace

import (
	"sync"
	"time"
)

// Backoff windows by failure class.
const (
	backoffQualityGate  = 24 * time.Hour
	backoffAuthRejected = 30 * time.Minute
	backoffServerError  = 10 * time.Minute
	backoffUnknown      = 5 * time.Minute
)

// classifyBackoff maps a failure to its cool-down. Status 0 means a
// transport failure.
func classifyBackoff(status int) (time.Duration, string) {
	switch {
	case status == 422:
		return backoffQualityGate, "quality gate rejection"
	case status == 401 || status == 403:
		return backoffAuthRejected, "auth rejected"
	case status >= 500:
		return backoffServerError, "server error"
	default:
		return backoffUnknown, "unknown failure"
	}
}

type backoffEntry struct {
	until  time.Time
	reason string
}

// hostBackoff keeps an in-memory cool-down per marketplace host so a
// failing index is not hammered. Cleared on the next success.
type hostBackoff struct {
	mu    sync.Mutex
	hosts map[string]backoffEntry
	now   func() time.Time
}

func newHostBackoff() *hostBackoff {
	return &hostBackoff{hosts: make(map[string]backoffEntry), now: time.Now}
}

// active reports whether the host is cooling down; expired entries are
// evicted on read.
func (b *hostBackoff) active(host string) (time.Time, string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.hosts[host]
	if !ok {
		return time.Time{}, "", false
	}
	if b.now().After(entry.until) {
		delete(b.hosts, host)
		return time.Time{}, "", false
	}
	return entry.until, entry.reason, true
}

// note records a failure, replacing any shorter window already set.
func (b *hostBackoff) note(host string, status int) {
	d, reason := classifyBackoff(status)
	b.mu.Lock()
	defer b.mu.Unlock()
	until := b.now().Add(d)
	if existing, ok := b.hosts[host]; ok && existing.until.After(until) {
		return
	}
	b.hosts[host] = backoffEntry{until: until, reason: reason}
}

func (b *hostBackoff) clear(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.hosts, host)
}
