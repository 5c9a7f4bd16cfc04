// Package ratelimit provides a per-sender token bucket so the Dispatcher
// never bursts a mailbox's outbound sends faster than the mail provider's
// own throttling tolerates, independent of how many PlanEntries happen to
// come due in the same tick.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter tracks one token bucket per sender mailbox ID and evicts buckets
// that have gone idle, the way a per-IP web limiter would.
type Limiter struct {
	senders map[uint]*sender
	mu      sync.RWMutex
	rps     rate.Limit
	burst   int
}

type sender struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter allowing rps sends per second per sender, with the
// given burst. It starts a background goroutine evicting senders idle for
// 30 or more minutes, checked every 10 minutes.
func New(rps float64, burst int) *Limiter {
	l := &Limiter{
		senders: make(map[uint]*sender),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go l.cleanup()
	return l
}

// Allow reports whether senderID may send now, consuming a token if so.
func (l *Limiter) Allow(senderID uint) bool {
	l.mu.Lock()
	s, exists := l.senders[senderID]
	if !exists {
		s = &sender{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.senders[senderID] = s
	}
	s.lastSeen = time.Now()
	l.mu.Unlock()

	return s.limiter.Allow()
}

// Wait blocks until senderID has a token available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, senderID uint) error {
	l.mu.Lock()
	s, exists := l.senders[senderID]
	if !exists {
		s = &sender{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.senders[senderID] = s
	}
	s.lastSeen = time.Now()
	limiter := s.limiter
	l.mu.Unlock()

	return limiter.Wait(ctx)
}

func (l *Limiter) cleanup() {
	for {
		time.Sleep(10 * time.Minute)

		l.mu.Lock()
		for id, s := range l.senders {
			if time.Since(s.lastSeen) >= 30*time.Minute {
				delete(l.senders, id)
			}
		}
		l.mu.Unlock()
	}
}
