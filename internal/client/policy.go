package client

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxRetries   = 5
	DefaultBaseInterval = 2 * time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultMaxJitter    = time.Second
)

// ReconnectPolicy is a backoff.BackOff allowing MaxRetries scheduled retries. The n-th retry
// waits min(2^n * BaseInterval + jitter, MaxDelay) with jitter uniform in [0, MaxJitter).
// It is not safe for concurrent use; the Manager only touches it from its run loop.
type ReconnectPolicy struct {
	MaxRetries   int
	BaseInterval time.Duration
	MaxDelay     time.Duration
	MaxJitter    time.Duration
	// Jitter returns a value in [0, max). Nil means math/rand.
	Jitter func(max time.Duration) time.Duration

	retries int
}

var _ backoff.BackOff = (*ReconnectPolicy)(nil)

func NewReconnectPolicy() *ReconnectPolicy {
	return &ReconnectPolicy{
		MaxRetries:   DefaultMaxRetries,
		BaseInterval: DefaultBaseInterval,
		MaxDelay:     DefaultMaxDelay,
		MaxJitter:    DefaultMaxJitter,
	}
}

// NextBackOff counts one more retry and returns its delay, or backoff.Stop once the cap is reached.
func (p *ReconnectPolicy) NextBackOff() time.Duration {
	if p.retries >= p.MaxRetries {
		return backoff.Stop
	}
	p.retries++
	return p.delay(p.retries)
}

func (p *ReconnectPolicy) Reset() { p.retries = 0 }

// Retries is the number of retries handed out since the last Reset.
func (p *ReconnectPolicy) Retries() int { return p.retries }

func (p *ReconnectPolicy) delay(n int) time.Duration {
	d := p.MaxDelay
	// 2^n * base, saturating at MaxDelay before it can overflow
	if n < 62 {
		if exp := p.BaseInterval << uint(n); exp>>uint(n) == p.BaseInterval && exp < p.MaxDelay {
			d = exp
		}
	}
	d += p.jitter()
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p *ReconnectPolicy) jitter() time.Duration {
	if p.MaxJitter <= 0 {
		return 0
	}
	if p.Jitter != nil {
		return p.Jitter(p.MaxJitter)
	}
	return time.Duration(rand.Int63n(int64(p.MaxJitter)))
}
