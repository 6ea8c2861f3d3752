package client

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicyDelays(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		jitter time.Duration
		want   []time.Duration
	}{
		{
			name: "no jitter",
			want: []time.Duration{4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second},
		},
		{
			name:   "jitter is added before the cap",
			jitter: 900 * time.Millisecond,
			want: []time.Duration{
				4900 * time.Millisecond,
				8900 * time.Millisecond,
				16900 * time.Millisecond,
				30 * time.Second,
				30 * time.Second,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewReconnectPolicy()
			p.Jitter = func(time.Duration) time.Duration { return tt.jitter }

			for i, want := range tt.want {
				assert.Equal(t, want, p.NextBackOff(), "retry %d", i+1)
			}
			assert.Equal(t, backoff.Stop, p.NextBackOff())
			assert.Equal(t, backoff.Stop, p.NextBackOff())
			assert.Equal(t, 5, p.Retries())

			p.Reset()
			assert.Equal(t, 0, p.Retries())
			assert.Equal(t, tt.want[0], p.NextBackOff())
		})
	}
}

func TestReconnectPolicyDefaultJitterIsBounded(t *testing.T) {
	t.Parallel()
	p := NewReconnectPolicy()
	p.MaxRetries = 1

	d := p.NextBackOff()
	assert.GreaterOrEqual(t, d, 4*time.Second)
	assert.Less(t, d, 5*time.Second)
}

func TestReconnectPolicyLargeExponentSaturates(t *testing.T) {
	t.Parallel()
	p := &ReconnectPolicy{MaxRetries: 100, BaseInterval: time.Second, MaxDelay: time.Minute}

	var last time.Duration
	for i := 0; i < 100; i++ {
		last = p.NextBackOff()
		assert.LessOrEqual(t, last, time.Minute)
		assert.Positive(t, last)
	}
	assert.Equal(t, time.Minute, last)
}
