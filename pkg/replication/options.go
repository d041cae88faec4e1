package replication

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/projtrack/pkg/logging"
)

type Options struct {
	// Rate is a ulule/limiter formatted rate such as "50-S". Empty disables
	// pacing.
	Rate string
	// BatchSize rows are written between two BatchDelay pauses.
	BatchSize  int
	BatchDelay time.Duration

	MaxAttempts     int
	MaxBackoff      time.Duration
	JitterMax       time.Duration
	LastErrorMaxLen int

	Logger *logrus.Entry

	// Limiter overrides the limiter built from Rate.
	Limiter *limiter.Limiter
	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  *rand.Rand
}

func (o *Options) setDefaults() {
	if o.BatchSize == 0 {
		o.BatchSize = 100
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 10 * time.Second
	}
	if o.JitterMax == 0 {
		o.JitterMax = 200 * time.Millisecond
	}
	if o.LastErrorMaxLen == 0 {
		o.LastErrorMaxLen = 512
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
