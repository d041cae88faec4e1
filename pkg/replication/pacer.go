package replication

import (
	"context"
	"strings"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// pacer holds writes back to the configured rate. Each target table gets its
// own limiter key.
type pacer struct {
	limiter *limiter.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
	m       *metrics
}

func newPacer(opts Options) (*pacer, error) {
	p := &pacer{sleep: opts.Sleep, m: getMetrics()}
	if opts.Limiter != nil {
		p.limiter = opts.Limiter
		return p, nil
	}
	if strings.TrimSpace(opts.Rate) == "" {
		return p, nil
	}
	rate, err := limiter.NewRateFromFormatted(opts.Rate)
	if err != nil {
		return nil, invalidConfig("rate %q: %v", opts.Rate, err)
	}
	p.limiter = limiter.New(memory.NewStore(), rate)
	return p, nil
}

func (p *pacer) wait(ctx context.Context, key string) error {
	if p.limiter == nil {
		return nil
	}
	for {
		lc, err := p.limiter.Get(ctx, key)
		if err != nil {
			return err
		}
		if !lc.Reached {
			return nil
		}
		p.m.throttled.Inc()
		d := time.Until(time.Unix(lc.Reset, 0))
		if d <= 0 {
			d = 10 * time.Millisecond
		}
		if err := p.sleep(ctx, d); err != nil {
			return err
		}
	}
}
