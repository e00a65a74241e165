package rss

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MinPollingInterval is the shortest allowed interval between feed refreshes.
const MinPollingInterval = 15 * time.Minute

// fetchTimeout bounds one FetchAll pass.
const fetchTimeout = 10 * time.Minute

// Poller refreshes the article feeds in the background.
type Poller struct {
	fetcher  *Fetcher
	interval time.Duration
	log      *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a background poller. Intervals below MinPollingInterval
// are raised to it.
func NewPoller(fetcher *Fetcher, interval time.Duration, log *zap.Logger) *Poller {
	if interval < MinPollingInterval {
		interval = MinPollingInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Interval returns the effective polling interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start begins the polling loop with an immediate first pass.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
			go func() {
				select {
				case <-p.stopChan:
					cancel()
				case <-ctx.Done():
				}
			}()
			results, err := p.fetcher.FetchAll(ctx)
			cancel()

			if err != nil {
				p.log.Warn("article poll failed", zap.Error(err))
			} else {
				total := 0
				for _, c := range results {
					total += c
				}
				p.log.Info("article poll complete",
					zap.Int("new_articles", total),
					zap.Int("feeds", len(results)),
					zap.Duration("next_in", p.interval))
			}

			select {
			case <-p.stopChan:
				return
			case <-time.After(p.interval):
			}
		}
	}()
}

// Stop stops the poller and waits for an in-flight pass to end.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}
