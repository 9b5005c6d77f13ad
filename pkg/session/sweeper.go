package session

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweepable is implemented by stores that can evict idle sessions.
type Sweepable interface {
	Sweep(maxIdle time.Duration) int
}

// Sweeper periodically evicts idle sessions from a store on a cron
// schedule. The Redis backend relies on key TTLs instead and does not
// need a sweeper.
type Sweeper struct {
	cron *cron.Cron
}

// NewSweeper schedules Sweep calls against the store. The schedule uses
// cron syntax, including descriptors like "@every 10m".
func NewSweeper(store Sweepable, schedule string, maxIdle time.Duration) (*Sweeper, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if removed := store.Sweep(maxIdle); removed > 0 {
			log.Printf("session sweep: evicted %d idle sessions", removed)
		}
	})
	if err != nil {
		return nil, err
	}
	return &Sweeper{cron: c}, nil
}

// Start begins running the sweep schedule in its own goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop stops the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
