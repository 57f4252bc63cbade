package quiz

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper finalizes overdue timed attempts on a schedule. The client
// auto-finalizes on expiry; this is the server-side backstop for students who
// close the tab and never come back.
type Sweeper struct {
	store Store
	cron  *cron.Cron
}

func NewSweeper(store Store) *Sweeper {
	return &Sweeper{store: store, cron: cron.New()}
}

// Start registers the sweep at the given cron spec (e.g. "@every 1m") and
// starts the scheduler.
func (s *Sweeper) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := s.store.FinishOverdue(ctx, time.Now())
		if err != nil {
			log.Printf("sweeper: finish overdue: %v", err)
			return
		}
		if n > 0 {
			log.Printf("sweeper: finalized %d overdue attempts", n)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() { s.cron.Stop() }
