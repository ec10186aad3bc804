package app

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
)

// Purger deletes expired sessions. *session.Service implements it.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// StartJanitor runs p.PurgeExpired every interval until the returned stop
// func is called. Runs never overlap.
func StartJanitor(log Logger, p Purger, interval time.Duration) (stop func(), err error) {
	if p == nil {
		return nil, errors.New("janitor: nil purger")
	}
	if interval <= 0 {
		return nil, errors.New("janitor: interval must be > 0")
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	_, err = s.Every(interval).WaitForSchedule().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()

		n, err := p.PurgeExpired(ctx)
		if err != nil {
			log.Error("sessions.purge.fail", "err", err)
			return
		}
		log.Info("sessions.purge.ok", "purged", n)
	})
	if err != nil {
		return nil, err
	}

	s.StartAsync()
	log.Info("sessions.janitor.start", "interval", interval.String())

	return s.Stop, nil
}
