package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"booking-service/internal/domain"
)

type ReminderStore interface {
	ListDueReminders(ctx context.Context, from, to time.Time) ([]domain.Booking, error)
	GetDetail(ctx context.Context, id uuid.UUID) (domain.BookingDetail, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ReminderJob sends one reminder per active booking that starts within
// lead of now.
type ReminderJob struct {
	store    ReminderStore
	notifier Notifier
	lead     time.Duration
	now      func() time.Time
	log      *zap.Logger
}

func NewReminderJob(store ReminderStore, notifier Notifier, lead time.Duration, log *zap.Logger) *ReminderJob {
	return &ReminderJob{
		store:    store,
		notifier: notifier,
		lead:     lead,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.Named("reminders"),
	}
}

// Run returns the number of reminders sent. A failed send leaves the
// booking unmarked so the next run retries it.
func (j *ReminderJob) Run(ctx context.Context) (int, error) {
	now := j.now()
	due, err := j.store.ListDueReminders(ctx, now, now.Add(j.lead))
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	sent := 0
	for _, b := range due {
		d, err := j.store.GetDetail(ctx, b.UUID)
		if err != nil {
			j.log.Error("load booking for reminder", zap.String("booking_uuid", b.UUID.String()), zap.Error(err))
			continue
		}
		if err := j.notifier.SendReminder(ctx, NoticeFor(KindReminder, d)); err != nil {
			j.log.Error("send reminder", zap.String("booking_uuid", b.UUID.String()), zap.Error(err))
			continue
		}
		if err := j.store.MarkReminded(ctx, b.UUID, now); err != nil {
			j.log.Error("mark reminded", zap.String("booking_uuid", b.UUID.String()), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

// Schedule registers the job on a cron scheduler and starts it. Stop the
// returned scheduler on shutdown.
func (j *ReminderJob) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := j.Run(ctx)
		if err != nil {
			j.log.Error("reminder run failed", zap.Error(err))
			return
		}
		if n > 0 {
			j.log.Info("reminders sent", zap.Int("count", n))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
