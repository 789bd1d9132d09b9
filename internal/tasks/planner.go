package tasks

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// IdleSource находит предметы, закрытые раньше заданного момента и с непустым списком.
type IdleSource interface {
	IdleSince(ctx context.Context, before time.Time) ([]string, error)
}

type Sweeper interface {
	SweepIdle(ctx context.Context, subject string) (bool, error)
}

// BroadcastJanitor удаляет старые объявления и возвращает коды затронутых предметов.
type BroadcastJanitor interface {
	DeleteOlderThan(ctx context.Context, before time.Time) ([]string, error)
}

type Notifier interface {
	NotifyBroadcasts(subject string)
}

// Planner фоновые задачи сервиса.
type Planner struct {
	Idle    IdleSource
	Engine  Sweeper
	Grace   time.Duration
	Timeout time.Duration

	Broadcasts BroadcastJanitor
	Notify     Notifier
	Retention  time.Duration

	Now func() time.Time
}

func (p *Planner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Planner) context() (context.Context, context.CancelFunc) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

// SweepIdleQueues очищает очереди, таймер которых потерялся (например, при перезапуске).
// Возвращает число очищенных очередей.
func (p *Planner) SweepIdleQueues() int {
	ctx, cancel := p.context()
	defer cancel()

	subjects, err := p.Idle.IdleSince(ctx, p.now().Add(-p.Grace))
	if err != nil {
		log.Println("Ошибка поиска неактивных очередей:", err)
		return 0
	}

	cleared := 0
	for _, subject := range subjects {
		ok, err := p.Engine.SweepIdle(ctx, subject)
		if err != nil {
			log.Printf("Ошибка очистки очереди %s: %v\n", subject, err)
			continue
		}
		if ok {
			cleared++
			log.Printf("Очередь %s очищена после закрытия.\n", subject)
		}
	}
	return cleared
}

// CleanOldBroadcasts удаляет объявления старше Retention и оповещает зрителей.
func (p *Planner) CleanOldBroadcasts() int {
	if p.Broadcasts == nil || p.Retention <= 0 {
		return 0
	}
	ctx, cancel := p.context()
	defer cancel()

	subjects, err := p.Broadcasts.DeleteOlderThan(ctx, p.now().Add(-p.Retention))
	if err != nil {
		log.Println("Ошибка при удалении устаревших объявлений:", err)
		return 0
	}
	if p.Notify != nil {
		for _, subject := range subjects {
			p.Notify.NotifyBroadcasts(subject)
		}
	}
	if len(subjects) > 0 {
		log.Println("Устаревшие объявления успешно удалены.")
	}
	return len(subjects)
}

// InitScheduler инициализирует планировщик cron-задач.
func InitScheduler(sweepSpec string, p *Planner) *cron.Cron {
	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc(sweepSpec, func() { p.SweepIdleQueues() })
	if err != nil {
		log.Println("Ошибка запуска cron-задачи SweepIdleQueues:", err)
	}

	// Очистка устаревших объявлений каждый день в 03:00.
	_, err = c.AddFunc("0 0 3 * * *", func() { p.CleanOldBroadcasts() })
	if err != nil {
		log.Println("Ошибка запуска cron-задачи CleanOldBroadcasts:", err)
	}

	c.Start()
	log.Println("Cron-планировщик запущен.")
	return c
}
