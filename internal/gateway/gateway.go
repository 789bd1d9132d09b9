package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"helpqueue/internal/models"
	"helpqueue/internal/queue"
	"helpqueue/internal/ws"
)

// Oracle сообщает роль пользователя в предмете.
type Oracle interface {
	Role(ctx context.Context, subject, userID string) (queue.Role, error)
}

// BroadcastStore хранилище объявлений.
type BroadcastStore interface {
	List(ctx context.Context, subject string) ([]models.Broadcast, error)
	Create(ctx context.Context, subject string, authorID uint, title, content string) (models.Broadcast, error)
	Update(ctx context.Context, subject string, id uint, title, content string) (models.Broadcast, error)
	Delete(ctx context.Context, subject string, id uint) error
}

type Options struct {
	Engine     *queue.Engine
	Oracle     Oracle
	Hub        *ws.Hub
	Publisher  queue.Publisher // события объявлений; по умолчанию Hub
	Broadcasts BroadcastStore
	// RetryAttempts общее число попыток для Conflict и StorageUnavailable.
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Gateway точка входа для транспорта: проверяет роль через Oracle один раз на операцию,
// вызывает Engine и повторяет операцию при Conflict/StorageUnavailable.
type Gateway struct {
	engine     *queue.Engine
	oracle     Oracle
	hub        *ws.Hub
	pub        queue.Publisher
	broadcasts BroadcastStore
	attempts   int
	backoff    time.Duration
}

func New(opts Options) *Gateway {
	g := &Gateway{
		engine:     opts.Engine,
		oracle:     opts.Oracle,
		hub:        opts.Hub,
		pub:        opts.Publisher,
		broadcasts: opts.Broadcasts,
		attempts:   opts.RetryAttempts,
		backoff:    opts.RetryBackoff,
	}
	if g.pub == nil {
		g.pub = g.hub
	}
	if g.attempts < 1 {
		g.attempts = 1
	}
	return g
}

// JoinRequest заявка на место в очереди. Вызывающий всегда входит в группу.
type JoinRequest struct {
	Members  []string
	Task     int
	Comment  string
	Location string
}

// ActivateQueue открывает или закрывает очередь (преподаватель или ассистент).
func (g *Gateway) ActivateQueue(ctx context.Context, subject, callerID string, active bool) error {
	if _, err := g.require(ctx, subject, callerID, staffOnly); err != nil {
		return err
	}
	return g.retry(ctx, func() error {
		return g.engine.SetActive(ctx, subject, active)
	})
}

// JoinQueue ставит группу в конец очереди.
func (g *Gateway) JoinQueue(ctx context.Context, subject, callerID string, req JoinRequest) (queue.Group, error) {
	if _, err := g.require(ctx, subject, callerID, anyRole); err != nil {
		return queue.Group{}, err
	}
	members := append([]string{callerID}, req.Members...)
	task := req.Task
	if task == 0 {
		task = 1
	}
	var group queue.Group
	err := g.retry(ctx, func() error {
		var err error
		group, err = g.engine.Join(ctx, subject, queue.JoinRequest{
			Users:    members,
			Task:     task,
			Comment:  req.Comment,
			Location: req.Location,
		})
		return err
	})
	return group, err
}

// LeaveQueue убирает вызывающего из очереди; повторный вызов ничего не меняет.
func (g *Gateway) LeaveQueue(ctx context.Context, subject, callerID string) error {
	if _, err := g.require(ctx, subject, callerID, anyRole); err != nil {
		return err
	}
	return g.retry(ctx, func() error {
		return g.engine.LeaveSelf(ctx, subject, callerID)
	})
}

// RemoveGroup удаляет группу: персонал любую, участник только свою.
func (g *Gateway) RemoveGroup(ctx context.Context, subject, groupID, requesterID string) error {
	role, err := g.require(ctx, subject, requesterID, anyRole)
	if err != nil {
		return err
	}
	return g.retry(ctx, func() error {
		return g.engine.RemoveGroup(ctx, subject, groupID, requesterID, role)
	})
}

func (g *Gateway) ClaimGroup(ctx context.Context, subject, groupID, helperID string) error {
	if _, err := g.require(ctx, subject, helperID, staffOnly); err != nil {
		return err
	}
	return g.retry(ctx, func() error {
		return g.engine.Claim(ctx, subject, groupID, helperID)
	})
}

func (g *Gateway) UnclaimGroup(ctx context.Context, subject, groupID, callerID string) error {
	if _, err := g.require(ctx, subject, callerID, staffOnly); err != nil {
		return err
	}
	return g.retry(ctx, func() error {
		return g.engine.Unclaim(ctx, subject, groupID)
	})
}

// DelayGroup сдвигает группу назад; возвращает фактический сдвиг.
func (g *Gateway) DelayGroup(ctx context.Context, subject, groupID, callerID string, amount int) (int, error) {
	if amount < 1 {
		return 0, fmt.Errorf("%w: delay must be >= 1, got %d", queue.ErrInvalidArgument, amount)
	}
	if _, err := g.require(ctx, subject, callerID, staffOnly); err != nil {
		return 0, err
	}
	var applied int
	err := g.retry(ctx, func() error {
		var err error
		applied, err = g.engine.Delay(ctx, subject, groupID, amount)
		return err
	})
	return applied, err
}

// Snapshot текущая очередь для любого участника предмета.
func (g *Gateway) Snapshot(ctx context.Context, subject, callerID string) (*queue.Queue, error) {
	if _, err := g.require(ctx, subject, callerID, anyRole); err != nil {
		return nil, err
	}
	var q *queue.Queue
	err := g.retry(ctx, func() error {
		var err error
		q, err = g.engine.Snapshot(ctx, subject)
		return err
	})
	return q, err
}

// Subscribe подписывает участника предмета на события. Подписку нужно закрыть.
func (g *Gateway) Subscribe(ctx context.Context, subject, callerID string) (*ws.Subscription, error) {
	if _, err := g.require(ctx, subject, callerID, anyRole); err != nil {
		return nil, err
	}
	return g.hub.Subscribe(subject), nil
}

func (g *Gateway) ListBroadcasts(ctx context.Context, subject, callerID string) ([]models.Broadcast, error) {
	if _, err := g.require(ctx, subject, callerID, anyRole); err != nil {
		return nil, err
	}
	return g.broadcasts.List(ctx, subject)
}

func (g *Gateway) CreateBroadcast(ctx context.Context, subject string, authorID uint, title, content string) (models.Broadcast, error) {
	if err := validateBroadcast(title, content); err != nil {
		return models.Broadcast{}, err
	}
	if _, err := g.require(ctx, subject, UserKey(authorID), staffOnly); err != nil {
		return models.Broadcast{}, err
	}
	b, err := g.broadcasts.Create(ctx, subject, authorID, title, content)
	if err != nil {
		return models.Broadcast{}, err
	}
	g.pub.Publish(subject, queue.EventBroadcastChanged)
	return b, nil
}

func (g *Gateway) UpdateBroadcast(ctx context.Context, subject string, callerID, id uint, title, content string) (models.Broadcast, error) {
	if err := validateBroadcast(title, content); err != nil {
		return models.Broadcast{}, err
	}
	if _, err := g.require(ctx, subject, UserKey(callerID), staffOnly); err != nil {
		return models.Broadcast{}, err
	}
	b, err := g.broadcasts.Update(ctx, subject, id, title, content)
	if err != nil {
		return models.Broadcast{}, err
	}
	g.pub.Publish(subject, queue.EventBroadcastChanged)
	return b, nil
}

func (g *Gateway) DeleteBroadcast(ctx context.Context, subject string, callerID, id uint) error {
	if _, err := g.require(ctx, subject, UserKey(callerID), staffOnly); err != nil {
		return err
	}
	if err := g.broadcasts.Delete(ctx, subject, id); err != nil {
		return err
	}
	g.pub.Publish(subject, queue.EventBroadcastChanged)
	return nil
}

// RequireTeacher проверяет, что пользователь преподаватель предмета или администратор.
func (g *Gateway) RequireTeacher(ctx context.Context, subject, userID string) error {
	_, err := g.require(ctx, subject, userID, func(r queue.Role) bool {
		return r == queue.RoleTeacher || r == queue.RoleAdmin
	})
	return err
}

// NotifyBroadcasts сообщает зрителям, что объявления изменились вне Gateway (очистка по расписанию).
func (g *Gateway) NotifyBroadcasts(subject string) {
	g.pub.Publish(subject, queue.EventBroadcastChanged)
}

type policy func(queue.Role) bool

func anyRole(r queue.Role) bool { return r != queue.RoleNone }

func staffOnly(r queue.Role) bool { return r.IsStaff() }

func (g *Gateway) require(ctx context.Context, subject, userID string, allowed policy) (queue.Role, error) {
	var role queue.Role
	err := g.retry(ctx, func() error {
		var err error
		role, err = g.oracle.Role(ctx, subject, userID)
		return err
	})
	if err != nil {
		return queue.RoleNone, err
	}
	if !allowed(role) {
		return role, fmt.Errorf("%w: user %s in subject %s", queue.ErrForbidden, userID, subject)
	}
	return role, nil
}

// retry повторяет операцию целиком, пока ошибка Retryable, с линейно растущей паузой.
func (g *Gateway) retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil || !queue.Retryable(err) || attempt >= g.attempts {
			return err
		}
		log.Printf("Повтор операции (%d/%d): %v", attempt, g.attempts, err)
		if g.backoff <= 0 {
			continue
		}
		t := time.NewTimer(time.Duration(attempt) * g.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}

func validateBroadcast(title, content string) error {
	if title == "" {
		return fmt.Errorf("%w: title not set", queue.ErrInvalidArgument)
	}
	if content == "" {
		return fmt.Errorf("%w: content not set", queue.ErrInvalidArgument)
	}
	return nil
}

// UserKey строковый идентификатор пользователя, которым оперирует очередь.
func UserKey(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
