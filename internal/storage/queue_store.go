package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"helpqueue/internal/models"
	"helpqueue/internal/queue"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QueueStore хранит очередь предмета в Postgres: флаг активности и версия лежат в строке
// subjects, группы в queue_groups. Save переписывает группы целиком в одной транзакции
// и проверяет queue_version.
type QueueStore struct {
	db *gorm.DB
}

func NewQueueStore(db *gorm.DB) *QueueStore {
	return &QueueStore{db: db}
}

func (s *QueueStore) Load(ctx context.Context, code string) (*queue.Queue, error) {
	db := s.db.WithContext(ctx)

	var subject models.Subject
	if err := db.Where("code = ?", code).First(&subject).Error; err != nil {
		return nil, dbError(err, "subject "+code)
	}

	var rows []models.QueueGroup
	if err := db.Where("subject_id = ?", subject.ID).Order("position").Find(&rows).Error; err != nil {
		return nil, dbError(err, "queue of "+code)
	}

	q := &queue.Queue{
		Subject:       code,
		Active:        subject.QueueActive,
		InactiveSince: subject.InactiveSince,
		Version:       subject.QueueVersion,
		List:          make([]queue.Group, 0, len(rows)),
	}
	for _, r := range rows {
		q.List = append(q.List, groupFromRow(r))
	}
	return q, nil
}

func (s *QueueStore) Save(ctx context.Context, q *queue.Queue) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Subject{}).
			Where("code = ? AND queue_version = ?", q.Subject, q.Version).
			Updates(map[string]interface{}{
				"queue_active":   q.Active,
				"inactive_since": q.InactiveSince,
				"queue_version":  gorm.Expr("queue_version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}

		var subject models.Subject
		if err := tx.Select("id", "queue_version").Where("code = ?", q.Subject).First(&subject).Error; err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: subject %s at version %d, write based on %d",
				queue.ErrConflict, q.Subject, subject.QueueVersion, q.Version)
		}

		if err := tx.Where("subject_id = ?", subject.ID).Delete(&models.QueueGroup{}).Error; err != nil {
			return err
		}
		if len(q.List) == 0 {
			return nil
		}
		rows := make([]models.QueueGroup, 0, len(q.List))
		for _, g := range q.List {
			rows = append(rows, groupToRow(subject.ID, g))
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		if errors.Is(err, queue.ErrConflict) {
			return err
		}
		return dbError(err, "save queue of "+q.Subject)
	}
	q.Version++
	return nil
}

// IdleSince коды предметов, закрытых раньше before и все еще хранящих группы.
func (s *QueueStore) IdleSince(ctx context.Context, before time.Time) ([]string, error) {
	var codes []string
	err := s.db.WithContext(ctx).Model(&models.Subject{}).
		Where("queue_active = ? AND inactive_since < ?", false, before).
		Where("EXISTS (SELECT 1 FROM queue_groups g WHERE g.subject_id = subjects.id)").
		Pluck("code", &codes).Error
	if err != nil {
		return nil, dbError(err, "idle subjects")
	}
	return codes, nil
}

// QueuePosition место пользователя в очереди одного предмета.
type QueuePosition struct {
	SubjectCode string  `json:"subject_code"`
	SubjectName string  `json:"subject_name"`
	GroupID     string  `json:"group_id"`
	Position    int     `json:"position"`
	Task        int     `json:"task"`
	Helper      *string `json:"helper,omitempty"`
}

// UserPositions все очереди, в которых сейчас стоит пользователь.
func (s *QueueStore) UserPositions(ctx context.Context, userID string) ([]QueuePosition, error) {
	member, err := json.Marshal([]string{userID})
	if err != nil {
		return nil, err
	}
	out := []QueuePosition{}
	err = s.db.WithContext(ctx).Table("queue_groups AS g").
		Select("s.code AS subject_code, s.name AS subject_name, g.id AS group_id, g.position, g.task, g.helper").
		Joins("JOIN subjects s ON s.id = g.subject_id AND s.deleted_at IS NULL").
		Where("g.users::jsonb @> ?::jsonb", string(member)).
		Order("s.code").
		Scan(&out).Error
	if err != nil {
		return nil, dbError(err, "positions of user "+userID)
	}
	return out, nil
}

func groupFromRow(r models.QueueGroup) queue.Group {
	g := queue.Group{
		ID:          r.ID,
		Users:       append([]string(nil), r.Users...),
		TimeEntered: r.TimeEntered,
		Comment:     r.Comment,
		Task:        r.Task,
		Position:    r.Position,
	}
	if r.Helper != nil {
		g.Helper = *r.Helper
	}
	if r.Location != nil {
		g.Location = *r.Location
	}
	return g
}

func groupToRow(subjectID uint, g queue.Group) models.QueueGroup {
	r := models.QueueGroup{
		ID:          g.ID,
		SubjectID:   subjectID,
		Users:       datatypes.JSONSlice[string](append([]string(nil), g.Users...)),
		TimeEntered: g.TimeEntered,
		Comment:     g.Comment,
		Task:        g.Task,
		Position:    g.Position,
	}
	if g.Helper != "" {
		helper := g.Helper
		r.Helper = &helper
	}
	if g.Location != "" {
		loc := g.Location
		r.Location = &loc
	}
	return r
}

// dbError переводит ошибки gorm в ошибки очереди.
func dbError(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", queue.ErrNotFound, what)
	}
	if errors.Is(err, queue.ErrNotFound) || errors.Is(err, queue.ErrConflict) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", queue.ErrStorageUnavailable, what, err)
}
