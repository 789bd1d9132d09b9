package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"helpqueue/internal/models"
	"helpqueue/internal/queue"

	"gorm.io/gorm"
)

// BroadcastStore объявления предметов.
type BroadcastStore struct {
	db *gorm.DB
}

func NewBroadcastStore(db *gorm.DB) *BroadcastStore {
	return &BroadcastStore{db: db}
}

func (s *BroadcastStore) subjectID(db *gorm.DB, code string) (uint, error) {
	var subject models.Subject
	if err := db.Select("id").Where("code = ?", code).First(&subject).Error; err != nil {
		return 0, err
	}
	return subject.ID, nil
}

// List объявления предмета, новые первыми.
func (s *BroadcastStore) List(ctx context.Context, code string) ([]models.Broadcast, error) {
	db := s.db.WithContext(ctx)
	id, err := s.subjectID(db, code)
	if err != nil {
		return nil, dbError(err, "subject "+code)
	}
	out := []models.Broadcast{}
	if err := db.Where("subject_id = ?", id).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, dbError(err, "broadcasts of "+code)
	}
	return out, nil
}

func (s *BroadcastStore) Create(ctx context.Context, code string, authorID uint, title, content string) (models.Broadcast, error) {
	db := s.db.WithContext(ctx)
	id, err := s.subjectID(db, code)
	if err != nil {
		return models.Broadcast{}, dbError(err, "subject "+code)
	}
	b := models.Broadcast{SubjectID: id, AuthorID: authorID, Title: title, Content: content}
	if err := db.Create(&b).Error; err != nil {
		return models.Broadcast{}, dbError(err, "create broadcast")
	}
	return b, nil
}

func (s *BroadcastStore) Update(ctx context.Context, code string, broadcastID uint, title, content string) (models.Broadcast, error) {
	db := s.db.WithContext(ctx)
	id, err := s.subjectID(db, code)
	if err != nil {
		return models.Broadcast{}, dbError(err, "subject "+code)
	}
	var b models.Broadcast
	if err := db.Where("id = ? AND subject_id = ?", broadcastID, id).First(&b).Error; err != nil {
		return models.Broadcast{}, dbError(err, broadcastName(broadcastID))
	}
	b.Title, b.Content = title, content
	if err := db.Save(&b).Error; err != nil {
		return models.Broadcast{}, dbError(err, "update "+broadcastName(broadcastID))
	}
	return b, nil
}

func (s *BroadcastStore) Delete(ctx context.Context, code string, broadcastID uint) error {
	db := s.db.WithContext(ctx)
	id, err := s.subjectID(db, code)
	if err != nil {
		return dbError(err, "subject "+code)
	}
	res := db.Where("id = ? AND subject_id = ?", broadcastID, id).Delete(&models.Broadcast{})
	if res.Error != nil {
		return dbError(res.Error, "delete "+broadcastName(broadcastID))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", queue.ErrNotFound, broadcastName(broadcastID))
	}
	return nil
}

// DeleteOlderThan удаляет объявления старше before и возвращает коды затронутых предметов.
func (s *BroadcastStore) DeleteOlderThan(ctx context.Context, before time.Time) ([]string, error) {
	db := s.db.WithContext(ctx)
	var codes []string
	err := db.Table("subjects AS s").
		Distinct("s.code").
		Joins("JOIN broadcasts b ON b.subject_id = s.id AND b.deleted_at IS NULL").
		Where("b.created_at < ?", before).
		Pluck("s.code", &codes).Error
	if err != nil {
		return nil, dbError(err, "stale broadcasts")
	}
	if len(codes) == 0 {
		return nil, nil
	}
	if err := db.Where("created_at < ?", before).Delete(&models.Broadcast{}).Error; err != nil {
		return nil, dbError(err, "delete stale broadcasts")
	}
	return codes, nil
}

func broadcastName(id uint) string {
	return "broadcast " + strconv.FormatUint(uint64(id), 10)
}
