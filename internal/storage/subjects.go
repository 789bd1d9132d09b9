package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"helpqueue/internal/models"
	"helpqueue/internal/queue"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const subjectsCacheKey = "helpqueue:subjects"

// ErrSubjectExists предмет с таким кодом уже есть.
var ErrSubjectExists = errors.New("subject already exists")

// SubjectSummary элемент списка предметов.
type SubjectSummary struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	QueueActive bool   `json:"queue_active"`
}

// Member роль пользователя, назначаемая в предмете.
type Member struct {
	UserID uint       `json:"user_id" binding:"required"`
	Role   queue.Role `json:"role" binding:"required"`
}

// SubjectStore предметы и роли участников. Список предметов кэшируется в Redis, если он настроен.
type SubjectStore struct {
	db  *gorm.DB
	rdb *redis.Client
	ttl time.Duration
}

func NewSubjectStore(db *gorm.DB, rdb *redis.Client, ttl time.Duration) *SubjectStore {
	return &SubjectStore{db: db, rdb: rdb, ttl: ttl}
}

// Create создает предмет с закрытой пустой очередью, создатель становится преподавателем.
func (s *SubjectStore) Create(ctx context.Context, code, name string, creatorID uint) (models.Subject, error) {
	subject := models.Subject{Code: code, Name: name, QueueVersion: 1}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Subject{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrSubjectExists, code)
		}
		if err := tx.Create(&subject).Error; err != nil {
			return err
		}
		return tx.Create(&models.UserSubject{
			UserID:    creatorID,
			SubjectID: subject.ID,
			Role:      string(queue.RoleTeacher),
		}).Error
	})
	if err != nil {
		if errors.Is(err, ErrSubjectExists) {
			return models.Subject{}, err
		}
		return models.Subject{}, dbError(err, "create subject "+code)
	}
	s.invalidate(ctx)
	return subject, nil
}

// List все предметы, отсортированные по коду.
func (s *SubjectStore) List(ctx context.Context) ([]SubjectSummary, error) {
	if cached, ok := s.cached(ctx); ok {
		return cached, nil
	}
	out := []SubjectSummary{}
	err := s.db.WithContext(ctx).Model(&models.Subject{}).
		Select("code", "name", "queue_active").
		Order("code").
		Scan(&out).Error
	if err != nil {
		return nil, dbError(err, "list subjects")
	}
	s.store(ctx, out)
	return out, nil
}

// SetMembers назначает роли участникам предмета (добавляет или обновляет).
func (s *SubjectStore) SetMembers(ctx context.Context, code string, members []Member) error {
	for _, m := range members {
		if m.Role == queue.RoleAdmin || !m.Role.Valid() {
			return fmt.Errorf("%w: role %q", queue.ErrInvalidArgument, m.Role)
		}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var subject models.Subject
		if err := tx.Select("id").Where("code = ?", code).First(&subject).Error; err != nil {
			return err
		}
		for _, m := range members {
			var user models.User
			if err := tx.Select("id").First(&user, m.UserID).Error; err != nil {
				return fmt.Errorf("%w: user %d", queue.ErrNotFound, m.UserID)
			}
			link := models.UserSubject{UserID: m.UserID, SubjectID: subject.ID}
			if err := tx.Where(link).Assign(models.UserSubject{Role: string(m.Role)}).FirstOrCreate(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return dbError(err, "members of "+code)
	}
	return nil
}

// SubjectsOf коды предметов, где у пользователя есть роль.
func (s *SubjectStore) SubjectsOf(ctx context.Context, userID uint) ([]SubjectSummary, error) {
	out := []SubjectSummary{}
	err := s.db.WithContext(ctx).Table("subjects AS s").
		Select("s.code, s.name, s.queue_active").
		Joins("JOIN user_subjects us ON us.subject_id = s.id AND us.deleted_at IS NULL").
		Where("us.user_id = ? AND s.deleted_at IS NULL", userID).
		Order("s.code").
		Scan(&out).Error
	if err != nil {
		return nil, dbError(err, "subjects of user "+strconv.FormatUint(uint64(userID), 10))
	}
	return out, nil
}

// Rights глобальные права пользователя.
func (s *SubjectStore) Rights(ctx context.Context, userID uint) (string, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "rights").First(&user, userID).Error; err != nil {
		return "", dbError(err, "user "+strconv.FormatUint(uint64(userID), 10))
	}
	return user.Rights, nil
}

func (s *SubjectStore) cached(ctx context.Context) ([]SubjectSummary, bool) {
	if s.rdb == nil || s.ttl <= 0 {
		return nil, false
	}
	raw, err := s.rdb.Get(ctx, subjectsCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("Ошибка чтения кэша предметов: %v", err)
		}
		return nil, false
	}
	var out []SubjectSummary
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

func (s *SubjectStore) store(ctx context.Context, list []SubjectSummary) {
	if s.rdb == nil || s.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, subjectsCacheKey, raw, s.ttl).Err(); err != nil {
		log.Printf("Ошибка записи кэша предметов: %v", err)
	}
}

// Invalidate сбрасывает кэш списка предметов (флаг активности очереди в нем меняется).
func (s *SubjectStore) Invalidate(ctx context.Context) { s.invalidate(ctx) }

func (s *SubjectStore) invalidate(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, subjectsCacheKey).Err(); err != nil {
		log.Printf("Ошибка сброса кэша предметов: %v", err)
	}
}
