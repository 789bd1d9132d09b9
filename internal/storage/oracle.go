package storage

import (
	"context"
	"fmt"
	"strconv"

	"helpqueue/internal/models"
	"helpqueue/internal/queue"

	"gorm.io/gorm"
)

// RoleOracle определяет роль пользователя в предмете: глобальные права Admin
// важнее роли в предмете; без записи в user_subjects роль пустая.
type RoleOracle struct {
	db *gorm.DB
}

func NewRoleOracle(db *gorm.DB) *RoleOracle {
	return &RoleOracle{db: db}
}

func (o *RoleOracle) Role(ctx context.Context, code, userID string) (queue.Role, error) {
	uid, err := strconv.ParseUint(userID, 10, 64)
	if err != nil {
		return queue.RoleNone, fmt.Errorf("%w: user id %q", queue.ErrInvalidArgument, userID)
	}
	db := o.db.WithContext(ctx)

	var user models.User
	if err := db.Select("id", "rights").First(&user, uint(uid)).Error; err != nil {
		return queue.RoleNone, dbError(err, "user "+userID)
	}
	if user.Rights == models.RightsAdmin {
		return queue.RoleAdmin, nil
	}

	var subject models.Subject
	if err := db.Select("id").Where("code = ?", code).First(&subject).Error; err != nil {
		return queue.RoleNone, dbError(err, "subject "+code)
	}

	var links []models.UserSubject
	if err := db.Where("user_id = ? AND subject_id = ?", user.ID, subject.ID).Limit(1).Find(&links).Error; err != nil {
		return queue.RoleNone, dbError(err, "role of "+userID)
	}
	if len(links) == 0 {
		return queue.RoleNone, nil
	}
	role := queue.Role(links[0].Role)
	if !role.Valid() || role == queue.RoleAdmin {
		return queue.RoleNone, nil
	}
	return role, nil
}
