package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Глобальные права пользователя (не путать с ролью в предмете).
const (
	RightsAdmin   = "Admin"
	RightsTeacher = "Teacher" // может создавать предметы
)

type User struct {
	gorm.Model
	Name         string `gorm:"not null"`
	Surname      string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Rights       string `gorm:"not null;default:''"` // "Admin", "Teacher" или пусто
}

// Subject предмет; очередь хранится в его строке (активность и версия) и в queue_groups.
type Subject struct {
	gorm.Model
	Code          string     `gorm:"uniqueIndex;not null"`
	Name          string     `gorm:"not null"`
	QueueActive   bool       `gorm:"default:false"`
	QueueVersion  int64      `gorm:"not null;default:1"` // оптимистичная блокировка очереди
	InactiveSince *time.Time `gorm:"index"`              // момент закрытия очереди, nil пока открыта
}

// UserSubject роль пользователя в предмете.
type UserSubject struct {
	gorm.Model
	UserID    uint    `gorm:"uniqueIndex:idx_user_subject;not null"`
	User      User    `gorm:"foreignKey:UserID"`
	SubjectID uint    `gorm:"uniqueIndex:idx_user_subject;not null"`
	Subject   Subject `gorm:"foreignKey:SubjectID"`
	Role      string  `gorm:"not null"` // Teacher, Assistant или Student
}

// QueueGroup одна группа в очереди предмета.
type QueueGroup struct {
	ID          string                      `gorm:"primaryKey;type:varchar(36)"`
	SubjectID   uint                        `gorm:"index;not null"`
	Users       datatypes.JSONSlice[string] `gorm:"not null"`
	Helper      *string
	TimeEntered time.Time `gorm:"not null"`
	Comment     string
	Task        int `gorm:"not null;default:1"`
	Location    *string
	Position    int `gorm:"not null"`
}

// Broadcast объявление преподавателя для предмета.
type Broadcast struct {
	gorm.Model
	SubjectID uint   `gorm:"index;not null"`
	AuthorID  uint   `gorm:"not null"`
	Title     string `gorm:"not null"`
	Content   string `gorm:"not null"`
}

// All список моделей для AutoMigrate.
func All() []interface{} {
	return []interface{}{&User{}, &Subject{}, &UserSubject{}, &QueueGroup{}, &Broadcast{}}
}
