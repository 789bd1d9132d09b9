package handlers

import (
	"context"
	"errors"
	"net/http"

	"helpqueue/internal/config"
	"helpqueue/internal/gateway"
	"helpqueue/internal/models"
	"helpqueue/internal/queue"
	"helpqueue/internal/response"
	"helpqueue/internal/storage"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SubjectService предметы и роли участников.
type SubjectService interface {
	Create(ctx context.Context, code, name string, creatorID uint) (models.Subject, error)
	List(ctx context.Context) ([]storage.SubjectSummary, error)
	SubjectsOf(ctx context.Context, userID uint) ([]storage.SubjectSummary, error)
	SetMembers(ctx context.Context, code string, members []storage.Member) error
	Rights(ctx context.Context, userID uint) (string, error)
	Invalidate(ctx context.Context)
}

// PositionSource места пользователя в очередях.
type PositionSource interface {
	UserPositions(ctx context.Context, userID string) ([]storage.QueuePosition, error)
}

// Handler HTTP-обработчики сервиса.
type Handler struct {
	DB        *gorm.DB
	JWT       config.JWT
	Gateway   *gateway.Gateway
	Subjects  SubjectService
	Positions PositionSource
}

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{queue.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "Не найдено"},
	{queue.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "Недостаточно прав"},
	{queue.ErrQueueInactive, http.StatusConflict, "QUEUE_INACTIVE", "Очередь не активна"},
	{queue.ErrAlreadyQueued, http.StatusConflict, "ALREADY_IN_QUEUE", "Пользователь уже состоит в этой очереди"},
	{queue.ErrInvalidArgument, http.StatusBadRequest, "VALIDATION_ERROR", "Ошибка валидации данных"},
	{queue.ErrConflict, http.StatusConflict, "CONFLICT", "Очередь изменилась, повторите запрос"},
	{queue.ErrStorageUnavailable, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Хранилище временно недоступно"},
	{storage.ErrSubjectExists, http.StatusConflict, "SUBJECT_EXISTS", "Предмет с таким кодом уже существует"},
}

// respondError переводит ошибку очереди в ответ API.
func respondError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			c.JSON(m.status, response.ErrorResponse{Code: m.code, Message: m.message, Details: err.Error()})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, response.ErrorResponse{
		Code:    "INTERNAL_ERROR",
		Message: "Внутренняя ошибка сервера",
		Details: err.Error(),
	})
}

func validationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.ErrorResponse{
		Code:    "VALIDATION_ERROR",
		Message: "Ошибка валидации данных",
		Details: err.Error(),
	})
}

// caller идентификатор пользователя, выставленный AuthMiddleware.
func caller(c *gin.Context) (uint, string) {
	id := c.GetUint("userID")
	return id, gateway.UserKey(id)
}
