package response

import "helpqueue/internal/queue"

// SuccessResponse представляет успешный ответ API
type SuccessResponse struct {
	Message string `json:"message" example:"Операция успешно выполнена"`
}

// ErrorResponse представляет ответ с ошибкой API
type ErrorResponse struct {
	// Код ошибки для программной обработки
	// example: VALIDATION_ERROR
	Code string `json:"code"`

	// Человекочитаемое сообщение об ошибке
	// example: Ошибка валидации данных
	Message string `json:"message"`

	// Дополнительные детали об ошибке (опционально)
	// example: поле email должно быть валидным email адресом
	Details string `json:"details,omitempty"`
}

// TokenResponse представляет ответ с токенами авторизации
type TokenResponse struct {
	// JWT токен для доступа к защищенным эндпоинтам
	// example: eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9...
	AccessToken string `json:"access_token"`

	// JWT токен для обновления access токена
	// example: eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9...
	RefreshToken string `json:"refresh_token"`
}

// QueueResponse текущее состояние очереди предмета
type QueueResponse struct {
	Active bool          `json:"active" example:"true"`
	List   []queue.Group `json:"list"`
}

// JoinResponse созданная группа и ее место в очереди
type JoinResponse struct {
	ID       string `json:"id" example:"6f1c2a9e-3b0d-4c55-9a55-2f2c7d9b1e11"`
	Position int    `json:"position" example:"3"`
}

// DelayResponse фактический сдвиг (меньше запрошенного у конца очереди)
type DelayResponse struct {
	Applied int `json:"applied" example:"2"`
}
