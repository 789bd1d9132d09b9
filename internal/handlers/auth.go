package handlers

import (
	"net/http"

	"helpqueue/internal/auth"
	"helpqueue/internal/models"
	"helpqueue/internal/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Surname  string `json:"surname" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func abort(c *gin.Context, status int, code, message string) {
	c.JSON(status, response.ErrorResponse{Code: code, Message: message})
}

// issueTokens отвечает новой парой токенов для userID.
func (h *Handler) issueTokens(c *gin.Context, userID uint) {
	access, err := auth.GenerateToken(userID, h.JWT.AccessTTL, h.JWT.AccessSecret)
	if err == nil {
		var refresh string
		if refresh, err = auth.GenerateToken(userID, h.JWT.RefreshTTL, h.JWT.RefreshSecret); err == nil {
			c.JSON(http.StatusOK, response.TokenResponse{AccessToken: access, RefreshToken: refresh})
			return
		}
	}
	abort(c, http.StatusInternalServerError, "TOKEN_GENERATION_ERROR", "Не удалось выпустить токены")
}

// @Summary		Регистрация пользователя
// @Description	Новый аккаунт без прав; роли в предметах выдает преподаватель
// @Tags			auth
// @Accept			json
// @Produce		json
// @Param			body	body		RegisterRequest	true	"Тело запроса"
// @Success		201		{object}	response.SuccessResponse
// @Failure		400		{object}	response.ErrorResponse	"VALIDATION_ERROR, EMAIL_EXISTS"
// @Failure		500		{object}	response.ErrorResponse	"PASSWORD_HASH_ERROR, DB_ERROR"
// @Router			/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	db := h.DB.WithContext(c.Request.Context())

	var taken int64
	if err := db.Model(&models.User{}).Where("email = ?", req.Email).Count(&taken).Error; err != nil {
		abort(c, http.StatusInternalServerError, "DB_ERROR", "Не удалось проверить email")
		return
	}
	if taken > 0 {
		abort(c, http.StatusBadRequest, "EMAIL_EXISTS", "Email уже зарегистрирован")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		abort(c, http.StatusInternalServerError, "PASSWORD_HASH_ERROR", "Не удалось сохранить пароль")
		return
	}
	user := models.User{Name: req.Name, Surname: req.Surname, Email: req.Email, PasswordHash: string(hash)}
	if err := db.Create(&user).Error; err != nil {
		abort(c, http.StatusInternalServerError, "DB_ERROR", "Не удалось создать аккаунт")
		return
	}
	c.JSON(http.StatusCreated, response.SuccessResponse{Message: "Аккаунт создан"})
}

// @Summary		Авторизация пользователя
// @Tags			auth
// @Accept			json
// @Produce		json
// @Param			body	body		LoginRequest	true	"Тело запроса"
// @Success		200		{object}	response.TokenResponse
// @Failure		400		{object}	response.ErrorResponse	"VALIDATION_ERROR"
// @Failure		401		{object}	response.ErrorResponse	"INVALID_CREDENTIALS"
// @Failure		500		{object}	response.ErrorResponse	"TOKEN_GENERATION_ERROR"
// @Router			/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}

	// одинаковый ответ для неизвестного email и неверного пароля
	var user models.User
	err := h.DB.WithContext(c.Request.Context()).Where("email = ?", req.Email).First(&user).Error
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password))
	}
	if err != nil {
		abort(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Неверный email или пароль")
		return
	}
	h.issueTokens(c, user.ID)
}

// @Summary		Обновление access токена
// @Description	Выдает новую пару токенов; старый refresh токен не отзывается
// @Tags			auth
// @Accept			json
// @Produce		json
// @Param			body	body		RefreshTokenRequest	true	"Тело запроса"
// @Success		200		{object}	response.TokenResponse
// @Failure		400		{object}	response.ErrorResponse	"VALIDATION_ERROR"
// @Failure		401		{object}	response.ErrorResponse	"INVALID_REFRESH_TOKEN, USER_NOT_FOUND"
// @Failure		500		{object}	response.ErrorResponse	"TOKEN_GENERATION_ERROR"
// @Router			/auth/refresh [post]
func (h *Handler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}

	userID, err := auth.ParseToken(req.RefreshToken, h.JWT.RefreshSecret)
	if err != nil {
		abort(c, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh токен недействителен")
		return
	}
	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).Select("id").First(&user, userID).Error; err != nil {
		abort(c, http.StatusUnauthorized, "USER_NOT_FOUND", "Аккаунт удален")
		return
	}
	h.issueTokens(c, user.ID)
}
