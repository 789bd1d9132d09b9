package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"helpqueue/internal/queue"
	"helpqueue/internal/response"

	"github.com/gin-gonic/gin"
)

type BroadcastRequest struct {
	Title   string `json:"title" example:"Консультация"`
	Content string `json:"content" example:"Сегодня в 18:00, ауд. 204"`
}

func broadcastID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("bid"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: broadcast id %q", queue.ErrInvalidArgument, c.Param("bid"))
	}
	return uint(id), nil
}

// ListBroadcasts
// @Summary		Объявления предмета
// @Tags			broadcasts
// @Produce		json
// @Param			code	path	string	true	"Код предмета"
// @Security		BearerAuth
// @Success		200	{array}		models.Broadcast
// @Failure		403	{object}	response.ErrorResponse	"Нет доступа к предмету (FORBIDDEN)"
// @Router			/api/subjects/{code}/broadcasts [get]
func (h *Handler) ListBroadcasts(c *gin.Context) {
	_, uid := caller(c)
	list, err := h.Gateway.ListBroadcasts(c.Request.Context(), c.Param("code"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateBroadcast
// @Summary		Новое объявление
// @Tags			broadcasts
// @Accept			json
// @Produce		json
// @Param			code	path	string				true	"Код предмета"
// @Param			body	body	BroadcastRequest	true	"Объявление"
// @Security		BearerAuth
// @Success		201	{object}	models.Broadcast
// @Failure		400	{object}	response.ErrorResponse	"Пустой заголовок или текст (VALIDATION_ERROR)"
// @Failure		403	{object}	response.ErrorResponse	"Только преподаватель или ассистент (FORBIDDEN)"
// @Router			/api/subjects/{code}/broadcasts [post]
func (h *Handler) CreateBroadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	id, _ := caller(c)
	b, err := h.Gateway.CreateBroadcast(c.Request.Context(), c.Param("code"), id, req.Title, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// UpdateBroadcast
// @Summary		Изменение объявления
// @Tags			broadcasts
// @Accept			json
// @Produce		json
// @Param			code	path	string				true	"Код предмета"
// @Param			bid		path	int					true	"ID объявления"
// @Param			body	body	BroadcastRequest	true	"Объявление"
// @Security		BearerAuth
// @Success		200	{object}	models.Broadcast
// @Failure		404	{object}	response.ErrorResponse	"Объявление не найдено (NOT_FOUND)"
// @Router			/api/subjects/{code}/broadcasts/{bid} [put]
func (h *Handler) UpdateBroadcast(c *gin.Context) {
	bid, err := broadcastID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	id, _ := caller(c)
	b, err := h.Gateway.UpdateBroadcast(c.Request.Context(), c.Param("code"), id, bid, req.Title, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// DeleteBroadcast
// @Summary		Удаление объявления
// @Tags			broadcasts
// @Produce		json
// @Param			code	path	string	true	"Код предмета"
// @Param			bid		path	int		true	"ID объявления"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		404	{object}	response.ErrorResponse	"Объявление не найдено (NOT_FOUND)"
// @Router			/api/subjects/{code}/broadcasts/{bid} [delete]
func (h *Handler) DeleteBroadcast(c *gin.Context) {
	bid, err := broadcastID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	id, _ := caller(c)
	if err := h.Gateway.DeleteBroadcast(c.Request.Context(), c.Param("code"), id, bid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Объявление удалено"})
}
