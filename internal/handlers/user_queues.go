package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetUserQueuesHandler godoc
// @Summary		Получение списка своих очередей
// @Description	Получение списка очередей, в которых пользователь сейчас стоит, с позицией и номером задания
// @Tags			profile
// @Produce		json
// @Security		BearerAuth
// @Success		200	{array}		storage.QueuePosition	"Места пользователя в очередях"
// @Failure		503	{object}	response.ErrorResponse	"Хранилище недоступно (STORAGE_UNAVAILABLE)"
// @Router			/profile/queues [get]
func (h *Handler) GetUserQueuesHandler(c *gin.Context) {
	_, uid := caller(c)
	positions, err := h.Positions.UserPositions(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, positions)
}
