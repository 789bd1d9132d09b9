package handlers

import (
	"io"
	"net/http"
	"time"

	"helpqueue/internal/gateway"
	"helpqueue/internal/queue"
	"helpqueue/internal/response"
	"helpqueue/internal/ws"

	"github.com/gin-gonic/gin"
)

type ActivateQueueRequest struct {
	Activate bool `json:"activate"`
}

type JoinQueueRequest struct {
	Users    []uint `json:"users"` // кроме самого пользователя
	Task     int    `json:"task" example:"1"`
	Comment  string `json:"comment" example:"Вопрос по лабораторной 2"`
	Location string `json:"location" example:"Ауд. 204, стол 3"`
}

type DelayRequest struct {
	Delay int `json:"delay" binding:"required" example:"2"`
}

// GetQueue
// @Summary		Состояние очереди
// @Description	Возвращает флаг активности и группы, упорядоченные по позиции
// @Tags			queue
// @Produce		json
// @Param			code	path	string	true	"Код предмета"
// @Security		BearerAuth
// @Success		200	{object}	response.QueueResponse
// @Failure		403	{object}	response.ErrorResponse	"Нет доступа к предмету (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Предмет не найден (NOT_FOUND)"
// @Router			/api/subjects/{code}/queue [get]
func (h *Handler) GetQueue(c *gin.Context) {
	_, uid := caller(c)
	q, err := h.Gateway.Snapshot(c.Request.Context(), c.Param("code"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.QueueResponse{Active: q.Active, List: q.List})
}

// SetQueueActive
// @Summary		Открытие и закрытие очереди
// @Description	Закрытая очередь очищается, если ее не открыли снова в течение короткого времени
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			code	path	string					true	"Код предмета"
// @Param			body	body	ActivateQueueRequest	true	"Новое состояние"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		403	{object}	response.ErrorResponse	"Только преподаватель или ассистент (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Предмет не найден (NOT_FOUND)"
// @Router			/api/subjects/{code}/queue [put]
func (h *Handler) SetQueueActive(c *gin.Context) {
	var req ActivateQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	_, uid := caller(c)
	if err := h.Gateway.ActivateQueue(c.Request.Context(), c.Param("code"), uid, req.Activate); err != nil {
		respondError(c, err)
		return
	}
	if h.Subjects != nil {
		h.Subjects.Invalidate(c.Request.Context())
	}
	msg := "Очередь закрыта"
	if req.Activate {
		msg = "Очередь открыта"
	}
	c.JSON(http.StatusOK, response.SuccessResponse{Message: msg})
}

// JoinQueue
// @Summary		Вступление в очередь
// @Description	Ставит группу (пользователь и его напарники) в конец очереди
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			code	path	string				true	"Код предмета"
// @Param			body	body	JoinQueueRequest	true	"Группа"
// @Security		BearerAuth
// @Success		201	{object}	response.JoinResponse
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Failure		409	{object}	response.ErrorResponse	"Очередь закрыта (QUEUE_INACTIVE) или пользователь уже в очереди (ALREADY_IN_QUEUE)"
// @Router			/api/subjects/{code}/queue [post]
func (h *Handler) JoinQueue(c *gin.Context) {
	var req JoinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	members := make([]string, 0, len(req.Users))
	for _, id := range req.Users {
		members = append(members, gateway.UserKey(id))
	}
	_, uid := caller(c)
	g, err := h.Gateway.JoinQueue(c.Request.Context(), c.Param("code"), uid, gateway.JoinRequest{
		Members:  members,
		Task:     req.Task,
		Comment:  req.Comment,
		Location: req.Location,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.JoinResponse{ID: g.ID, Position: g.Position})
}

// LeaveQueue
// @Summary		Выход из очереди
// @Description	Убирает пользователя из его группы; пустая группа удаляется. Повторный вызов безопасен
// @Tags			queue
// @Produce		json
// @Param			code	path	string	true	"Код предмета"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Router			/api/subjects/{code}/queue [delete]
func (h *Handler) LeaveQueue(c *gin.Context) {
	_, uid := caller(c)
	if err := h.Gateway.LeaveQueue(c.Request.Context(), c.Param("code"), uid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Выход из очереди выполнен"})
}

// RemoveGroup
// @Summary		Удаление группы
// @Description	Преподаватель и ассистент удаляют любую группу, участник только свою
// @Tags			queue
// @Produce		json
// @Param			code	path	string	true	"Код предмета"
// @Param			gid		path	string	true	"ID группы"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		403	{object}	response.ErrorResponse	"Чужая группа (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Группа не найдена (NOT_FOUND)"
// @Router			/api/subjects/{code}/queue/{gid} [delete]
func (h *Handler) RemoveGroup(c *gin.Context) {
	_, uid := caller(c)
	if err := h.Gateway.RemoveGroup(c.Request.Context(), c.Param("code"), c.Param("gid"), uid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Группа удалена из очереди"})
}

// ClaimGroup
// @Summary		Взять группу
// @Tags			queue
// @Produce		json
// @Param			code	path	string	true	"Код предмета"
// @Param			gid		path	string	true	"ID группы"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		404	{object}	response.ErrorResponse	"Группа не найдена (NOT_FOUND)"
// @Router			/api/subjects/{code}/queue/{gid}/help [post]
func (h *Handler) ClaimGroup(c *gin.Context) {
	_, uid := caller(c)
	if err := h.Gateway.ClaimGroup(c.Request.Context(), c.Param("code"), c.Param("gid"), uid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Группа взята"})
}

// UnclaimGroup
// @Summary		Отпустить группу
// @Tags			queue
// @Produce		json
// @Param			code	path	string	true	"Код предмета"
// @Param			gid		path	string	true	"ID группы"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		404	{object}	response.ErrorResponse	"Группа не найдена (NOT_FOUND)"
// @Router			/api/subjects/{code}/queue/{gid}/help [delete]
func (h *Handler) UnclaimGroup(c *gin.Context) {
	_, uid := caller(c)
	if err := h.Gateway.UnclaimGroup(c.Request.Context(), c.Param("code"), c.Param("gid"), uid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Группа отпущена"})
}

// DelayGroup
// @Summary		Отложить группу
// @Description	Сдвигает группу на delay позиций назад (не дальше конца очереди) и снимает помощника
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			code	path	string			true	"Код предмета"
// @Param			gid		path	string			true	"ID группы"
// @Param			body	body	DelayRequest	true	"Сдвиг"
// @Security		BearerAuth
// @Success		200	{object}	response.DelayResponse
// @Failure		400	{object}	response.ErrorResponse	"delay < 1 (VALIDATION_ERROR)"
// @Failure		404	{object}	response.ErrorResponse	"Группа не найдена (NOT_FOUND)"
// @Router			/api/subjects/{code}/queue/{gid}/delay [post]
func (h *Handler) DelayGroup(c *gin.Context) {
	var req DelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	_, uid := caller(c)
	applied, err := h.Gateway.DelayGroup(c.Request.Context(), c.Param("code"), c.Param("gid"), uid, req.Delay)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.DelayResponse{Applied: applied})
}

// QueueWebSocket
// @Summary		Поток событий по WebSocket
// @Description	Сразу после подключения и при каждом изменении приходит {"subject","kind"}; kind = queue-changed | broadcast-changed. Токен можно передать в ?token=
// @Tags			queue
// @Param			code	path	string	true	"Код предмета"
// @Security		BearerAuth
// @Router			/api/subjects/{code}/ws [get]
func (h *Handler) QueueWebSocket(c *gin.Context) {
	code := c.Param("code")
	_, uid := caller(c)
	sub, err := h.Gateway.Subscribe(c.Request.Context(), code, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	conn, err := ws.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Close()
		return
	}
	client := &ws.Client{Conn: conn, Sub: sub}
	client.Serve(ws.Event{Subject: code, Kind: queue.EventQueueChanged})
}

// QueueEvents
// @Summary		Поток событий по SSE
// @Description	Server-Sent Events с теми же событиями, что и WebSocket
// @Tags			queue
// @Produce		text/event-stream
// @Param			code	path	string	true	"Код предмета"
// @Security		BearerAuth
// @Router			/api/subjects/{code}/events [get]
func (h *Handler) QueueEvents(c *gin.Context) {
	code := c.Param("code")
	_, uid := caller(c)
	sub, err := h.Gateway.Subscribe(c.Request.Context(), code, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	defer sub.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(queue.EventQueueChanged, ws.Event{Subject: code, Kind: queue.EventQueueChanged})
	c.Writer.Flush()

	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(ev.Kind, ev)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", "")
			return true
		}
	})
}
