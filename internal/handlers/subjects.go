package handlers

import (
	"net/http"

	"helpqueue/internal/models"
	"helpqueue/internal/response"
	"helpqueue/internal/storage"

	"github.com/gin-gonic/gin"
)

type CreateSubjectRequest struct {
	Code string `json:"code" binding:"required" example:"CS101"`
	Name string `json:"name" binding:"required" example:"Программирование"`
}

type SetMembersRequest struct {
	Members []storage.Member `json:"members" binding:"required,dive"`
}

func canManageSubjects(rights string) bool {
	return rights == models.RightsAdmin || rights == models.RightsTeacher
}

// ListSubjects
// @Summary		Список предметов
// @Description	Администратор и преподаватель видят все предметы (список кэшируется в Redis), остальные только свои
// @Tags			subjects
// @Produce		json
// @Security		BearerAuth
// @Success		200	{array}		storage.SubjectSummary
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера"
// @Router			/api/subjects [get]
func (h *Handler) ListSubjects(c *gin.Context) {
	id, _ := caller(c)
	ctx := c.Request.Context()

	rights, err := h.Subjects.Rights(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	var list []storage.SubjectSummary
	if canManageSubjects(rights) {
		list, err = h.Subjects.List(ctx)
	} else {
		list, err = h.Subjects.SubjectsOf(ctx, id)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateSubject
// @Summary		Создание предмета
// @Description	Создатель становится преподавателем предмета
// @Tags			subjects
// @Accept			json
// @Produce		json
// @Param			body	body	CreateSubjectRequest	true	"Предмет"
// @Security		BearerAuth
// @Success		201	{object}	storage.SubjectSummary
// @Failure		403	{object}	response.ErrorResponse	"Нужны права Admin или Teacher (FORBIDDEN)"
// @Failure		409	{object}	response.ErrorResponse	"Код занят (SUBJECT_EXISTS)"
// @Router			/api/subjects [post]
func (h *Handler) CreateSubject(c *gin.Context) {
	var req CreateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	id, _ := caller(c)
	ctx := c.Request.Context()

	rights, err := h.Subjects.Rights(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !canManageSubjects(rights) {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    "FORBIDDEN",
			Message: "Недостаточно прав",
		})
		return
	}

	subject, err := h.Subjects.Create(ctx, req.Code, req.Name, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, storage.SubjectSummary{Code: subject.Code, Name: subject.Name, QueueActive: subject.QueueActive})
}

// SetMembers
// @Summary		Роли участников предмета
// @Description	Добавляет участников или меняет их роль (Teacher, Assistant, Student)
// @Tags			subjects
// @Accept			json
// @Produce		json
// @Param			code	path	string				true	"Код предмета"
// @Param			body	body	SetMembersRequest	true	"Участники"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		403	{object}	response.ErrorResponse	"Только преподаватель предмета (FORBIDDEN)"
// @Router			/api/subjects/{code}/users [put]
func (h *Handler) SetMembers(c *gin.Context) {
	var req SetMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	code := c.Param("code")
	_, uid := caller(c)
	ctx := c.Request.Context()

	if err := h.Gateway.RequireTeacher(ctx, code, uid); err != nil {
		respondError(c, err)
		return
	}
	if err := h.Subjects.SetMembers(ctx, code, req.Members); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Участники обновлены"})
}
