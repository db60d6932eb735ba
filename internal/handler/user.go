package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gvafram3/parcel-console/internal/model"
	"github.com/gvafram3/parcel-console/internal/repository"
	"github.com/gvafram3/parcel-console/internal/service"
	"github.com/gvafram3/parcel-console/pkg/response"
)

type UserHandler struct {
	users repository.UserRepository
	log   zerolog.Logger
}

func NewUserHandler(users repository.UserRepository, log zerolog.Logger) *UserHandler {
	return &UserHandler{users: users, log: log.With().Str("component", "user").Logger()}
}

func (h *UserHandler) Register(r *gin.RouterGroup) {
	g := r.Group("/users")
	{
		g.GET("", h.search)
		g.PATCH("/:user_id/deactivate", h.deactivate)
	}
}

type searchUsersQuery struct {
	Page     int    `form:"page" binding:"gte=0"`
	Size     int    `form:"size,default=20" binding:"gte=1,lte=100"`
	OfficeID string `form:"officeId"`
	Role     string `form:"role" binding:"omitempty,oneof=ADMIN MANAGER FRONTDESK RIDER"`
	Active   *bool  `form:"active"`
}

func (h *UserHandler) search(c *gin.Context) {
	u := currentUser(c)
	if u.Role != model.RoleAdmin && u.Role != model.RoleManager {
		response.WriteError(c, response.ErrForbidden)
		return
	}
	var q searchUsersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.WriteError(c, bindError(err))
		return
	}
	filter := repository.UserFilter{OfficeID: q.OfficeID, Role: model.Role(q.Role), Active: q.Active}
	if !u.Viewer().Privileged() {
		if filter.OfficeID != "" && filter.OfficeID != u.OfficeID {
			response.WriteError(c, response.ErrForbidden)
			return
		}
		filter.OfficeID = u.OfficeID
	}
	res, err := h.users.Search(c.Request.Context(), filter, repository.PageOf(q.Page, q.Size))
	if err != nil {
		response.WriteError(c, err)
		return
	}
	response.WriteData(c, http.StatusOK, response.NewPage(res, q.Page, q.Size))
}

func (h *UserHandler) deactivate(c *gin.Context) {
	u := currentUser(c)
	if !u.Viewer().Privileged() {
		response.WriteError(c, response.ErrForbidden)
		return
	}
	id := c.Param("user_id")
	if id == u.ID {
		response.WriteError(c, service.InvalidInput(service.FieldError{Field: "user_id", Message: "cannot deactivate yourself"}))
		return
	}
	out, err := h.users.Deactivate(c.Request.Context(), id)
	if err != nil {
		response.WriteError(c, err)
		return
	}
	h.log.Info().Str("user_id", id).Str("by", u.ID).Msg("user deactivated")
	response.WriteData(c, http.StatusOK, out)
}
