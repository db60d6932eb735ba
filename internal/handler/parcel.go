package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gvafram3/parcel-console/internal/model"
	"github.com/gvafram3/parcel-console/internal/repository"
	"github.com/gvafram3/parcel-console/pkg/response"
)

type ParcelHandler struct {
	parcels repository.ParcelRepository
	now     func() time.Time
	log     zerolog.Logger
}

func NewParcelHandler(parcels repository.ParcelRepository, now func() time.Time, log zerolog.Logger) *ParcelHandler {
	return &ParcelHandler{parcels: parcels, now: now, log: log.With().Str("component", "parcel").Logger()}
}

func (h *ParcelHandler) Register(r *gin.RouterGroup) {
	g := r.Group("/parcels")
	{
		g.GET("", h.search)
		g.GET("/:parcel_id", h.getByID)
		g.PATCH("/:parcel_id/deliver", h.deliver)
	}
}

type searchParcelsQuery struct {
	Page      int    `form:"page" binding:"gte=0"`
	Size      int    `form:"size,default=20" binding:"gte=1,lte=100"`
	OfficeID  string `form:"officeId"`
	Status    string `form:"status" binding:"omitempty,oneof=REGISTERED ASSIGNED IN_TRANSIT DELIVERED RETURNED"`
	Delivered *bool  `form:"delivered"`
	RiderID   string `form:"riderId"`
}

// scopeParcels narrows a filter to what the caller may see. Admins see
// everything; riders see their own parcels; everyone else sees their office.
func scopeParcels(u model.User, f repository.ParcelFilter) (repository.ParcelFilter, error) {
	if u.Viewer().Privileged() {
		return f, nil
	}
	if f.OfficeID != "" && f.OfficeID != u.OfficeID {
		return f, response.ErrForbidden
	}
	f.OfficeID = u.OfficeID
	if u.Role == model.RoleRider {
		f.RiderID = u.ID
	}
	return f, nil
}

func canSee(u model.User, p model.Parcel) bool {
	switch {
	case u.Viewer().Privileged():
		return true
	case u.Role == model.RoleRider:
		return p.RiderID == u.ID
	default:
		return p.OfficeID == u.OfficeID
	}
}

func (h *ParcelHandler) search(c *gin.Context) {
	var q searchParcelsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.WriteError(c, bindError(err))
		return
	}
	filter, err := scopeParcels(currentUser(c), repository.ParcelFilter{
		OfficeID:  q.OfficeID,
		Status:    model.ParcelStatus(q.Status),
		Delivered: q.Delivered,
		RiderID:   q.RiderID,
	})
	if err != nil {
		response.WriteError(c, err)
		return
	}
	res, err := h.parcels.Search(c.Request.Context(), filter, repository.PageOf(q.Page, q.Size))
	if err != nil {
		response.WriteError(c, err)
		return
	}
	response.WriteData(c, http.StatusOK, response.NewPage(res, q.Page, q.Size))
}

func (h *ParcelHandler) getByID(c *gin.Context) {
	p, err := h.visible(c)
	if err != nil {
		response.WriteError(c, err)
		return
	}
	response.WriteData(c, http.StatusOK, p)
}

func (h *ParcelHandler) deliver(c *gin.Context) {
	p, err := h.visible(c)
	if err != nil {
		response.WriteError(c, err)
		return
	}
	out, err := h.parcels.MarkDelivered(c.Request.Context(), p.ID, h.now())
	if err != nil {
		response.WriteError(c, err)
		return
	}
	h.log.Info().Str("parcel_id", p.ID).Str("by", currentUser(c).ID).Msg("parcel delivered")
	response.WriteData(c, http.StatusOK, out)
}

// visible loads the path parcel; parcels outside the caller's scope are reported as missing.
func (h *ParcelHandler) visible(c *gin.Context) (model.Parcel, error) {
	p, err := h.parcels.GetByID(c.Request.Context(), c.Param("parcel_id"))
	if err != nil {
		return model.Parcel{}, err
	}
	if !canSee(currentUser(c), p) {
		return model.Parcel{}, repository.ErrNotFound
	}
	return p, nil
}
