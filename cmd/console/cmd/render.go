package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gvafram3/parcel-console/internal/liststore"
	"github.com/gvafram3/parcel-console/internal/model"
	"github.com/gvafram3/parcel-console/internal/service"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

const dateLayout = "2006-01-02"

func footer[T any](st liststore.State[T], shown int) string {
	p := st.Pagination
	pages := p.TotalPages
	if pages == 0 {
		pages = 1
	}
	return fmt.Sprintf("page %d/%d, showing %d of %d on this page, %d total", p.Page+1, pages, shown, len(st.Items), p.TotalElements)
}

func staleNote[T any](w io.Writer, st liststore.State[T]) {
	if st.Err != nil {
		_, _ = fmt.Fprintln(w, errorStyle.Render("showing cached rows, last load failed: "+st.Err.Error()))
	}
}

func renderParcels(w io.Writer, v service.View[model.Parcel]) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TRACKING", "STATUS", "OFFICE", "RECEIVER", "PHONE", "FEE", "CREATED")
	for _, p := range v.Rows {
		t.Row(p.ID, p.TrackingNumber, string(p.Status), p.OfficeID, p.ReceiverName, p.ReceiverPhone,
			strconv.FormatFloat(p.DeliveryFee, 'f', 2, 64), p.CreatedAt.Format(dateLayout))
	}
	_, _ = fmt.Fprintln(w, titleStyle.Render("Parcels"))
	_, _ = fmt.Fprintln(w, t.String())
	_, _ = fmt.Fprintln(w, footer(v.State, len(v.Rows)))
	staleNote(w, v.State)
}

func renderUsers(w io.Writer, v service.View[model.User]) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "EMAIL", "ROLE", "OFFICE", "ACTIVE")
	for _, u := range v.Rows {
		t.Row(u.ID, u.Name, u.Email, string(u.Role), u.OfficeID, strconv.FormatBool(u.Active))
	}
	_, _ = fmt.Fprintln(w, titleStyle.Render("Users"))
	_, _ = fmt.Fprintln(w, t.String())
	_, _ = fmt.Fprintln(w, footer(v.State, len(v.Rows)))
	staleNote(w, v.State)
}
