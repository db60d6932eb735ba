package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gvafram3/parcel-console/internal/model"
	"github.com/gvafram3/parcel-console/internal/service"
)

// parcelFlags are the query flags shared by the parcel commands.
type parcelFlags struct {
	page      int
	size      int
	office    string
	status    string
	delivered string
	search    string
	from      string
	to        string
}

func (f *parcelFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&f.size, "size", 0, "rows per page (default from cache.page_size)")
	cmd.Flags().StringVar(&f.office, "office", "", "office id")
	cmd.Flags().StringVar(&f.status, "status", "", "REGISTERED, ASSIGNED, IN_TRANSIT, DELIVERED or RETURNED")
	cmd.Flags().StringVar(&f.delivered, "delivered", "", "true or false")
	cmd.Flags().StringVar(&f.search, "search", "", "match tracking number, names or phones on the loaded page")
	cmd.Flags().StringVar(&f.from, "from", "", "created on or after this day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "created on or before this day (YYYY-MM-DD)")
}

func (f parcelFlags) query(defaultSize int) (service.ParcelQuery, error) {
	q := service.ParcelQuery{
		OfficeID: f.office,
		Status:   model.ParcelStatus(f.status),
		Search:   f.search,
		Page:     f.page - 1,
		Size:     f.size,
	}
	if q.Size == 0 {
		q.Size = defaultSize
	}
	var ferrs []service.FieldError
	if f.delivered != "" {
		b, err := strconv.ParseBool(f.delivered)
		if err != nil {
			ferrs = append(ferrs, service.FieldError{Field: "delivered", Message: "must be true or false"})
		}
		q.Delivered = &b
	}
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{{"from", f.from, &q.From}, {"to", f.to, &q.To}} {
		if d.raw == "" {
			continue
		}
		t, err := time.ParseInLocation(dateLayout, d.raw, time.Local)
		if err != nil {
			ferrs = append(ferrs, service.FieldError{Field: d.name, Message: "must be a date like 2026-03-31"})
			continue
		}
		*d.dst = t
	}
	return q, service.InvalidInput(ferrs...)
}

func newParcelsCmd(get func() *app, stdin io.Reader, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parcels",
		Short: "Browse and update parcels",
	}
	cmd.AddCommand(
		newParcelsListCmd(get, stdout),
		newParcelsBrowseCmd(get, stdin, stdout),
		newParcelsDeliverCmd(get, stdout),
	)
	return cmd
}

func newParcelsListCmd(get func() *app, stdout io.Writer) *cobra.Command {
	var f parcelFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show one page of parcels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			q, err := f.query(a.cfg.Cache.PageSize)
			if err != nil {
				return err
			}
			v, err := a.desk.Open(cmd.Context(), q)
			if err != nil {
				return err
			}
			renderParcels(stdout, v)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func newParcelsDeliverCmd(get func() *app, stdout io.Writer) *cobra.Command {
	var f parcelFlags
	cmd := &cobra.Command{
		Use:   "deliver <parcel-id>",
		Short: "Mark a parcel delivered and show the refreshed page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			q, err := f.query(a.cfg.Cache.PageSize)
			if err != nil {
				return err
			}
			v, err := a.desk.MarkDelivered(cmd.Context(), q, args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "Parcel %s marked delivered\n", args[0])
			renderParcels(stdout, v)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

const browseHelp = "n next, p previous, r refresh, s <text> search, q quit"

func newParcelsBrowseCmd(get func() *app, stdin io.Reader, stdout io.Writer) *cobra.Command {
	var f parcelFlags
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Page through parcels interactively",
		Long:  "Page through parcels, reading one command per line from stdin: " + browseHelp + ".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()
			q, err := f.query(a.cfg.Cache.PageSize)
			if err != nil {
				return err
			}
			v, err := a.desk.Open(ctx, q)
			if err != nil {
				return err
			}
			show := func() {
				renderParcels(stdout, v)
				_, _ = fmt.Fprintln(stdout, helpStyle.Render(browseHelp))
				// The user is reading; warm the next page.
				a.desk.PrefetchNext(q)
			}
			show()

			in := bufio.NewScanner(stdin)
			for in.Scan() {
				line := strings.TrimSpace(in.Text())
				verb, arg, _ := strings.Cut(line, " ")
				switch verb {
				case "q", "quit":
					return nil
				case "n", "next":
					if v.State.Pagination.TotalPages > 0 && q.Page+1 >= v.State.Pagination.TotalPages {
						_, _ = fmt.Fprintln(stdout, "already on the last page")
						continue
					}
					q.Page++
					v, err = a.desk.Page(ctx, q, q.Page)
				case "p", "prev":
					if q.Page == 0 {
						_, _ = fmt.Fprintln(stdout, "already on the first page")
						continue
					}
					q.Page--
					v, err = a.desk.Page(ctx, q, q.Page)
				case "r", "refresh":
					v, err = a.desk.Refresh(ctx, q)
				case "s", "search":
					// Search narrows the loaded page only; no request is made.
					q.Search = strings.TrimSpace(arg)
					v.Rows = a.desk.Derive(v.State.Items, q)
				case "":
					continue
				default:
					_, _ = fmt.Fprintln(stdout, "unknown command, try: "+browseHelp)
					continue
				}
				if err != nil {
					_, _ = fmt.Fprintln(stdout, errorStyle.Render("Error: "+describe(err)))
					// A 401 has already signed the session out.
					if _, ok := a.session.Viewer(); !ok {
						return err
					}
					err = nil
				}
				show()
			}
			return in.Err()
		},
	}
	f.bind(cmd)
	return cmd
}
