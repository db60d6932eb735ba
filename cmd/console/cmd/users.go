package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gvafram3/parcel-console/internal/model"
	"github.com/gvafram3/parcel-console/internal/service"
)

type userFlags struct {
	page   int
	size   int
	office string
	role   string
	active string
	search string
}

func (f *userFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&f.size, "size", 0, "rows per page (default from cache.page_size)")
	cmd.Flags().StringVar(&f.office, "office", "", "office id")
	cmd.Flags().StringVar(&f.role, "role", "", "ADMIN, MANAGER, FRONTDESK or RIDER")
	cmd.Flags().StringVar(&f.active, "active", "", "true or false")
	cmd.Flags().StringVar(&f.search, "search", "", "match name, email or phone on the loaded page")
}

func (f userFlags) query(defaultSize int) (service.UserQuery, error) {
	q := service.UserQuery{
		OfficeID: f.office,
		Role:     model.Role(f.role),
		Search:   f.search,
		Page:     f.page - 1,
		Size:     f.size,
	}
	if q.Size == 0 {
		q.Size = defaultSize
	}
	if f.active != "" {
		b, err := strconv.ParseBool(f.active)
		if err != nil {
			return q, service.InvalidInput(service.FieldError{Field: "active", Message: "must be true or false"})
		}
		q.Active = &b
	}
	return q, nil
}

func newUsersCmd(get func() *app, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage console users",
	}

	var lf userFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "Show one page of users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			q, err := lf.query(a.cfg.Cache.PageSize)
			if err != nil {
				return err
			}
			v, err := a.admin.Open(cmd.Context(), q)
			if err != nil {
				return err
			}
			renderUsers(stdout, v)
			return nil
		},
	}
	lf.bind(list)

	var df userFlags
	deactivate := &cobra.Command{
		Use:   "deactivate <user-id>",
		Short: "Deactivate a user and show the refreshed page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			q, err := df.query(a.cfg.Cache.PageSize)
			if err != nil {
				return err
			}
			v, err := a.admin.Deactivate(cmd.Context(), q, args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "User %s deactivated\n", args[0])
			renderUsers(stdout, v)
			return nil
		},
	}
	df.bind(deactivate)

	cmd.AddCommand(list, deactivate)
	return cmd
}
