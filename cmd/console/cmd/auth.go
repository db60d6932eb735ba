package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gvafram3/parcel-console/internal/apiclient"
	"github.com/gvafram3/parcel-console/internal/session"
)

func newLoginCmd(get func() *app, stdin io.Reader, stdout io.Writer) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Long:  "Sign in with email and password. Without --password the password is read from the first line of stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if password == "" {
				line, err := bufio.NewReader(stdin).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			res, err := a.api.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := a.session.Save(res); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "Signed in as %s (%s)\n", res.User.Email, res.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(get func() *app, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			// Best effort: a token the backend already dropped still gets cleared locally.
			if err := a.api.Logout(cmd.Context()); err != nil && !errors.Is(err, apiclient.ErrUnauthorized) {
				a.log.Warn().Err(err).Msg("backend logout failed")
			}
			if err := a.session.Clear(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(get func() *app, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := get().session.CurrentUser()
			if errors.Is(err, session.ErrNoSession) {
				_, _ = fmt.Fprintln(stdout, "Not signed in")
				return nil
			}
			if err != nil {
				return err
			}
			office := u.OfficeID
			if office == "" {
				office = "all offices"
			}
			_, _ = fmt.Fprintf(stdout, "%s <%s>\nrole: %s\noffice: %s\n", u.Name, u.Email, u.Role, office)
			return nil
		},
	}
}
