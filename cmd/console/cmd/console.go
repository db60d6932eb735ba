// Package cmd holds the console's cobra commands.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gvafram3/parcel-console/internal/apiclient"
	"github.com/gvafram3/parcel-console/internal/config"
	"github.com/gvafram3/parcel-console/internal/liststore"
	"github.com/gvafram3/parcel-console/internal/logger"
	"github.com/gvafram3/parcel-console/internal/model"
	"github.com/gvafram3/parcel-console/internal/service"
	"github.com/gvafram3/parcel-console/internal/session"
)

// Version is set at build time
var Version = "dev"

// Options lets tests inject what a real run takes from the environment.
type Options struct {
	// Config replaces loading --config when set.
	Config *config.Config
	// Keyring replaces the OS keyring when set.
	Keyring session.Keyring
	// Logger replaces the configured logger when set.
	Logger *zerolog.Logger
}

// Execute runs the CLI with the given arguments and IO, returning the exit code.
func Execute(args []string, stdin io.Reader, stdout, stderr io.Writer, opts *Options) int {
	root, finish := newConsole(stdin, stdout, opts)
	defer finish()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", describe(err))
		return 1
	}
	return 0
}

// describe renders field errors and the common API failures readably.
func describe(err error) string {
	if fe := service.FieldErrors(err); len(fe) > 0 {
		parts := make([]string, 0, len(fe))
		for _, f := range fe {
			parts = append(parts, f.Field+": "+f.Message)
		}
		return "invalid input: " + strings.Join(parts, "; ")
	}
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized), errors.Is(err, session.ErrNoSession):
		return "not signed in (run: console login)"
	case errors.Is(err, apiclient.ErrNotFound):
		return "not found"
	}
	return err.Error()
}

// app is everything a command needs, built once per run.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	session *session.Manager
	api     *apiclient.Client
	parcels *liststore.Store[model.Parcel]
	users   *liststore.Store[model.User]
	desk    service.ParcelDesk
	admin   service.UserAdmin
}

func newApp(cfg *config.Config, keys session.Keyring, log zerolog.Logger) (*app, error) {
	sess := session.NewManager(keys, cfg.Session.KeyringService, cfg.Session.Dir, log)
	api, err := apiclient.New(cfg.API, sess, nil, log)
	if err != nil {
		return nil, err
	}

	common := func(name string) []liststore.Option {
		opts := []liststore.Option{
			liststore.WithName(name),
			liststore.WithLogger(log),
			liststore.WithTTL(cfg.Cache.TTL),
			liststore.WithPrefetch(cfg.Cache.Prefetch),
			liststore.WithErrorHandler(sess.HandleAPIError),
		}
		if cfg.Cache.FetchTimeout > 0 {
			opts = append(opts, liststore.WithFetchTimeout(cfg.Cache.FetchTimeout))
		}
		if !cfg.Cache.CacheEmptyPages {
			opts = append(opts, liststore.WithEmptyPagesUncached())
		}
		return opts
	}

	parcels := liststore.New(api.ParcelSource(),
		append(common("parcels"), liststore.WithScope(sess, func(p model.Parcel) string { return p.OfficeID }))...)
	users := liststore.New(api.UserSource(),
		append(common("users"), liststore.WithScope(sess, func(u model.User) string { return u.OfficeID }))...)
	sess.OnSignOut(func() {
		parcels.Invalidate()
		users.Invalidate()
	})

	return &app{
		cfg:     cfg,
		log:     log,
		session: sess,
		api:     api,
		parcels: parcels,
		users:   users,
		desk:    service.NewParcelDesk(parcels, api, sess.HandleAPIError, log),
		admin:   service.NewUserAdmin(users, api, sess.HandleAPIError, log),
	}, nil
}

func (a *app) close() {
	_ = a.parcels.Close()
	_ = a.users.Close()
}

func (a *app) printStats(w io.Writer) {
	for _, s := range []struct {
		name  string
		stats liststore.Stats
	}{{"parcels", a.parcels.Stats()}, {"users", a.users.Stats()}} {
		_, _ = fmt.Fprintf(w, "%s: fetches=%d cache_hits=%d prefetches=%d prefetch_hits=%d cancelled=%d failed=%d last_prefetch=%s\n",
			s.name, s.stats.Fetches, s.stats.CacheHits, s.stats.Prefetches, s.stats.PrefetchHits, s.stats.Cancelled, s.stats.Failed, s.stats.LastPrefetch)
	}
}

// NewConsole creates the root command with injectable IO. Callers that run it
// more than once should prefer Execute, which also closes the list stores.
func NewConsole(stdin io.Reader, stdout io.Writer, opts *Options) *cobra.Command {
	root, _ := newConsole(stdin, stdout, opts)
	return root
}

// newConsole returns the root command and a finish func that prints --stats
// and closes the stores, whether or not the command failed.
func newConsole(stdin io.Reader, stdout io.Writer, opts *Options) (*cobra.Command, func()) {
	if opts == nil {
		opts = &Options{}
	}
	var (
		configPath string
		showStats  bool
		a          *app
	)

	root := &cobra.Command{
		Use:           "console",
		Short:         "Parcel operations console",
		Long:          "console browses and updates parcels and console users on the parcel backend.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.Config
			if cfg == nil {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			log := zerolog.Nop()
			if opts.Logger != nil {
				log = *opts.Logger
			} else {
				l, err := logger.New(&cfg.Logger)
				if err != nil {
					return err
				}
				log = l
			}
			keys := opts.Keyring
			if keys == nil {
				keys = session.SystemKeyring()
			}
			built, err := newApp(cfg, keys, log)
			if err != nil {
				return err
			}
			a = built
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (APP_* env vars override)")
	root.PersistentFlags().BoolVar(&showStats, "stats", false, "print list cache counters after the command")

	get := func() *app { return a }
	root.AddCommand(
		newLoginCmd(get, stdin, stdout),
		newLogoutCmd(get, stdout),
		newWhoamiCmd(get, stdout),
		newParcelsCmd(get, stdin, stdout),
		newUsersCmd(get, stdout),
	)
	finish := func() {
		if a == nil {
			return
		}
		if showStats {
			a.printStats(stdout)
		}
		a.close()
		a = nil
	}
	return root, finish
}
