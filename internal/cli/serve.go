package cli

import (
	"context"
	"net"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/nexus-studio/internal/httpapi"
	"github.com/calvinalkan/nexus-studio/internal/kv"
	"github.com/calvinalkan/nexus-studio/internal/project"
	"github.com/calvinalkan/nexus-studio/internal/studio"
)

const notificationBacklog = 100

// ServeCmd returns the serve command.
func ServeCmd(a *app) *Command {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringP("listen", "l", "", "Listen on `addr` (overrides config)")

	return &Command{
		Flags: fs,
		Usage: "serve [flags]",
		Short: "Serve the editing session over HTTP",
		Long: `Serve one editing session as a JSON HTTP API for the browser front-end.

The server runs until interrupted. With the file backend, project changes
written by other processes are picked up automatically.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			listen, _ := fs.GetString("listen")
			if listen == "" {
				listen = a.cfg.Listen
			}

			return execServe(ctx, o, a, listen)
		},
	}
}

func execServe(ctx context.Context, o *IO, a *app, listen string) error {
	rec := studio.NewRecorder(notificationBacklog)

	session, err := a.newSession(ctx,
		studio.WithNotifier(studio.Fanout(studio.LogNotifier(a.logger), rec)),
	)
	if err != nil {
		return err
	}

	if file, ok := a.store.(*kv.File); ok {
		go watchProjects(ctx, file, session.Projects(), a)
	}

	srv := httpapi.New(session,
		httpapi.WithAllowedOrigins(a.cfg.AllowedOrigins),
		httpapi.WithNotifications(rec),
		httpapi.WithLogger(a.logger),
	)

	return srv.ListenAndServe(ctx, listen, func(addr net.Addr) {
		o.Println("listening on " + addr.String())
	})
}

func watchProjects(ctx context.Context, file *kv.File, projects *project.Store, a *app) {
	err := file.Watch(ctx, project.StorageKey, func() {
		projects.Reload(ctx)
	})
	if err != nil {
		a.logger.Warn("project watcher stopped", "error", err)
	}
}
