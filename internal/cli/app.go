package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/calvinalkan/nexus-studio/internal/config"
	"github.com/calvinalkan/nexus-studio/internal/history"
	"github.com/calvinalkan/nexus-studio/internal/kv"
	"github.com/calvinalkan/nexus-studio/internal/project"
	"github.com/calvinalkan/nexus-studio/internal/studio"
)

// app carries resolved config and lazily opened storage for one invocation.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	stdin  io.Reader
	store  kv.Store
}

func (a *app) commands() []*Command {
	return []*Command{
		ProjectsCmd(a),
		AddCmd(a),
		ShowCmd(a),
		SessionCmd(a),
		ServeCmd(a),
		PrintConfigCmd(a),
	}
}

// openStore opens the configured backend once.
func (a *app) openStore(ctx context.Context) (kv.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	st, err := kv.Open(ctx, a.cfg.Backend, a.cfg.DataDirAbs, a.logger)
	if err != nil {
		return nil, err
	}

	a.store = st

	return st, nil
}

func (a *app) openProjects(ctx context.Context) (*project.Store, error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	return project.Open(ctx, st,
		project.WithLimit(a.cfg.ProjectLimit),
		project.WithLogger(a.logger),
	), nil
}

func (a *app) newSession(ctx context.Context, opts ...studio.Option) (*studio.Session, error) {
	projects, err := a.openProjects(ctx)
	if err != nil {
		return nil, err
	}

	h := history.New(history.WithLimit(a.cfg.HistoryLimit))

	opts = append([]studio.Option{studio.WithLogger(a.logger)}, opts...)

	return studio.New(h, projects, opts...), nil
}

func (a *app) close() {
	if a.store == nil {
		return
	}

	err := kv.Close(a.store)
	if err != nil {
		a.logger.Warn("close storage", "error", err)
	}
}
