package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/nexus-studio/internal/project"
)

// Output formats for listing commands.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	errNameRequired   = errors.New("project name is required")
	errSourceRequired = errors.New("project source is required")
	errIDRequired     = errors.New("project id is required")
	errInvalidID      = errors.New("invalid project id")
	errInvalidFormat  = errors.New("invalid format")
)

// ProjectsCmd returns the projects command.
func ProjectsCmd(a *app) *Command {
	fs := flag.NewFlagSet("projects", flag.ContinueOnError)
	fs.IntP("limit", "n", 0, "Show at most `N` projects (0 = all)")
	fs.StringP("format", "f", formatText, "Output format: text, json or yaml")

	return &Command{
		Flags: fs,
		Usage: "projects [flags]",
		Short: "List saved projects",
		Long:  "List saved projects, most recent first.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execProjects(ctx, o, a, fs)
		},
	}
}

func execProjects(ctx context.Context, o *IO, a *app, fs *flag.FlagSet) error {
	limit, _ := fs.GetInt("limit")
	if limit < 0 {
		return errors.New("--limit must be non-negative")
	}

	format, _ := fs.GetString("format")

	projects, err := a.openProjects(ctx)
	if err != nil {
		return err
	}

	list := projects.List()
	if limit > 0 {
		list = list[:min(limit, len(list))]
	}

	return writeProjects(o, list, format)
}

func writeProjects(o *IO, list []project.Project, format string) error {
	switch format {
	case formatText:
		if len(list) == 0 {
			o.Println("No projects yet. Import a video to get started.")

			return nil
		}

		for _, p := range list {
			o.Printf("%d  %-10s  %s\n", p.ID, p.CreatedAt, p.Name)
		}

		return nil
	case formatJSON:
		enc := json.NewEncoder(o.Out())
		enc.SetIndent("", "  ")

		if list == nil {
			list = []project.Project{}
		}

		return enc.Encode(list)
	case formatYAML:
		enc := yaml.NewEncoder(o.Out())
		enc.SetIndent(2)

		err := enc.Encode(list)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return enc.Close()
	default:
		return fmt.Errorf("%w: %q (want text, json or yaml)", errInvalidFormat, format)
	}
}

// AddCmd returns the add command.
func AddCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("add", flag.ContinueOnError),
		Usage: "add <name> <source>",
		Short: "Add a project",
		Long:  "Add a project at the head of the list and print its ID. The oldest project is dropped once the list is full.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execAdd(ctx, o, a, args)
		},
	}
}

func execAdd(ctx context.Context, o *IO, a *app, args []string) error {
	if len(args) == 0 || args[0] == "" {
		return errNameRequired
	}

	if len(args) < 2 || args[1] == "" {
		return errSourceRequired
	}

	projects, err := a.openProjects(ctx)
	if err != nil {
		return err
	}

	p := projects.AddProject(ctx, args[0], args[1])

	if err := projects.Degraded(); err != nil {
		o.Warn("project kept in memory only ("+err.Error()+")", "check that "+a.cfg.DataDirAbs+" is writable")
	}

	o.Println(p.ID)

	return nil
}

// ShowCmd returns the show command.
func ShowCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("show", flag.ContinueOnError),
		Usage: "show <id>",
		Short: "Show project details",
		Long:  "Display one saved project.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execShow(ctx, o, a, args)
		},
	}
}

func execShow(ctx context.Context, o *IO, a *app, args []string) error {
	if len(args) == 0 {
		return errIDRequired
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", errInvalidID, args[0])
	}

	projects, err := a.openProjects(ctx)
	if err != nil {
		return err
	}

	p, err := projects.FindByID(id)
	if err != nil {
		return err
	}

	o.Println("id=" + strconv.FormatInt(p.ID, 10))
	o.Println("name=" + p.Name)
	o.Println("source=" + p.SourceRef)
	o.Println("created=" + p.CreatedAt)

	return nil
}
