package cli

import (
	"context"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			execPrintConfig(o, a)

			return nil
		},
	}
}

func execPrintConfig(o *IO, a *app) {
	cfg := a.cfg

	o.Println("effective_cwd=" + cfg.EffectiveCwd)
	o.Println("data_dir=" + cfg.DataDirAbs)
	o.Println("backend=" + cfg.Backend)
	o.Println("history_limit=" + strconv.Itoa(cfg.HistoryLimit))
	o.Println("project_limit=" + strconv.Itoa(cfg.ProjectLimit))
	o.Println("listen=" + cfg.Listen)

	if len(cfg.AllowedOrigins) > 0 {
		o.Println("allowed_origins=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	o.Println("log_level=" + cfg.LogLevel)
	o.Println("log_format=" + cfg.LogFormat)

	o.Println("")
	o.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		o.Println("(defaults only)")

		return
	}

	if cfg.Sources.Global != "" {
		o.Println("global_config=" + cfg.Sources.Global)
	}

	if cfg.Sources.Project != "" {
		o.Println("project_config=" + cfg.Sources.Project)
	}
}
