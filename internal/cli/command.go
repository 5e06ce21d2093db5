package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command defines a CLI command with unified help generation.
type Command struct {
	// Flags defines command-specific flags.
	// The FlagSet name is not used - command identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "nexus" in help.
	// Examples: "show <id>", "add <name> <source>", "projects [flags]"
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Long is the full description shown in command help.
	// If empty, Short is used instead.
	Long string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-26s %s", c.Usage, c.Short)
}

// PrintHelp prints the full help output for "nexus <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Printf("%s", c.help(true))
}

// Run parses flags and executes the command. Returns exit code.
// Handles error printing internally for consistent output ordering.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	err := c.Flags.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)

			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		o.ErrPrintf("%s", c.help(false))

		return 1
	}

	err = c.Exec(ctx, o, c.Flags.Args())
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return o.Finish()
}

// help renders usage, the description when full is set, and the flag list.
// Usage errors print the short form to stderr.
func (c *Command) help(full bool) string {
	var b strings.Builder

	fmt.Fprintln(&b, "Usage: nexus", c.Usage)

	if full {
		desc := c.Long
		if desc == "" {
			desc = c.Short
		}

		fmt.Fprintln(&b)
		fmt.Fprintln(&b, desc)
	}

	if c.Flags != nil && c.Flags.HasFlags() {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Flags:")

		c.Flags.SetOutput(&b)
		c.Flags.PrintDefaults()
	}

	return b.String()
}
