package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/calvinalkan/nexus-studio/internal/history"
	"github.com/calvinalkan/nexus-studio/internal/project"
	"github.com/calvinalkan/nexus-studio/internal/studio"
)

const sessionPrompt = "nexus> "

// SessionCmd returns the session command.
func SessionCmd(a *app) *Command {
	fs := flag.NewFlagSet("session", flag.ContinueOnError)
	fs.String("history-file", "", "Line history `file` (default ~/.nexus_history)")

	return &Command{
		Flags: fs,
		Usage: "session [flags]",
		Short: "Start an interactive editing session",
		Long: `Start an interactive editing session.

Import a video, adjust filters, run tools and undo edits. Type 'help' inside
the session for the command list.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			historyPath, _ := fs.GetString("history-file")

			return execSession(ctx, o, a, historyPath)
		},
	}
}

// lineReader is satisfied by liner on a terminal and by a plain scanner
// otherwise.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return r.sc.Text(), nil
}

func (*scanReader) AppendHistory(string) {}

func (*scanReader) Close() error { return nil }

// isTerminal reports whether r is a terminal on stdin.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok || f != os.Stdin {
		return false
	}

	_, err := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)

	return err == nil
}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".nexus_history")
}

// repl is the interactive command loop over one studio session.
type repl struct {
	o       *IO
	session *studio.Session
	reader  lineReader
}

func execSession(ctx context.Context, o *IO, a *app, historyPath string) error {
	notify := studio.NotifierFunc(func(sev studio.Severity, msg string) {
		o.Printf("[%s] %s\n", sev, msg)
	})

	session, err := a.newSession(ctx, studio.WithNotifier(notify))
	if err != nil {
		return err
	}
	defer session.Close()

	r := &repl{o: o, session: session}

	if isTerminal(a.stdin) && liner.TerminalSupported() {
		state := liner.NewLiner()
		state.SetCtrlCAborts(true)
		state.SetCompleter(completeCommand)

		if historyPath == "" {
			historyPath = defaultHistoryFile()
		}

		if f, err := os.Open(historyPath); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}

		defer func() {
			if f, err := os.Create(historyPath); err == nil {
				_, _ = state.WriteHistory(f)
				_ = f.Close()
			}
		}()

		r.reader = state
	} else {
		stdin := a.stdin
		if stdin == nil {
			stdin = strings.NewReader("")
		}

		r.reader = &scanReader{sc: bufio.NewScanner(stdin)}
	}

	defer r.reader.Close()

	o.Println("nexus session " + session.ID())
	o.Println("Type 'help' for available commands.")

	return r.loop(ctx)
}

func (r *repl) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := r.reader.Prompt(sessionPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				r.o.Println("Bye!")

				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		r.reader.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if cmd == "exit" || cmd == "quit" || cmd == "q" {
			r.o.Println("Bye!")

			return nil
		}

		err = r.dispatch(ctx, cmd, args)
		if err != nil && !notified(err) {
			r.o.ErrPrintln("error:", err)
		}
	}
}

// notifiedErrors are reported to the user by the session's notifier, so the
// loop does not print them a second time.
var notifiedErrors = []error{
	history.ErrEmptyHistory,
	studio.ErrNoMedia,
	studio.ErrUnknownTool,
	studio.ErrArgRequired,
	studio.ErrInvalidArg,
	studio.ErrNotVideo,
	studio.ErrMediaTooLarge,
	project.ErrNotFound,
}

func notified(err error) bool {
	for _, target := range notifiedErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

var sessionCommands = []string{
	"import", "set", "filters", "record", "tool", "tools", "undo", "reset",
	"history", "save", "open", "projects", "help", "exit", "quit",
}

func completeCommand(line string) []string {
	var out []string

	lower := strings.ToLower(line)
	for _, c := range sessionCommands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}

	return out
}

var errUsage = errors.New("usage")

func (r *repl) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		r.printHelp()

		return nil
	case "import":
		return r.cmdImport(ctx, args)
	case "set":
		return r.cmdSet(args)
	case "filters":
		r.printFilters(r.session.Filters())

		return nil
	case "record":
		rec, err := r.session.Record(strings.Join(args, " "))
		if err != nil {
			return err
		}

		r.o.Printf("recorded %q at %s\n", rec.Name, rec.Timestamp)

		return nil
	case "tool":
		return r.cmdTool(ctx, args)
	case "tools":
		for _, t := range studio.Tools() {
			arg := ""
			if t.Arg != nil {
				arg = " [" + t.Arg.Name + "]"
			}

			r.o.Printf("  %-28s %s\n", t.Name+arg, t.Duration)
		}

		return nil
	case "undo":
		snap, err := r.session.Undo()
		if err != nil {
			return err
		}

		r.printFilters(snap)

		return nil
	case "reset":
		r.session.Reset()

		return nil
	case "history":
		r.printHistory()

		return nil
	case "save":
		p, err := r.session.SaveProject(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}

		r.o.Printf("saved %s as %d\n", p.Name, p.ID)

		return nil
	case "open":
		return r.cmdOpen(args)
	case "projects":
		r.printRecent()

		return nil
	default:
		return fmt.Errorf("%w: %s (type 'help' for commands)", errUnknownCommand, cmd)
	}
}

func (r *repl) cmdImport(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: import <path>", errUsage)
	}

	m, err := studio.MediaFromFile(strings.Join(args, " "))
	if err != nil {
		// Nothing was notified yet; the file never reached the session.
		r.o.ErrPrintln("error:", err)

		return nil
	}

	p, err := r.session.ImportMedia(ctx, m)
	if err != nil {
		return err
	}

	r.o.Printf("project %d: %s\n", p.ID, p.Name)

	return nil
}

func (r *repl) cmdSet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: set <brightness|contrast|saturation> <value>", errUsage)
	}

	v, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("%w: %s", studio.ErrFilterRange, args[1])
	}

	err = r.session.SetFilter(args[0], v)
	if err != nil {
		return err
	}

	r.printFilters(r.session.Filters())

	return nil
}

func (r *repl) cmdTool(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: tool <name> [arg]", errUsage)
	}

	t, err := r.session.RunTool(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}

	err = t.Wait(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

func (r *repl) cmdOpen(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: open <id>", errUsage)
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", errInvalidID, args[0])
	}

	_, err = r.session.OpenProject(id)

	return err
}

func (r *repl) printFilters(s history.Snapshot) {
	r.o.Printf("brightness=%g contrast=%g saturation=%g\n",
		s[history.Brightness], s[history.Contrast], s[history.Saturation])
}

func (r *repl) printHistory() {
	entries := r.session.History().Entries()
	if len(entries) == 0 {
		r.o.Println("(no edits)")

		return
	}

	for i, e := range entries {
		marker := " "
		if i == r.session.History().Cursor() {
			marker = "*"
		}

		r.o.Printf("%s %2d  %s  %s\n", marker, i+1, e.Timestamp, e.Name)
	}
}

func (r *repl) printRecent() {
	recent := r.session.RecentProjects()
	if len(recent) == 0 {
		r.o.Println("No recent projects. Import a video to get started!")

		return
	}

	for _, p := range recent {
		r.o.Printf("%d  %-23s  %s\n", p.ID, p.DisplayName(), p.CreatedAt)
	}
}

func (r *repl) printHelp() {
	r.o.Println("Commands:")
	r.o.Println("  import <path>              Load a video and add it to recent projects")
	r.o.Println("  set <filter> <value>       Set brightness, contrast or saturation (0-200)")
	r.o.Println("  filters                    Show current filter values")
	r.o.Println("  record <name>              Record an edit with the current filters")
	r.o.Println("  tool <name> [arg]          Run a processing tool (see 'tools')")
	r.o.Println("  tools                      List processing tools")
	r.o.Println("  undo                       Undo the last edit")
	r.o.Println("  reset                      Clear all edits and filters")
	r.o.Println("  history                    Show the edit history")
	r.o.Println("  save [name]                Save the current video as a project")
	r.o.Println("  open <id>                  Open a saved project")
	r.o.Printf("  projects                   Show the %d most recent projects\n", project.RecentCount)
	r.o.Println("  help                       Show this help")
	r.o.Println("  exit / quit / q            Exit")
}
