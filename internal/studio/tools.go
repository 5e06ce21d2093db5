package studio

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrArgRequired = errors.New("tool argument required")
	ErrInvalidArg  = errors.New("invalid tool argument")
)

// Tool is one entry of the processing catalog.
type Tool struct {
	Name       string        `json:"name"`
	Duration   time.Duration `json:"duration"`
	NeedsMedia bool          `json:"needsMedia"`
	Arg        *ToolArg      `json:"arg,omitempty"`

	// SkipHistory marks tools that leave the edit history alone, such as
	// saving or sharing.
	SkipHistory bool `json:"skipHistory,omitempty"`

	label   func(arg string) string
	started func(arg string) string
	stages  func(arg string) []string
	result  func(at time.Time) string
	done    func(arg, result string) string
}

// ToolArg describes a tool's single optional parameter.
type ToolArg struct {
	Name     string   `json:"name"`
	Default  string   `json:"default,omitempty"`
	Required bool     `json:"required,omitempty"`
	Choices  []string `json:"choices,omitempty"` // allowed first word

	check   func(string) error
	missing string // user message when a required arg is absent
}

// Label is the history entry name recorded when the tool succeeds.
func (t Tool) Label(arg string) string { return t.label(arg) }

// Stages returns the named phases the tool reports while running with arg.
func (t Tool) Stages(arg string) []string {
	if t.stages == nil {
		return nil
	}

	return t.stages(arg)
}

// resolveArg applies the default and validates arg.
func (t Tool) resolveArg(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if t.Arg == nil {
		return arg, nil
	}

	if arg == "" {
		arg = t.Arg.Default
	}

	if arg == "" && t.Arg.Required {
		return "", fmt.Errorf("%w: %s needs %s", ErrArgRequired, t.Name, t.Arg.Name)
	}

	if len(t.Arg.Choices) > 0 {
		first, _, _ := strings.Cut(arg, " ")
		if !slices.Contains(t.Arg.Choices, strings.ToLower(first)) {
			return "", fmt.Errorf("%w: %s=%q (want one of %s)", ErrInvalidArg, t.Arg.Name, first, strings.Join(t.Arg.Choices, ", "))
		}
	}

	if t.Arg.check != nil {
		if err := t.Arg.check(arg); err != nil {
			return "", fmt.Errorf("%w: %s=%q: %w", ErrInvalidArg, t.Arg.Name, arg, err)
		}
	}

	return arg, nil
}

func fixed(s string) func(string) string {
	return func(string) string { return s }
}

func message(s string) func(string, string) string {
	return func(string, string) string { return s }
}

func percent(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("not a number")
	}

	if n < 0 || n > 100 {
		return errors.New("out of range 0-100")
	}

	return nil
}

func positive(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("not a number")
	}

	if n < 1 {
		return errors.New("must be at least 1")
	}

	return nil
}

func languageTag(s string) error {
	_, err := language.Parse(s)

	return err
}

// ShareBaseURL prefixes generated share links.
const ShareBaseURL = "https://nexus-studio.app/v/"

// ShareLink returns the share link generated at t.
func ShareLink(t time.Time) string {
	return ShareBaseURL + strconv.FormatInt(t.UnixMilli(), 36)
}

// ExportOptions is the parsed argument of the export tool:
// "<format> [quality] [watermark]".
type ExportOptions struct {
	Format    string
	Quality   int
	Watermark bool
}

// DefaultExportQuality is the vertical resolution used when none is given.
const DefaultExportQuality = 1080

// ParseExportOptions parses an export argument such as "webm 720 watermark".
func ParseExportOptions(arg string) (ExportOptions, error) {
	fields := strings.Fields(strings.ToLower(arg))
	if len(fields) == 0 {
		return ExportOptions{}, errors.New("format missing")
	}

	opts := ExportOptions{Format: fields[0], Quality: DefaultExportQuality}

	for _, f := range fields[1:] {
		if f == "watermark" {
			opts.Watermark = true

			continue
		}

		q, err := strconv.Atoi(strings.TrimSuffix(f, "p"))
		if err != nil || q < 1 {
			return ExportOptions{}, fmt.Errorf("unexpected %q", f)
		}

		opts.Quality = q
	}

	return opts, nil
}

func checkExport(arg string) error {
	_, err := ParseExportOptions(arg)

	return err
}

func exportOptions(arg string) ExportOptions {
	opts, _ := ParseExportOptions(arg)

	return opts
}

func exportStages(arg string) []string {
	third := "Processing audio..."
	if exportOptions(arg).Watermark {
		third = "Adding watermark..."
	}

	return []string{"Preparing video...", "Applying edits...", third, "Encoding video...", "Finalizing export..."}
}

var catalog = []Tool{
	{
		Name: "upscale", Duration: 2 * time.Second, NeedsMedia: true,
		Arg:     &ToolArg{Name: "level", Default: "2", check: positive},
		label:   fixed("AI Upscale"),
		started: func(a string) string { return "Upscaling video to " + a + "x resolution..." },
		done:    message("Video upscaled successfully!"),
	},
	{
		Name: "deblur", Duration: 2 * time.Second, NeedsMedia: true,
		Arg:     &ToolArg{Name: "strength", Default: "50", check: percent},
		label:   fixed("AI Deblur"),
		started: func(a string) string { return "Applying deblur with " + a + "% strength..." },
		done:    message("Blur removed successfully!"),
	},
	{
		Name: "voice", Duration: 1500 * time.Millisecond,
		Arg:     &ToolArg{Name: "text", Required: true, missing: "Please enter text for voiceover"},
		label:   fixed("AI Voiceover"),
		started: fixed("Generating voiceover..."),
		done:    message("AI voice generated! Click export to add to video."),
	},
	{
		Name: "colorize", Duration: 2500 * time.Millisecond, NeedsMedia: true,
		label:   fixed("AI Colorization"),
		started: fixed("Colorizing video with AI..."),
		done:    message("Video colorized successfully!"),
	},
	{
		Name: "captions", Duration: 2 * time.Second, NeedsMedia: true,
		Arg:     &ToolArg{Name: "language", Default: "en"},
		label:   fixed("AI Captions"),
		started: func(a string) string { return "Generating " + a + " captions..." },
		done:    message("Captions generated successfully!"),
	},
	{
		Name: "remove-background", Duration: 3 * time.Second, NeedsMedia: true,
		Arg:     &ToolArg{Name: "color", Default: "#00ff00"},
		label:   fixed("Background Removal"),
		started: fixed("Removing background with AI..."),
		done:    message("Background removed successfully!"),
	},
	{
		Name: "extract-audio", Duration: 2 * time.Second, NeedsMedia: true,
		label:   fixed("Audio Extraction"),
		started: fixed("Extracting audio from video..."),
		done:    message("Audio extracted and downloaded!"),
	},
	{
		Name: "watermark", Duration: 1500 * time.Millisecond, NeedsMedia: true,
		label:   fixed("Watermark"),
		started: fixed("Adding watermark to video..."),
		done:    message("Watermark added successfully!"),
	},
	{
		Name: "export", Duration: 3 * time.Second, NeedsMedia: true,
		Arg: &ToolArg{
			Name: "format [quality] [watermark]", Default: "mp4",
			Choices: []string{"mp4", "webm", "gif"}, check: checkExport,
		},
		label: func(a string) string { return "Export " + strings.ToUpper(exportOptions(a).Format) },
		started: func(a string) string {
			o := exportOptions(a)

			return fmt.Sprintf("Exporting as %s at %dp...", strings.ToUpper(o.Format), o.Quality)
		},
		stages: exportStages,
		done: func(a, _ string) string {
			return "Video exported successfully as " + strings.ToUpper(exportOptions(a).Format) + "!"
		},
	},
	{
		Name: "cloud-save", Duration: 1500 * time.Millisecond, NeedsMedia: true, SkipHistory: true,
		label:   fixed("Cloud Save"),
		started: fixed("Saving to cloud storage..."),
		done:    message("Video saved to cloud successfully!"),
	},
	{
		Name: "share", Duration: 1500 * time.Millisecond, NeedsMedia: true, SkipHistory: true,
		label:   fixed("Share"),
		started: fixed("Generating shareable link..."),
		result:  ShareLink,
		done:    func(_, link string) string { return "Link ready to share! " + link },
	},
	{
		Name: "trim", NeedsMedia: true,
		label:   fixed("Trim"),
		started: fixed("Trim tool activated. Select start and end points on timeline."),
	},
}

// Tools returns the catalog in display order.
func Tools() []Tool {
	return slices.Clone(catalog)
}

// LookupTool returns the tool called name.
func LookupTool(name string) (Tool, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	for _, t := range catalog {
		if t.Name == name {
			return t, nil
		}
	}

	return Tool{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
}
