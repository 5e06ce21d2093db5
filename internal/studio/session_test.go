package studio_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/nexus-studio/internal/history"
	"github.com/calvinalkan/nexus-studio/internal/kv"
	"github.com/calvinalkan/nexus-studio/internal/logging"
	"github.com/calvinalkan/nexus-studio/internal/project"
	"github.com/calvinalkan/nexus-studio/internal/studio"
	"github.com/calvinalkan/nexus-studio/internal/task"
	"github.com/calvinalkan/nexus-studio/internal/testutil"
)

type fixture struct {
	session  *studio.Session
	notes    *studio.Recorder
	rendered *renderLog
	store    *kv.Memory
}

type renderLog struct {
	mu    sync.Mutex
	snaps []history.Snapshot
}

func (r *renderLog) Apply(s history.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snaps = append(r.snaps, s)
}

func (r *renderLog) last() history.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.snaps) == 0 {
		return nil
	}

	return r.snaps[len(r.snaps)-1]
}

// instant finishes every tool right away.
func instant(studio.Tool) task.Work {
	return task.Simulate(0, 1)
}

func newFixture(t *testing.T, opts ...studio.Option) *fixture {
	t.Helper()

	clock := testutil.NewClock()
	store := kv.NewMemory()
	notes := studio.NewRecorder(0)
	rendered := &renderLog{}

	projects := project.Open(context.Background(), store,
		project.WithClock(clock.Now), project.WithLogger(logging.Discard()))

	opts = append([]studio.Option{
		studio.WithNotifier(notes),
		studio.WithRenderer(rendered),
		studio.WithLogger(logging.Discard()),
		studio.WithClock(clock.Now),
		studio.WithWork(instant),
	}, opts...)

	s := studio.New(history.New(history.WithClock(clock.Now)), projects, opts...)
	t.Cleanup(s.Close)

	return &fixture{session: s, notes: notes, rendered: rendered, store: store}
}

func video(name string) studio.Media {
	return studio.Media{Name: name, SourceRef: "file:///videos/" + name, MIMEType: "video/mp4", Size: 1 << 20}
}

func (f *fixture) mustImport(t *testing.T) {
	t.Helper()

	if _, err := f.session.ImportMedia(context.Background(), video("clip.mp4")); err != nil {
		t.Fatalf("ImportMedia: %v", err)
	}
}

func (f *fixture) runTool(t *testing.T, name, arg string) *task.Task {
	t.Helper()

	tk, err := f.session.RunTool(context.Background(), name, arg)
	if err != nil {
		t.Fatalf("RunTool(%s): %v", name, err)
	}

	if err := tk.Wait(context.Background()); err != nil {
		t.Fatalf("Wait(%s): %v", name, err)
	}

	return tk
}

func (f *fixture) lastNote(t *testing.T) studio.Notification {
	t.Helper()

	n, ok := f.notes.Last()
	if !ok {
		t.Fatal("no notification")
	}

	return n
}

func TestSession_TrimThenUpscaleThenUndo(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mustImport(t)

	f.runTool(t, "trim", "")

	if err := f.session.SetFilter(history.Brightness, 120); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}

	f.runTool(t, "upscale", "")

	entries := f.session.History().Entries()
	if got, want := len(entries), 2; got != want {
		t.Fatalf("entries=%d, want=%d", got, want)
	}

	if got, want := entries[1].Name, "AI Upscale"; got != want {
		t.Errorf("newest=%q, want=%q", got, want)
	}

	if got, want := entries[1].Snapshot[history.Brightness], 120.0; got != want {
		t.Errorf("upscale brightness=%v, want=%v", got, want)
	}

	snap, err := f.session.Undo()
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}

	if diff := cmp.Diff(history.DefaultSnapshot(), snap); diff != "" {
		t.Errorf("undo snapshot mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(history.DefaultSnapshot(), f.session.Filters()); diff != "" {
		t.Errorf("filters after undo mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(history.DefaultSnapshot(), f.rendered.last()); diff != "" {
		t.Errorf("rendered mismatch (-want +got):\n%s", diff)
	}

	if got, want := f.session.History().Len(), 1; got != want {
		t.Errorf("len=%d, want=%d", got, want)
	}

	if got, want := f.lastNote(t).Message, "Undo last edit"; got != want {
		t.Errorf("note=%q, want=%q", got, want)
	}
}

func TestSession_UndoOnEmptyIsInformational(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	for range 2 {
		_, err := f.session.Undo()
		if !errors.Is(err, history.ErrEmptyHistory) {
			t.Fatalf("err=%v, want=%v", err, history.ErrEmptyHistory)
		}

		n := f.lastNote(t)
		if got, want := n.Severity, studio.SeverityInfo; got != want {
			t.Errorf("severity=%v, want=%v", got, want)
		}

		if got, want := n.Message, "Nothing to undo"; got != want {
			t.Errorf("message=%q, want=%q", got, want)
		}
	}

	if got, want := len(f.rendered.snaps), 0; got != want {
		t.Errorf("renders=%d, want=%d", got, want)
	}
}

func TestSession_ImportMediaValidation(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name    string
		media   studio.Media
		wantErr error
		wantMsg string
	}{
		{
			name:    "not a video",
			media:   studio.Media{Name: "a.png", MIMEType: "image/png", Size: 10},
			wantErr: studio.ErrNotVideo,
			wantMsg: "Please upload a video file (MP4, MOV, AVI, etc.)",
		},
		{
			name:    "too large",
			media:   studio.Media{Name: "big.mp4", MIMEType: "video/mp4", Size: studio.MaxMediaSize + 1},
			wantErr: studio.ErrMediaTooLarge,
			wantMsg: "File too large. Please use videos under 500MB.",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)

			_, err := f.session.ImportMedia(context.Background(), tt.media)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v, want=%v", err, tt.wantErr)
			}

			if got := f.lastNote(t); got.Severity != studio.SeverityError || got.Message != tt.wantMsg {
				t.Errorf("note=%+v, want error %q", got, tt.wantMsg)
			}

			if _, ok := f.session.Media(); ok {
				t.Error("rejected media became current")
			}

			if got, want := f.session.Projects().Len(), 0; got != want {
				t.Errorf("projects=%d, want=%d", got, want)
			}
		})
	}
}

func TestSession_ImportMediaAddsProject(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	p, err := f.session.ImportMedia(context.Background(), video("holiday.mp4"))
	if err != nil {
		t.Fatalf("ImportMedia: %v", err)
	}

	if got, want := p.Name, "holiday.mp4"; got != want {
		t.Errorf("name=%q, want=%q", got, want)
	}

	if got, want := f.session.RecentProjects()[0].ID, p.ID; got != want {
		t.Errorf("recent[0]=%d, want=%d", got, want)
	}

	if _, err := f.store.Get(context.Background(), project.StorageKey); err != nil {
		t.Errorf("project list not persisted: %v", err)
	}
}

func TestSession_ToolsNeedMedia(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	for _, tool := range studio.Tools() {
		if !tool.NeedsMedia {
			continue
		}

		_, err := f.session.RunTool(context.Background(), tool.Name, "")
		if !errors.Is(err, studio.ErrNoMedia) {
			t.Errorf("%s: err=%v, want=%v", tool.Name, err, studio.ErrNoMedia)
		}
	}

	if got, want := f.session.History().Len(), 0; got != want {
		t.Errorf("history len=%d, want=%d", got, want)
	}
}

func TestSession_VoiceNeedsTextNotMedia(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.session.RunTool(context.Background(), "voice", "  ")
	if !errors.Is(err, studio.ErrArgRequired) {
		t.Fatalf("err=%v, want=%v", err, studio.ErrArgRequired)
	}

	if got, want := f.lastNote(t).Message, "Please enter text for voiceover"; got != want {
		t.Errorf("note=%q, want=%q", got, want)
	}

	f.runTool(t, "voice", "Welcome to the show")

	if rec, _ := f.session.History().Current(); rec.Name != "AI Voiceover" {
		t.Errorf("current=%q, want=%q", rec.Name, "AI Voiceover")
	}
}

func TestSession_ToolArgs(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		tool      string
		arg       string
		wantErr   error
		wantLabel string
	}{
		{tool: "export", arg: "", wantLabel: "Export MP4"},
		{tool: "export", arg: "gif", wantLabel: "Export GIF"},
		{tool: "export", arg: "avi", wantErr: studio.ErrInvalidArg},
		{tool: "export", arg: "webm 720 watermark", wantLabel: "Export WEBM"},
		{tool: "export", arg: "mp4 high", wantErr: studio.ErrInvalidArg},
		{tool: "deblur", arg: "150", wantErr: studio.ErrInvalidArg},
		{tool: "deblur", arg: "75", wantLabel: "AI Deblur"},
		{tool: "upscale", arg: "zero", wantErr: studio.ErrInvalidArg},
		{tool: "captions", arg: "de", wantLabel: "AI Captions"},
		{tool: "captions", arg: "pt-BR", wantLabel: "AI Captions"},
		{tool: "captions", arg: "not a language", wantErr: studio.ErrInvalidArg},
		{tool: "sharpen", wantErr: studio.ErrUnknownTool},
	} {
		t.Run(tt.tool+"/"+tt.arg, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.mustImport(t)

			tk, err := f.session.RunTool(context.Background(), tt.tool, tt.arg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err=%v, want=%v", err, tt.wantErr)
				}

				if got := f.lastNote(t).Severity; got != studio.SeverityError {
					t.Errorf("severity=%v, want=error", got)
				}

				return
			}

			if err != nil {
				t.Fatalf("RunTool: %v", err)
			}

			_ = tk.Wait(context.Background())

			rec, ok := f.session.History().Current()
			if !ok || rec.Name != tt.wantLabel {
				t.Errorf("current=%q, want=%q", rec.Name, tt.wantLabel)
			}
		})
	}
}

func TestSession_ToolNotifiesStartAndSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mustImport(t)

	before := len(f.notes.All())

	f.runTool(t, "upscale", "4")

	got := f.notes.All()[before:]
	want := []string{"info: Upscaling video to 4x resolution...", "success: Video upscaled successfully!"}

	var gotMsgs []string
	for _, n := range got {
		gotMsgs = append(gotMsgs, n.Severity.String()+": "+n.Message)
	}

	if diff := cmp.Diff(want, gotMsgs); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func noteMessages(notes []studio.Notification) []string {
	var out []string
	for _, n := range notes {
		out = append(out, n.Severity.String()+": "+n.Message)
	}

	return out
}

func TestSession_ToolSuccessMessages(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		tool string
		arg  string
		want []string
	}{
		{
			tool: "extract-audio",
			want: []string{"info: Extracting audio from video...", "success: Audio extracted and downloaded!"},
		},
		{
			tool: "export",
			arg:  "webm 720",
			want: []string{"info: Exporting as WEBM at 720p...", "success: Video exported successfully as WEBM!"},
		},
		{
			tool: "export",
			want: []string{"info: Exporting as MP4 at 1080p...", "success: Video exported successfully as MP4!"},
		},
		{
			tool: "cloud-save",
			want: []string{"info: Saving to cloud storage...", "success: Video saved to cloud successfully!"},
		},
	} {
		t.Run(tt.tool+"/"+tt.arg, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.mustImport(t)

			before := len(f.notes.All())

			f.runTool(t, tt.tool, tt.arg)

			if diff := cmp.Diff(tt.want, noteMessages(f.notes.All()[before:])); diff != "" {
				t.Errorf("notifications mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSession_CloudSaveAndShareLeaveHistoryAlone(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mustImport(t)

	f.runTool(t, "upscale", "")

	for _, name := range []string{"cloud-save", "share"} {
		tk := f.runTool(t, name, "")

		if got, want := tk.State(), task.Succeeded; got != want {
			t.Errorf("%s: state=%v, want=%v", name, got, want)
		}
	}

	if got, want := f.session.History().Len(), 1; got != want {
		t.Errorf("history len=%d, want=%d", got, want)
	}

	if rec, _ := f.session.History().Current(); rec.Name != "AI Upscale" {
		t.Errorf("current=%q, want=%q", rec.Name, "AI Upscale")
	}
}

func TestSession_ShareLinkEncodesCompletionTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, time.March, 14, 9, 26, 53, 589_000_000, time.UTC)

	f := newFixture(t, studio.WithClock(testutil.NewClockAt(at, 0).Now))
	f.mustImport(t)

	tk := f.runTool(t, "share", "")

	link := tk.Result()
	if !strings.HasPrefix(link, studio.ShareBaseURL) {
		t.Fatalf("result=%q, want prefix %q", link, studio.ShareBaseURL)
	}

	ms, err := strconv.ParseInt(strings.TrimPrefix(link, studio.ShareBaseURL), 36, 64)
	if err != nil {
		t.Fatalf("link suffix is not base36: %v", err)
	}

	if got, want := ms, at.UnixMilli(); got != want {
		t.Errorf("link millis=%d, want=%d", got, want)
	}

	n := f.lastNote(t)
	if n.Severity != studio.SeveritySuccess || n.Message != "Link ready to share! "+link {
		t.Errorf("note=%+v, want success with %q", n, link)
	}
}

func TestSession_ExportReportsStages(t *testing.T) {
	t.Parallel()

	reached := make(chan struct{})

	f := newFixture(t, studio.WithWork(func(studio.Tool) task.Work {
		return func(ctx context.Context, report func(float64)) error {
			report(0.5)
			close(reached)
			<-ctx.Done()

			return ctx.Err()
		}
	}))
	f.mustImport(t)

	tk, err := f.session.RunTool(context.Background(), "export", "gif watermark")
	if err != nil {
		t.Fatalf("RunTool: %v", err)
	}

	<-reached

	if got, want := tk.Stage(), "Adding watermark..."; got != want {
		t.Errorf("stage=%q, want=%q", got, want)
	}

	if got, want := tk.Snapshot().Stage, "Adding watermark..."; got != want {
		t.Errorf("snapshot stage=%q, want=%q", got, want)
	}

	tk.Cancel()
	_ = tk.Wait(context.Background())
}

func TestExportStages(t *testing.T) {
	t.Parallel()

	tool, err := studio.LookupTool("export")
	if err != nil {
		t.Fatalf("LookupTool: %v", err)
	}

	want := []string{"Preparing video...", "Applying edits...", "Processing audio...", "Encoding video...", "Finalizing export..."}
	if diff := cmp.Diff(want, tool.Stages("mp4")); diff != "" {
		t.Errorf("stages mismatch (-want +got):\n%s", diff)
	}

	want[2] = "Adding watermark..."
	if diff := cmp.Diff(want, tool.Stages("mp4 watermark")); diff != "" {
		t.Errorf("watermark stages mismatch (-want +got):\n%s", diff)
	}

	upscale, _ := studio.LookupTool("upscale")
	if got := upscale.Stages("2"); got != nil {
		t.Errorf("upscale stages=%v, want none", got)
	}
}

func TestParseExportOptions(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		arg     string
		want    studio.ExportOptions
		wantErr bool
	}{
		{arg: "mp4", want: studio.ExportOptions{Format: "mp4", Quality: studio.DefaultExportQuality}},
		{arg: "WEBM 720p", want: studio.ExportOptions{Format: "webm", Quality: 720}},
		{arg: "gif watermark 480", want: studio.ExportOptions{Format: "gif", Quality: 480, Watermark: true}},
		{arg: "", wantErr: true},
		{arg: "mp4 0", wantErr: true},
		{arg: "mp4 loud", wantErr: true},
	} {
		t.Run(tt.arg, func(t *testing.T) {
			t.Parallel()

			got, err := studio.ParseExportOptions(tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseExportOptions(%q)=%+v, want error", tt.arg, got)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParseExportOptions(%q): %v", tt.arg, err)
			}

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("options mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSession_EvictionIsSilent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	for i := range history.DefaultLimit + 1 {
		if _, err := f.session.Record(fmt.Sprintf("edit %d", i)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	if got := f.notes.All(); len(got) != 0 {
		t.Errorf("notifications after history overflow=%v, want none", noteMessages(got))
	}

	if got, want := f.session.History().Len(), history.DefaultLimit; got != want {
		t.Errorf("history len=%d, want=%d", got, want)
	}

	for i := range project.DefaultLimit + 1 {
		if _, err := f.session.ImportMedia(context.Background(), video(fmt.Sprintf("clip%d.mp4", i))); err != nil {
			t.Fatalf("ImportMedia: %v", err)
		}
	}

	for _, n := range f.notes.All() {
		if n.Severity != studio.SeveritySuccess || n.Message != "Video uploaded successfully!" {
			t.Errorf("unexpected notification during project overflow: %s: %s", n.Severity, n.Message)
		}
	}

	if got, want := len(f.notes.All()), project.DefaultLimit+1; got != want {
		t.Errorf("notifications=%d, want=%d", got, want)
	}

	if got, want := f.session.Projects().Len(), project.DefaultLimit; got != want {
		t.Errorf("projects=%d, want=%d", got, want)
	}
}

func TestSession_CancelledToolRecordsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, studio.WithWork(func(studio.Tool) task.Work { return task.Simulate(time.Hour, 1) }))
	f.mustImport(t)

	tk, err := f.session.RunTool(context.Background(), "colorize", "")
	if err != nil {
		t.Fatalf("RunTool: %v", err)
	}

	if _, err := f.session.Tasks().Get(tk.ID()); err != nil {
		t.Fatalf("task not registered: %v", err)
	}

	tk.Cancel()

	if err := tk.Wait(context.Background()); !errors.Is(err, task.ErrCancelled) {
		t.Fatalf("err=%v, want=%v", err, task.ErrCancelled)
	}

	if got, want := f.session.History().Len(), 0; got != want {
		t.Errorf("history len=%d, want=%d", got, want)
	}

	n := f.lastNote(t)
	if n.Severity != studio.SeverityWarning || !strings.Contains(n.Message, "AI Colorization") {
		t.Errorf("note=%+v, want a warning naming the tool", n)
	}
}

func TestSession_SaveAndOpenProject(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	if _, err := f.session.SaveProject(context.Background(), ""); !errors.Is(err, studio.ErrNoMedia) {
		t.Fatalf("save without media err=%v, want=%v", err, studio.ErrNoMedia)
	}

	f.mustImport(t)

	saved, err := f.session.SaveProject(context.Background(), "")
	if err != nil {
		t.Fatalf("SaveProject: %v", err)
	}

	if !strings.HasPrefix(saved.Name, "Project_1-1-2024") {
		t.Errorf("default name=%q, want prefix Project_1-1-2024", saved.Name)
	}

	if _, err := f.session.OpenProject(424242); !errors.Is(err, project.ErrNotFound) {
		t.Fatalf("open missing err=%v, want=%v", err, project.ErrNotFound)
	}

	if got, want := f.lastNote(t).Severity, studio.SeverityWarning; got != want {
		t.Errorf("severity=%v, want=%v", got, want)
	}

	opened, err := f.session.OpenProject(saved.ID)
	if err != nil {
		t.Fatalf("OpenProject: %v", err)
	}

	m, _ := f.session.Media()
	if got, want := m.SourceRef, opened.SourceRef; got != want {
		t.Errorf("media source=%q, want=%q", got, want)
	}
}

func TestSession_ResetClearsHistoryAndFilters(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mustImport(t)

	_ = f.session.SetFilter(history.Saturation, 40)
	_, _ = f.session.Record("manual")
	f.runTool(t, "watermark", "")

	f.session.Reset()

	if !f.session.History().Empty() {
		t.Error("history not empty after reset")
	}

	if diff := cmp.Diff(history.DefaultSnapshot(), f.session.Filters()); diff != "" {
		t.Errorf("filters mismatch (-want +got):\n%s", diff)
	}

	if got, want := f.lastNote(t).Message, "Editor reset successfully"; got != want {
		t.Errorf("note=%q, want=%q", got, want)
	}
}

func TestSession_SetFilterValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	if err := f.session.SetFilter("hue", 10); !errors.Is(err, studio.ErrUnknownFilter) {
		t.Errorf("err=%v, want=%v", err, studio.ErrUnknownFilter)
	}

	if err := f.session.SetFilter(history.Contrast, 201); !errors.Is(err, studio.ErrFilterRange) {
		t.Errorf("err=%v, want=%v", err, studio.ErrFilterRange)
	}

	if _, err := f.session.Record(" "); !errors.Is(err, studio.ErrNameRequired) {
		t.Errorf("err=%v, want=%v", err, studio.ErrNameRequired)
	}
}

func TestMediaFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	for _, tt := range []struct {
		file     string
		content  []byte
		wantMIME string
		video    bool
	}{
		{file: "clip.MP4", content: []byte("x"), wantMIME: "video/mp4", video: true},
		{file: "raw", content: []byte("\x1A\x45\xDF\xA3 rest of header"), wantMIME: "video/webm", video: true},
		{file: "notes", content: []byte("just some text"), wantMIME: "text/plain; charset=utf-8"},
	} {
		path := filepath.Join(dir, tt.file)
		if err := os.WriteFile(path, tt.content, 0o644); err != nil {
			t.Fatal(err)
		}

		m, err := studio.MediaFromFile(path)
		if err != nil {
			t.Fatalf("MediaFromFile(%s): %v", tt.file, err)
		}

		if got := m.MIMEType; got != tt.wantMIME {
			t.Errorf("%s: mime=%q, want=%q", tt.file, got, tt.wantMIME)
		}

		if got, want := m.SourceRef, "file://"+path; got != want {
			t.Errorf("%s: ref=%q, want=%q", tt.file, got, want)
		}

		if got := m.Validate() == nil; got != tt.video {
			t.Errorf("%s: valid=%v, want=%v", tt.file, got, tt.video)
		}
	}
}
