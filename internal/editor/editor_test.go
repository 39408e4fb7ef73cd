package editor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/friendsincode/clipdeck/internal/config"
	"github.com/friendsincode/clipdeck/internal/db"
	"github.com/friendsincode/clipdeck/internal/engine"
	"github.com/friendsincode/clipdeck/internal/export"
	"github.com/friendsincode/clipdeck/internal/handoff"
	"github.com/friendsincode/clipdeck/internal/history"
	"github.com/friendsincode/clipdeck/internal/media"
	"github.com/friendsincode/clipdeck/internal/notify"
	"github.com/friendsincode/clipdeck/internal/playback"
	"github.com/friendsincode/clipdeck/internal/probe"
	"github.com/friendsincode/clipdeck/internal/render"
	"github.com/friendsincode/clipdeck/internal/selection"
	"github.com/friendsincode/clipdeck/internal/storage"
	"github.com/friendsincode/clipdeck/internal/waveform"
	"github.com/rs/zerolog"
)

type fakeProber struct {
	mu        sync.Mutex
	durations map[string]float64
	err       error
	calls     int
}

func (f *fakeProber) Probe(_ context.Context, src *media.Source, _ time.Duration) (probe.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return probe.Result{}, f.err
	}
	d, ok := f.durations[src.Name]
	if !ok {
		d = 10
	}
	return probe.Result{Duration: d, HasAudioStream: true}, nil
}

func (f *fakeProber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAnalyzer struct {
	mu      sync.Mutex
	envs    map[string]waveform.Envelope
	errs    map[string]error
	gates   map[string]chan struct{}
	entered chan string
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		envs:    map[string]waveform.Envelope{},
		errs:    map[string]error{},
		gates:   map[string]chan struct{}{},
		entered: make(chan string, 8),
	}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, src *media.Source) (waveform.Envelope, error) {
	f.mu.Lock()
	gate := f.gates[src.Name]
	env, hasEnv := f.envs[src.Name]
	err := f.errs[src.Name]
	f.mu.Unlock()

	f.entered <- src.Name
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return waveform.Envelope{}, ctx.Err()
		}
	}
	if err != nil {
		return waveform.Envelope{}, err
	}
	if !hasEnv {
		env = waveform.Envelope{Peaks: []float32{0.1, 0.5, 0.9, 0.2}, HasAudioTrack: true}
	}
	return env, nil
}

// scriptEngine answers stream-copy commands with copyOut and everything else
// with reencodeOut.
type scriptEngine struct {
	mu          sync.Mutex
	files       map[string][]byte
	execs       [][]string
	copyOut     []byte
	reencodeOut []byte
}

func newScriptEngine(copyOut, reencodeOut []byte) *scriptEngine {
	return &scriptEngine{files: map[string][]byte{}, copyOut: copyOut, reencodeOut: reencodeOut}
}

func (e *scriptEngine) WriteFile(_ context.Context, name string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files[name] = data
	return nil
}

func (e *scriptEngine) Exec(_ context.Context, args []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.execs = append(e.execs, args)
	out := e.reencodeOut
	if strings.Contains(strings.Join(args, " "), "-c:a copy") {
		out = e.copyOut
	}
	if out == nil {
		return errors.New("exec failed")
	}
	e.files[args[len(args)-1]] = out
	return nil
}

func (e *scriptEngine) ReadFile(_ context.Context, name string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.files[name]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return data, nil
}

func (e *scriptEngine) DeleteFile(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.files, name)
	return nil
}

func (e *scriptEngine) Close() error { return nil }

func (e *scriptEngine) execCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.execs)
}

func (e *scriptEngine) lastExec() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.execs) == 0 {
		return nil
	}
	return e.execs[len(e.execs)-1]
}

type switchAuth struct {
	mu      sync.Mutex
	allowed bool
	asked   int
}

func (a *switchAuth) IsAuthenticated(context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allowed
}

func (a *switchAuth) RequestSignIn(context.Context) {
	a.mu.Lock()
	a.asked++
	a.mu.Unlock()
}

type harness struct {
	session  *Session
	prober   *fakeProber
	analyzer *fakeAnalyzer
	engine   *scriptEngine
	notices  *notify.Recorder
	auth     *switchAuth
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		prober:   &fakeProber{durations: map[string]float64{}},
		analyzer: newFakeAnalyzer(),
		engine:   newScriptEngine([]byte("copied"), []byte("reencoded")),
		notices:  &notify.Recorder{},
		auth:     &switchAuth{allowed: true},
	}
	loader := engine.NewLoader(func(context.Context) (engine.Engine, error) { return h.engine, nil })
	cfg := Config{
		Prober:     h.prober,
		Analyzer:   h.analyzer,
		Exporter:   export.NewPipeline(loader, export.Options{}, zerolog.Nop()),
		Auth:       h.auth,
		Notifier:   h.notices,
		TrackWidth: 1000,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.session = NewSession("s1", "alice", cfg, zerolog.Nop())
	return h
}

func hasCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func TestOpenInitializesFullSelection(t *testing.T) {
	h := newHarness(t, nil)
	h.prober.durations["song.mp3"] = 200

	snap, err := h.session.Open(context.Background(), "song.mp3", "audio/mpeg", []byte("id3"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if snap.Selection != (selection.Selection{Start: 0, End: 200}) {
		t.Fatalf("selection = %+v", snap.Selection)
	}
	if snap.StartText != "00:00" || snap.EndText != "03:20" {
		t.Fatalf("texts = %q %q", snap.StartText, snap.EndText)
	}
	if !snap.HasAudio || snap.Source == nil || snap.Source.Kind != media.KindAudio {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(h.notices.Codes()) != 0 {
		t.Fatalf("unexpected notices %v", h.notices.Codes())
	}

	text, err := h.session.CommitEndText("01:30")
	if err != nil {
		t.Fatalf("commit end: %v", err)
	}
	if text != "01:30" || h.session.Snapshot().Selection.End != 90 {
		t.Fatalf("end text %q selection %+v", text, h.session.Snapshot().Selection)
	}
}

func TestFrameScalesQuietEnvelope(t *testing.T) {
	h := newHarness(t, nil)
	h.prober.durations["quiet.mp3"] = 10
	h.analyzer.envs["quiet.mp3"] = waveform.Envelope{Peaks: []float32{0.01, 0.05, 0.02}, HasAudioTrack: true}

	if _, err := h.session.Open(context.Background(), "quiet.mp3", "audio/mpeg", []byte("id3")); err != nil {
		t.Fatalf("open: %v", err)
	}
	f, err := h.session.Frame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if f.Peaks[1] != 1 {
		t.Fatalf("loudest peak = %v, want 1", f.Peaks[1])
	}
	if env, _ := h.session.Waveform(); env.Peaks[1] != 0.05 {
		t.Fatalf("stored envelope changed: %v", env.Peaks)
	}

	surface := render.NewImageSurface(90, 40)
	render.Render(surface, f, render.DefaultStyle)
	full := false
	for x := 31; x < 59; x++ {
		if surface.Img.RGBAAt(x, 1) == render.DefaultStyle.BarSelected {
			full = true
			break
		}
	}
	if !full {
		t.Fatal("loudest bar should reach the top of the timeline")
	}
}

func TestOpenRejectsInvalidFiles(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		mime     string
		wantErr  error
		wantCode string
	}{
		{"not media", "notes.txt", "text/plain", media.ErrNotMediaFile, notify.CodeInvalidFileType},
		{"bad audio extension", "take.aiff", "audio/aiff", media.ErrUnsupportedAudioExtension, notify.CodeUnsupportedAudioExtension},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			_, err := h.session.Open(context.Background(), tt.file, tt.mime, []byte("x"))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if codes := h.notices.Codes(); len(codes) != 1 || codes[0] != tt.wantCode {
				t.Fatalf("notices = %v", codes)
			}
			if h.prober.callCount() != 0 {
				t.Fatal("probe must not run for rejected files")
			}
		})
	}
}

func TestSignInRequiredLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.session.Open(ctx, "song.mp3", "audio/mpeg", []byte("a")); err != nil {
		t.Fatalf("open: %v", err)
	}
	before := h.session.Snapshot()

	h.auth.allowed = false
	if _, err := h.session.Open(ctx, "other.mp3", "audio/mpeg", []byte("b")); !errors.Is(err, ErrSignInRequired) {
		t.Fatalf("open error = %v", err)
	}
	if _, err := h.session.Export(ctx); !errors.Is(err, ErrSignInRequired) {
		t.Fatalf("export error = %v", err)
	}

	after := h.session.Snapshot()
	if after.Generation != before.Generation || after.Source.Name != "song.mp3" {
		t.Fatalf("state changed: %+v", after)
	}
	if h.auth.asked != 2 {
		t.Fatalf("sign-in requested %d times", h.auth.asked)
	}
	if !hasCode(h.notices.Codes(), notify.CodeSignInRequired) {
		t.Fatalf("notices = %v", h.notices.Codes())
	}
	if h.prober.callCount() != 1 || h.engine.execCount() != 0 {
		t.Fatal("no work may happen without sign-in")
	}
}

func TestOpenUnreadableMedia(t *testing.T) {
	h := newHarness(t, nil)
	h.prober.err = probe.ErrUnreadableMedia

	_, err := h.session.Open(context.Background(), "broken.mp3", "audio/mpeg", []byte("x"))
	if !errors.Is(err, probe.ErrUnreadableMedia) {
		t.Fatalf("error = %v", err)
	}
	snap := h.session.Snapshot()
	if snap.Source != nil || snap.Duration != 0 {
		t.Fatalf("residual state: %+v", snap)
	}
	if codes := h.notices.Codes(); len(codes) != 1 || codes[0] != notify.CodeMediaUnreadable {
		t.Fatalf("notices = %v", codes)
	}
}

func TestAudioDecodeFailureClearsState(t *testing.T) {
	h := newHarness(t, nil)
	h.analyzer.errs["song.flac"] = waveform.ErrAudioDecodeFailure

	_, err := h.session.Open(context.Background(), "song.flac", "audio/flac", []byte("x"))
	if !errors.Is(err, waveform.ErrAudioDecodeFailure) {
		t.Fatalf("error = %v", err)
	}
	snap := h.session.Snapshot()
	if snap.Source != nil || snap.Duration != 0 || snap.Selection != (selection.Selection{}) {
		t.Fatalf("probe/waveform state not cleared: %+v", snap)
	}
	if !hasCode(h.notices.Codes(), notify.CodeAudioDecodeFailed) {
		t.Fatalf("notices = %v", h.notices.Codes())
	}
	if _, err := h.session.Waveform(); !errors.Is(err, ErrNoSource) {
		t.Fatalf("waveform error = %v", err)
	}
}

func TestFullSelectionExportReturnsOriginal(t *testing.T) {
	h := newHarness(t, nil)
	h.prober.durations["intro.mp3"] = 12
	payload := []byte("original mp3 bytes")

	if _, err := h.session.Open(context.Background(), "intro.mp3", "audio/mpeg", payload); err != nil {
		t.Fatalf("open: %v", err)
	}
	out, err := h.session.Export(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out.Path != export.PathOriginal || !bytes.Equal(out.Artifact.Data, payload) {
		t.Fatalf("expected untouched original, got path %q", out.Path)
	}
	if h.engine.execCount() != 0 {
		t.Fatal("engine must not run for a full selection")
	}
	if !hasCode(h.notices.Codes(), notify.CodeExportSucceeded) {
		t.Fatalf("notices = %v", h.notices.Codes())
	}
}

func TestTrimWithStreamCopy(t *testing.T) {
	h := newHarness(t, nil)
	h.prober.durations["song.mp3"] = 30
	ctx := context.Background()

	if _, err := h.session.Open(ctx, "song.mp3", "audio/mpeg", []byte("mp3")); err != nil {
		t.Fatalf("open: %v", err)
	}
	if sel, _ := h.session.SetRange("00:05", "00:15"); sel != (selection.Selection{Start: 5, End: 15}) {
		t.Fatalf("selection = %+v", sel)
	}

	out, err := h.session.Export(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out.Path != export.PathCopy || out.Artifact.Name != "song.mp3" || out.Artifact.MIMEType != "audio/mpeg" {
		t.Fatalf("unexpected outcome %+v / %+v", out, out.Artifact)
	}
	args := strings.Join(h.engine.lastExec(), " ")
	if !strings.Contains(args, "-ss 5.00") || !strings.Contains(args, "-t 10.00") {
		t.Fatalf("unexpected trim args %q", args)
	}
}

func TestVideoWithoutAudio(t *testing.T) {
	h := newHarness(t, nil)
	h.analyzer.envs["clip.mp4"] = waveform.Silent(waveform.DefaultBuckets)
	ctx := context.Background()

	snap, err := h.session.Open(ctx, "clip.mp4", "video/mp4", []byte("mp4"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if snap.HasAudio {
		t.Fatal("expected no audio")
	}
	env, _ := h.session.Waveform()
	if len(env.Peaks) != waveform.DefaultBuckets {
		t.Fatalf("envelope length %d", len(env.Peaks))
	}
	for _, p := range env.Peaks {
		if p != 0 {
			t.Fatal("envelope must be all zero")
		}
	}
	if _, err := h.session.Toggle(ctx); !errors.Is(err, playback.ErrNoAudio) {
		t.Fatalf("toggle error = %v", err)
	}
	codes := h.notices.Codes()
	if !hasCode(codes, notify.CodeNoAudioTrack) || !hasCode(codes, notify.CodePlaybackNoAudio) {
		t.Fatalf("notices = %v", codes)
	}

	_, _ = h.session.SetRange("00:02", "00:06")
	out, err := h.session.Export(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out.Path != export.PathReencode || out.Artifact.MIMEType != "video/mp4" || out.Artifact.Name != "clip.mp4" {
		t.Fatalf("unexpected artifact %+v path %q", out.Artifact, out.Path)
	}
}

func TestTierFallbackOnEmptyCopy(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.copyOut = []byte{}
	h.prober.durations["song.mp3"] = 30
	ctx := context.Background()

	if _, err := h.session.Open(ctx, "song.mp3", "audio/mpeg", []byte("mp3")); err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = h.session.SetRange("00:05", "00:15")

	out, err := h.session.Export(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out.Path != export.PathReencode || string(out.Artifact.Data) != "reencoded" || !strings.HasSuffix(out.Artifact.Name, ".mp3") {
		t.Fatalf("unexpected outcome path %q artifact %+v", out.Path, out.Artifact)
	}
	args := strings.Join(h.engine.lastExec(), " ")
	if !strings.Contains(args, "-ss 5.00") || !strings.Contains(args, "-t 10.00") {
		t.Fatalf("re-encode lost the trim window: %q", args)
	}
}

func TestExportFailureKeepsState(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.copyOut = nil
	h.engine.reencodeOut = nil
	h.prober.durations["song.mp3"] = 30
	ctx := context.Background()

	_, _ = h.session.Open(ctx, "song.mp3", "audio/mpeg", []byte("mp3"))
	_, _ = h.session.SetRange("00:05", "00:15")
	before := h.session.Snapshot()

	if _, err := h.session.Export(ctx); !errors.Is(err, export.ErrExportFailed) {
		t.Fatalf("export error = %v", err)
	}
	after := h.session.Snapshot()
	if after.Selection != before.Selection || after.Generation != before.Generation {
		t.Fatalf("state changed after failed export: %+v", after)
	}
	if !hasCode(h.notices.Codes(), notify.CodeExportFailed) {
		t.Fatalf("notices = %v", h.notices.Codes())
	}
}

func TestClickSeeksAndDragDoesNot(t *testing.T) {
	h := newHarness(t, nil)
	h.prober.durations["song.mp3"] = 100
	ctx := context.Background()

	_, _ = h.session.Open(ctx, "song.mp3", "audio/mpeg", []byte("mp3"))
	_, _ = h.session.SetRange("00:10", "00:50")

	mouse := func(x float64) selection.PointerEvent { return selection.PointerEvent{X: x, Input: selection.InputMouse} }

	_, _ = h.session.Pointer(PointerDown, mouse(300))
	snap, _ := h.session.Pointer(PointerUp, mouse(300))
	if snap.Position != 30 {
		t.Fatalf("click should seek to 30, position %v", snap.Position)
	}

	_, _ = h.session.Pointer(PointerDown, mouse(300))
	_, _ = h.session.Pointer(PointerMove, mouse(350))
	snap, _ = h.session.Pointer(PointerUp, mouse(350))
	if snap.Position != 30 {
		t.Fatalf("drag must not seek, position %v", snap.Position)
	}
	if snap.Selection != (selection.Selection{Start: 15, End: 55}) {
		t.Fatalf("drag should move the selection, got %+v", snap.Selection)
	}

	if _, err := h.session.Pointer("tap", mouse(1)); !errors.Is(err, ErrInvalidPointerAction) {
		t.Fatalf("pointer error = %v", err)
	}
}

func TestStaleAnalysisIsDropped(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.analyzer.gates["first.mp3"] = gate
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := h.session.Open(ctx, "first.mp3", "audio/mpeg", []byte("1"))
		errc <- err
	}()
	if name := <-h.analyzer.entered; name != "first.mp3" {
		t.Fatalf("unexpected analysis of %s", name)
	}

	if _, err := h.session.Open(ctx, "second.mp3", "audio/mpeg", []byte("2")); err != nil {
		t.Fatalf("second open: %v", err)
	}
	<-h.analyzer.entered
	close(gate)

	if err := <-errc; !errors.Is(err, ErrStale) {
		t.Fatalf("first open error = %v, want ErrStale", err)
	}
	if snap := h.session.Snapshot(); snap.Source == nil || snap.Source.Name != "second.mp3" {
		t.Fatalf("stale result applied: %+v", snap.Source)
	}
}

type gatedExporter struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedExporter) Run(ctx context.Context, src *media.Source, _ selection.Selection, _ float64, _ bool) (*export.Result, error) {
	close(g.started)
	<-g.release
	return &export.Result{Artifact: src.AsArtifact(), Path: export.PathOriginal}, nil
}

func TestStaleExportIsDropped(t *testing.T) {
	exp := &gatedExporter{started: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, func(c *Config) { c.Exporter = exp })
	ctx := context.Background()

	_, _ = h.session.Open(ctx, "first.mp3", "audio/mpeg", []byte("1"))
	<-h.analyzer.entered

	errc := make(chan error, 1)
	go func() {
		_, err := h.session.Export(ctx)
		errc <- err
	}()
	<-exp.started

	if _, err := h.session.Open(ctx, "second.mp3", "audio/mpeg", []byte("2")); err != nil {
		t.Fatalf("second open: %v", err)
	}
	close(exp.release)

	if err := <-errc; !errors.Is(err, ErrStale) {
		t.Fatalf("export error = %v, want ErrStale", err)
	}
	if hasCode(h.notices.Codes(), notify.CodeExportSucceeded) {
		t.Fatal("stale export must not notify")
	}
}

func TestHandOffPersistsAndDelivers(t *testing.T) {
	database, err := db.Connect(&config.Config{DBBackend: config.DatabaseSQLite, DBDSN: ":memory:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(database) })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	root := t.TempDir()
	channel := handoff.NewMemoryChannel(time.Minute)
	records := history.NewStore(database)
	h := newHarness(t, func(c *Config) {
		c.Handoff = channel
		c.Store = storage.NewFilesystemStore(root, zerolog.Nop())
		c.History = records
	})
	h.prober.durations["song.mp3"] = 30
	ctx := context.Background()

	_, _ = h.session.Open(ctx, "song.mp3", "audio/mpeg", []byte("mp3"))
	_, _ = h.session.SetRange("00:05", "00:15")

	d, err := h.session.HandOff(ctx, "mixer", handoff.RoleLeft)
	if err != nil {
		t.Fatalf("hand off: %v", err)
	}
	if d.Role != handoff.RoleLeft || d.Name != "song.mp3" {
		t.Fatalf("descriptor = %+v", d)
	}

	got, ok, err := channel.TakeOnce(ctx, "mixer")
	if err != nil || !ok {
		t.Fatalf("take: %v %v", ok, err)
	}
	art, err := got.Artifact()
	if err != nil || string(art.Data) != "copied" {
		t.Fatalf("artifact = %v, %v", art, err)
	}
	if !hasCode(h.notices.Codes(), notify.CodeHandoffReady) {
		t.Fatalf("notices = %v", h.notices.Codes())
	}

	list, err := records.List(ctx, "alice", 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("history = %v, %v", list, err)
	}
	rec := list[0]
	if rec.HandoffTag != "mixer" || rec.Path != export.PathCopy || rec.Start != 5 || rec.End != 15 {
		t.Fatalf("record = %+v", rec)
	}
	if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rec.StorageKey))); err != nil {
		t.Fatalf("artifact not stored: %v", err)
	}

	if _, err := h.session.HandOff(ctx, "bad tag", handoff.RoleNone); !errors.Is(err, handoff.ErrInvalidTag) {
		t.Fatalf("hand off error = %v", err)
	}
}

func TestHandOffWithoutChannel(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.session.HandOff(context.Background(), "mixer", handoff.RoleNone); !errors.Is(err, ErrHandoffUnavailable) {
		t.Fatalf("error = %v", err)
	}
}

func TestSpaceTogglesPlayback(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if h.session.Key(ctx, playback.KeySpace) {
		t.Fatal("space must be ignored without a source")
	}
	_, _ = h.session.Open(ctx, "song.mp3", "audio/mpeg", []byte("mp3"))
	if !h.session.Key(ctx, playback.KeySpace) {
		t.Fatal("space not consumed")
	}
	if !h.session.Snapshot().Playing {
		t.Fatal("expected playback")
	}
	if h.session.Key(ctx, "Enter") {
		t.Fatal("other keys must not be consumed")
	}

	_, _ = h.session.SelectAll()
	_, _ = h.session.SetRange("00:01", "00:05")
	if h.session.Snapshot().Playing {
		t.Fatal("selection change must pause")
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, _ = h.session.Open(ctx, "song.mp3", "audio/mpeg", []byte("mp3"))
	_, _ = h.session.Toggle(ctx)

	h.session.Close()
	snap := h.session.Snapshot()
	if snap.Source != nil || snap.Playing {
		t.Fatalf("state after close: %+v", snap)
	}
	if _, err := h.session.Toggle(ctx); !errors.Is(err, playback.ErrNoSource) {
		t.Fatalf("toggle error = %v", err)
	}
	if _, err := h.session.Open(ctx, "song.mp3", "audio/mpeg", []byte("mp3")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("open error = %v", err)
	}
}

func TestManager(t *testing.T) {
	h := newHarness(t, nil)
	m := NewManager(Config{Prober: h.prober, Analyzer: h.analyzer, Auth: h.auth}, zerolog.Nop())
	ctx := context.Background()

	s, err := m.Create(ctx, "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got, err := m.Get(s.ID(), "alice"); err != nil || got != s {
		t.Fatalf("get = %v, %v", got, err)
	}
	if _, err := m.Get(s.ID(), "mallory"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign get error = %v", err)
	}
	if err := m.Close(s.ID(), "alice"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("len = %d", m.Len())
	}

	h.auth.allowed = false
	if _, err := m.Create(ctx, "alice"); !errors.Is(err, ErrSignInRequired) {
		t.Fatalf("create error = %v", err)
	}
}
