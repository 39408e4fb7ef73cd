package export

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/friendsincode/clipdeck/internal/engine"
	"github.com/friendsincode/clipdeck/internal/media"
	"github.com/friendsincode/clipdeck/internal/selection"
	"github.com/rs/zerolog"
)

// fakeEngine keeps files in memory and answers Exec via a script keyed on
// the codec argument.
type fakeEngine struct {
	mu    sync.Mutex
	files map[string][]byte
	execs [][]string

	// outputs maps "-c:a copy", "-c:a libmp3lame" or "-c:v libx264" to the
	// bytes written to the output file; a nil entry means Exec fails.
	outputs map[string][]byte
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{files: map[string][]byte{}, outputs: map[string][]byte{}}
}

func (f *fakeEngine) WriteFile(_ context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = append([]byte(nil), data...)
	return nil
}

func (f *fakeEngine) Exec(_ context.Context, args []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, args)

	key := codecKey(args)
	out, ok := f.outputs[key]
	if !ok || out == nil {
		return errors.New("exec failed: " + key)
	}
	f.files[args[len(args)-1]] = out
	return nil
}

func (f *fakeEngine) ReadFile(_ context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[name]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return data, nil
}

func (f *fakeEngine) DeleteFile(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, name)
	return nil
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) fileCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

func codecKey(args []string) string {
	for i, a := range args {
		if (a == "-c:a" || a == "-c:v") && i+1 < len(args) {
			return a + " " + args[i+1]
		}
	}
	return ""
}

func newPipeline(eng *fakeEngine, calls *int) *Pipeline {
	loader := engine.NewLoader(func(context.Context) (engine.Engine, error) {
		if calls != nil {
			*calls++
		}
		return eng, nil
	})
	return NewPipeline(loader, Options{}, zerolog.Nop())
}

func source(t *testing.T, name, mimeType string) *media.Source {
	t.Helper()
	src, err := media.NewSource("id", name, mimeType, []byte("source-bytes"))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	return src
}

func TestBuildPlan(t *testing.T) {
	src := source(t, "song.mp3", "audio/mpeg")

	tests := []struct {
		name   string
		sel    selection.Selection
		offset string
		length string
		full   bool
	}{
		{"partial", selection.Selection{Start: 10, End: 25}, "10.00", "15.00", false},
		{"full", selection.Selection{Start: 0, End: 60}, "0.00", "60.00", true},
		{"negative start", selection.Selection{Start: -2, End: 5}, "0.00", "5.00", false},
		{"degenerate", selection.Selection{Start: 12.5, End: 12.5}, "12.50", "0.10", false},
		{"fractional", selection.Selection{Start: 1.25, End: 3.5}, "1.25", "2.25", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := BuildPlan(src, tt.sel, 60, true)
			if p.Offset != tt.offset || p.Length != tt.length {
				t.Fatalf("offset/length = %s/%s, want %s/%s", p.Offset, p.Length, tt.offset, tt.length)
			}
			if p.IsFullSelection != tt.full {
				t.Fatalf("full = %v", p.IsFullSelection)
			}
		})
	}
}

func TestCopyContainerFor(t *testing.T) {
	tests := []struct {
		mime string
		want Container
	}{
		{"audio/mpeg", ContainerMP3},
		{"audio/mp3", ContainerMP3},
		{"audio/x-mpeg", ContainerMP3},
		{"audio/wav", ContainerM4A},
		{"audio/flac", ContainerM4A},
		{"video/mp4", ContainerM4A},
		{"", ContainerM4A},
	}
	for _, tt := range tests {
		if got := CopyContainerFor(tt.mime); got != tt.want {
			t.Errorf("CopyContainerFor(%q) = %+v", tt.mime, got)
		}
	}
}

func TestFullAudioSelectionReturnsOriginal(t *testing.T) {
	eng := newFakeEngine()
	calls := 0
	p := newPipeline(eng, &calls)
	src := source(t, "song.mp3", "audio/mpeg")

	res, err := p.Run(context.Background(), src, selection.Selection{Start: 0, End: 30}, 30, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Path != PathOriginal {
		t.Fatalf("path = %s", res.Path)
	}
	a := res.Artifact
	if a.Name != "song.mp3" || a.MIMEType != "audio/mpeg" || string(a.Data) != "source-bytes" {
		t.Fatalf("artifact = %+v", a)
	}
	if calls != 0 || len(eng.execs) != 0 {
		t.Fatal("fast path must not touch the engine")
	}
}

func TestStreamCopyMP3(t *testing.T) {
	eng := newFakeEngine()
	eng.outputs["-c:a copy"] = []byte("trimmed")
	p := newPipeline(eng, nil)
	src := source(t, "song.mp3", "audio/mpeg")

	a, err := p.Export(context.Background(), src, selection.Selection{Start: 10, End: 25}, 60, true)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if a.Name != "song.mp3" || a.MIMEType != "audio/mpeg" || string(a.Data) != "trimmed" {
		t.Fatalf("artifact = %+v", a)
	}

	want := "-ss 10.00 -i input.mp3 -t 15.00 -vn -c:a copy -f mp3 output.mp3"
	if len(eng.execs) != 1 || strings.Join(eng.execs[0], " ") != want {
		t.Fatalf("execs = %v", eng.execs)
	}
	if eng.fileCount() != 0 {
		t.Fatalf("virtual files left behind: %d", eng.fileCount())
	}
}

func TestEmptyCopyFallsBackToReencode(t *testing.T) {
	eng := newFakeEngine()
	eng.outputs["-c:a copy"] = []byte{}
	eng.outputs["-c:a libmp3lame"] = []byte("encoded")
	p := newPipeline(eng, nil)
	src := source(t, "take.wav", "audio/wav")

	res, err := p.Run(context.Background(), src, selection.Selection{Start: 1, End: 4}, 10, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Path != PathReencode {
		t.Fatalf("path = %s", res.Path)
	}
	if res.Artifact.Name != "take.mp3" || res.Artifact.MIMEType != "audio/mpeg" {
		t.Fatalf("artifact = %+v", res.Artifact)
	}
	if len(eng.execs) != 2 {
		t.Fatalf("expected two attempts, got %d", len(eng.execs))
	}
	if got := strings.Join(eng.execs[0], " "); !strings.Contains(got, "-f ipod output.m4a") {
		t.Fatalf("tier 1 should target m4a: %s", got)
	}
	if got := strings.Join(eng.execs[1], " "); !strings.Contains(got, "-c:a libmp3lame -b:a 192k -f mp3 output.mp3") {
		t.Fatalf("tier 2 args: %s", got)
	}
	if eng.fileCount() != 0 {
		t.Fatalf("virtual files left behind: %d", eng.fileCount())
	}
}

func TestBothTiersFail(t *testing.T) {
	eng := newFakeEngine()
	p := newPipeline(eng, nil)
	src := source(t, "take.ogg", "audio/ogg")

	_, err := p.Export(context.Background(), src, selection.Selection{Start: 1, End: 4}, 10, true)
	if !errors.Is(err, ErrExportFailed) {
		t.Fatalf("err = %v", err)
	}
	if eng.fileCount() != 0 {
		t.Fatalf("virtual files left behind: %d", eng.fileCount())
	}
}

func TestEmptyReencodeIsFatal(t *testing.T) {
	eng := newFakeEngine()
	eng.outputs["-c:a libmp3lame"] = []byte{}
	p := newPipeline(eng, nil)
	src := source(t, "take.flac", "audio/flac")

	_, err := p.Export(context.Background(), src, selection.Selection{Start: 1, End: 4}, 10, true)
	if !errors.Is(err, ErrExportFailed) || !errors.Is(err, ErrEmptyOutput) {
		t.Fatalf("err = %v", err)
	}
}

func TestVideoWithAudioFullSelectionStillTranscodes(t *testing.T) {
	eng := newFakeEngine()
	eng.outputs["-c:a copy"] = []byte("audio-only")
	p := newPipeline(eng, nil)
	src := source(t, "clip.mp4", "video/mp4")

	res, err := p.Run(context.Background(), src, selection.Selection{Start: 0, End: 20}, 20, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Path != PathCopy || res.Artifact.Name != "clip.m4a" || res.Artifact.MIMEType != "audio/mp4" {
		t.Fatalf("result = %+v", res)
	}
}

func TestVideoWithoutAudioReencodesVideo(t *testing.T) {
	eng := newFakeEngine()
	eng.outputs["-c:a copy"] = []byte("should not be used")
	eng.outputs["-c:v libx264"] = []byte("video")
	p := newPipeline(eng, nil)
	src := source(t, "silent.webm", "video/webm")

	res, err := p.Run(context.Background(), src, selection.Selection{Start: 2, End: 6}, 10, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(eng.execs) != 1 {
		t.Fatalf("stream copy must be skipped, execs = %v", eng.execs)
	}
	if res.Artifact.Name != "silent.mp4" || res.Artifact.MIMEType != "video/mp4" || res.Path != PathReencode {
		t.Fatalf("result = %+v", res)
	}
	if got := strings.Join(eng.execs[0], " "); !strings.Contains(got, "-an -c:v libx264") {
		t.Fatalf("args = %s", got)
	}
}

func TestEngineReusedAcrossExports(t *testing.T) {
	eng := newFakeEngine()
	eng.outputs["-c:a copy"] = []byte("x")
	calls := 0
	p := newPipeline(eng, &calls)
	src := source(t, "song.mp3", "audio/mpeg")

	for i := 0; i < 3; i++ {
		if _, err := p.Export(context.Background(), src, selection.Selection{Start: 1, End: 2}, 10, true); err != nil {
			t.Fatalf("Export %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Fatalf("engine constructed %d times", calls)
	}
}

func TestExportCancelled(t *testing.T) {
	eng := newFakeEngine()
	p := newPipeline(eng, nil)
	src := source(t, "song.mp3", "audio/mpeg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Export(ctx, src, selection.Selection{Start: 1, End: 2}, 10, true)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestNilSource(t *testing.T) {
	p := newPipeline(newFakeEngine(), nil)
	if _, err := p.Export(context.Background(), nil, selection.Selection{}, 0, false); !errors.Is(err, ErrNoSource) {
		t.Fatalf("err = %v", err)
	}
}
