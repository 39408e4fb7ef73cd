package notify

import (
	"context"
	"testing"

	"github.com/friendsincode/clipdeck/internal/events"
	"github.com/rs/zerolog"
)

func TestNewFillsDefaults(t *testing.T) {
	tests := []struct {
		code  string
		level Level
	}{
		{CodeExportFailed, LevelError},
		{CodeExportSucceeded, LevelSuccess},
		{CodeNoAudioTrack, LevelInfo},
		{"something_else", LevelInfo},
	}
	for _, tt := range tests {
		n := New("s1", tt.code)
		if n.Level != tt.level {
			t.Errorf("%s: level = %s, want %s", tt.code, n.Level, tt.level)
		}
		if n.SessionID != "s1" || n.At.IsZero() {
			t.Errorf("%s: notice = %+v", tt.code, n)
		}
	}
	if New("", CodeSignInRequired).Message == "" {
		t.Fatal("expected default message")
	}
}

func TestBusNotifierPublishes(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventNotice)
	n := NewBusNotifier(bus, zerolog.Nop())

	n.Notify(context.Background(), New("abc", CodeHandoffReady))

	got := <-sub
	if got["code"] != CodeHandoffReady || got["session_id"] != "abc" || got["level"] != "success" {
		t.Fatalf("payload = %v", got)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Notify(context.Background(), New("", CodeExportFailed))
	r.Notify(context.Background(), New("", CodeExportSucceeded))

	codes := r.Codes()
	if len(codes) != 2 || codes[0] != CodeExportFailed || codes[1] != CodeExportSucceeded {
		t.Fatalf("codes = %v", codes)
	}
	r.Reset()
	if len(r.Notices()) != 0 {
		t.Fatal("expected reset")
	}
	Discard.Notify(context.Background(), New("", CodeExportFailed))
}
