package media

import (
	"errors"
	"os"
	"testing"
)

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		mimeType string
		want     Kind
		wantErr  error
	}{
		{"mp3 by mime", "song.mp3", "audio/mpeg", KindAudio, nil},
		{"wav by extension only", "take.WAV", "", KindAudio, nil},
		{"flac with octet stream", "album.flac", "application/octet-stream", KindAudio, nil},
		{"any video", "clip.mkv", "video/x-matroska", KindVideo, nil},
		{"video without extension", "clip", "video/mp4", KindVideo, nil},
		{"audio mime unknown extension", "voice.aiff", "audio/aiff", "", ErrUnsupportedAudioExtension},
		{"image", "cover.png", "image/png", "", ErrNotMediaFile},
		{"no hints", "notes", "", "", ErrNotMediaFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateFile(tt.file, tt.mimeType)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ValidateFile() err = %v, want %v", err, tt.wantErr)
				}
				if !errors.Is(err, ErrInvalidFileType) {
					t.Fatalf("expected error to wrap ErrInvalidFileType, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateFile() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ValidateFile() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewSourceRejectsEmptyPayload(t *testing.T) {
	if _, err := NewSource("id", "a.mp3", "audio/mpeg", nil); !errors.Is(err, ErrEmptySource) {
		t.Fatalf("expected ErrEmptySource, got %v", err)
	}
}

func TestBaseName(t *testing.T) {
	cases := map[string]string{
		"song.mp3":          "song",
		"/tmp/dir/clip.mp4": "clip",
		"archive.tar.gz":    "archive.tar",
		"noext":             "noext",
		".hidden":           ".hidden",
		"":                  "output",
	}
	for in, want := range cases {
		if got := BaseName(in); got != want {
			t.Errorf("BaseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOutputName(t *testing.T) {
	if got := OutputName("My Track.wav", "mp3"); got != "My Track.mp3" {
		t.Fatalf("OutputName() = %q", got)
	}
}

func TestStageReleasesFile(t *testing.T) {
	src := &Source{Name: "a.mp3", MIMEType: "audio/mpeg", Kind: KindAudio, Data: []byte("ID3data")}

	path, release, err := Stage(t.TempDir(), src)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	if string(data) != "ID3data" {
		t.Fatalf("staged payload = %q", data)
	}

	release()
	release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected staged file to be removed, stat err = %v", err)
	}
}

func TestAsArtifactKeepsBytes(t *testing.T) {
	src := &Source{Name: "a.mp3", MIMEType: "audio/mpeg", Data: []byte{1, 2, 3}}
	art := src.AsArtifact()
	if art.Name != "a.mp3" || art.MIMEType != "audio/mpeg" || art.Size() != 3 {
		t.Fatalf("unexpected artifact %+v", art)
	}
}
