package enhancer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewOptions(t *testing.T) {
	f := New(discardLogger(), WithFFmpegBinary("/opt/ffmpeg"), WithFFprobeBinary("/opt/ffprobe"))
	if f.ffmpeg != "/opt/ffmpeg" || f.ffprobe != "/opt/ffprobe" {
		t.Fatalf("binary overrides not applied: %q %q", f.ffmpeg, f.ffprobe)
	}
}

// stubCommands routes probe and encode invocations to canned behaviour.
func stubCommands(t *testing.T, probeJSON string, onFFmpeg func(args []string)) *[][]string {
	t.Helper()
	var calls [][]string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		calls = append(calls, append([]string{name}, args...))
		if strings.Contains(name, "probe") {
			return exec.CommandContext(ctx, "echo", probeJSON)
		}
		if onFFmpeg != nil {
			onFFmpeg(args)
		}
		return exec.CommandContext(ctx, "true")
	}
	t.Cleanup(func() { commandContext = original })
	return &calls
}

const probeWithAudio = `{"streams":[{"codec_type":"video","width":1080,"height":1920},{"codec_type":"audio"}],"format":{"duration":"12.5"}}`
const probeVideoOnly = `{"streams":[{"codec_type":"video","width":640,"height":360}],"format":{"duration":"8.0"}}`

func TestEnhanceSkipsSilentVideo(t *testing.T) {
	calls := stubCommands(t, probeVideoOnly, nil)

	f := New(discardLogger())
	in := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(in, []byte("v"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := f.Enhance(context.Background(), in)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if out != in {
		t.Fatalf("expected original path back, got %q", out)
	}
	// Only the probe should have run.
	if len(*calls) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(*calls))
	}
}

func TestEnhanceReplacesInPlace(t *testing.T) {
	var enhancedPath string
	stubCommands(t, probeWithAudio, func(args []string) {
		// Last argument is the output path.
		enhancedPath = args[len(args)-1]
		if err := os.WriteFile(enhancedPath, []byte("enhanced"), 0o644); err != nil {
			t.Fatal(err)
		}
	})

	f := New(discardLogger())
	in := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(in, []byte("orig"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := f.Enhance(context.Background(), in)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if out != in {
		t.Fatalf("expected in-place path, got %q", out)
	}
	b, err := os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "enhanced" {
		t.Fatalf("expected enhanced content to replace original, got %q", b)
	}
	if !strings.HasSuffix(enhancedPath, "_enhanced.mp4") {
		t.Fatalf("unexpected intermediate path %q", enhancedPath)
	}
	if _, err := os.Stat(enhancedPath); !os.IsNotExist(err) {
		t.Fatalf("intermediate file should be gone, stat err = %v", err)
	}
}

func TestSlideshowRequiresImages(t *testing.T) {
	f := New(discardLogger())
	if _, err := f.Slideshow(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestSlideshowBuildsFilterChain(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"01.jpg", "02.jpg", "track.mp3"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var ffmpegArgs []string
	calls := stubCommands(t, probeWithAudio, func(args []string) {
		ffmpegArgs = args
		if err := os.WriteFile(filepath.Join(dir, "slideshow.mp4"), []byte("v"), 0o644); err != nil {
			t.Fatal(err)
		}
	})

	f := New(discardLogger())
	out, err := f.Slideshow(context.Background(), dir)
	if err != nil {
		t.Fatalf("Slideshow: %v", err)
	}
	if filepath.Base(out) != "slideshow.mp4" {
		t.Fatalf("unexpected output %q", out)
	}

	joined := strings.Join(ffmpegArgs, " ")
	if !strings.Contains(joined, "scale=1080:1920") {
		t.Fatalf("expected vertical scaling in args: %s", joined)
	}
	if !strings.Contains(joined, "concat=n=2") {
		t.Fatalf("expected 2-image concat in args: %s", joined)
	}
	if !strings.Contains(joined, "-map 2:a") {
		t.Fatalf("expected audio mapped from input 2: %s", joined)
	}
	// Probe for audio duration, the encode, and the verification probe.
	if len(*calls) != 3 {
		t.Fatalf("expected 3 invocations, got %d", len(*calls))
	}
}

func TestProbe(t *testing.T) {
	stubCommands(t, probeWithAudio, nil)
	f := New(discardLogger())
	info, err := f.Probe(context.Background(), "/x/clip.mp4")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Width != 1080 || info.Height != 1920 || info.DurationSeconds != 12 {
		t.Fatalf("unexpected info %+v", info)
	}
}
