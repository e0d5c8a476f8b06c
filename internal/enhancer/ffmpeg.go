// Package enhancer post-processes acquired media with ffmpeg: boosting and
// normalizing audio tracks and assembling photo sets into slideshow videos.
package enhancer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// audioChain boosts volume, trims frequency extremes, lifts speech bands, and
// normalizes loudness for phone playback.
const audioChain = "volume=2.5," +
	"highpass=f=30," +
	"lowpass=f=18000," +
	"equalizer=f=60:t=h:width=30:g=3," +
	"equalizer=f=200:t=h:width=100:g=2," +
	"equalizer=f=1000:t=h:width=500:g=1.5," +
	"equalizer=f=3000:t=h:width=1000:g=2," +
	"equalizer=f=8000:t=h:width=2000:g=1.5," +
	"compand=attacks=0.05:decays=0.1:points=-80/-80|-40/-20|-20/-10|-10/-5|0/0," +
	"alimiter=level_in=2:level_out=0.9:limit=0.95," +
	"loudnorm=I=-14:TP=-1:LRA=7:measured_I=-20:measured_LRA=15:measured_TP=-3:linear=true"

// slideshowAudioChain is a lighter variant applied while muxing slideshow
// audio.
const slideshowAudioChain = "volume=3.0," +
	"equalizer=f=60:t=h:width=30:g=3," +
	"equalizer=f=200:t=h:width=100:g=2," +
	"equalizer=f=3000:t=h:width=1000:g=2," +
	"compand=attacks=0.05:decays=0.1:points=-80/-80|-40/-20|-20/-10|-10/-5|0/0," +
	"alimiter=level_in=2:level_out=0.9:limit=0.95," +
	"loudnorm=I=-14:TP=-1:LRA=7"

// FFmpeg shells out to ffmpeg and ffprobe.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	log     *slog.Logger
}

// Option configures the FFmpeg processor.
type Option func(*FFmpeg)

// WithFFmpegBinary overrides the default ffmpeg binary name.
func WithFFmpegBinary(bin string) Option {
	return func(f *FFmpeg) {
		if bin != "" {
			f.ffmpeg = bin
		}
	}
}

// WithFFprobeBinary overrides the default ffprobe binary name.
func WithFFprobeBinary(bin string) Option {
	return func(f *FFmpeg) {
		if bin != "" {
			f.ffprobe = bin
		}
	}
}

func New(log *slog.Logger, opts ...Option) *FFmpeg {
	f := &FFmpeg{ffmpeg: "ffmpeg", ffprobe: "ffprobe", log: log}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Enhance re-encodes the audio track of the video at path with the standard
// enhancement chain, replacing the file in place. Any failure, including a
// video with no audio stream, leaves the input untouched and returns its
// path; Enhance only errors when the context is cancelled.
func (f *FFmpeg) Enhance(ctx context.Context, path string) (string, error) {
	info, err := f.probe(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		f.log.Warn("probe before enhancement failed", "path", path, "err", err)
		return path, nil
	}
	if !info.hasAudio {
		return path, nil
	}

	ext := filepath.Ext(path)
	tmp := strings.TrimSuffix(path, ext) + "_enhanced.mp4"
	args := []string{
		"-y",
		"-i", path,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "320k",
		"-ar", "48000",
		"-ac", "2",
		"-af", audioChain,
		"-movflags", "+faststart",
		tmp,
	}
	if err := f.run(ctx, f.ffmpeg, args...); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		f.log.Warn("audio enhancement failed, keeping original", "path", path, "err", err)
		os.Remove(tmp)
		return path, nil
	}

	out, err := f.probe(ctx, tmp)
	if err != nil || !out.hasVideo || !out.hasAudio || out.Duration <= 0 {
		f.log.Warn("enhanced output failed verification, keeping original", "path", tmp)
		os.Remove(tmp)
		return path, nil
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return path, nil
	}
	return path, nil
}

// Slideshow assembles the images under dir into a vertical 1080x1920 video.
// The first audio file found under dir, if any, becomes the soundtrack and
// decides the per-image display time.
func (f *FFmpeg) Slideshow(ctx context.Context, dir string) (string, error) {
	var images, audio []string
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jpg", ".jpeg", ".png", ".webp":
			images = append(images, path)
		case ".mp3", ".m4a", ".wav", ".aac":
			audio = append(audio, path)
		}
		return nil
	})
	if len(images) == 0 {
		return "", fmt.Errorf("no images under %s", dir)
	}
	sort.Slice(images, func(i, j int) bool {
		return filepath.Base(images[i]) < filepath.Base(images[j])
	})
	sort.Slice(audio, func(i, j int) bool {
		return filepath.Base(audio[i]) < filepath.Base(audio[j])
	})

	out := filepath.Join(dir, "slideshow.mp4")

	perImage := 2.0
	var soundtrack string
	if len(audio) > 0 {
		soundtrack = audio[0]
		dur := f.mediaDuration(ctx, soundtrack)
		if dur <= 0 {
			dur = 15
		}
		perImage = dur / float64(len(images))
		if perImage < 1 {
			perImage = 1
		}
	}

	args := []string{"-y"}
	for _, img := range images {
		args = append(args, "-loop", "1", "-t", formatSeconds(perImage), "-i", img)
	}
	if soundtrack != "" {
		args = append(args, "-i", soundtrack)
	}

	var filters []string
	var concat strings.Builder
	for i := range images {
		filters = append(filters, fmt.Sprintf(
			"[%d:v]scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2:black,setsar=1,fps=30[v%d]", i, i))
		fmt.Fprintf(&concat, "[v%d]", i)
	}
	filters = append(filters, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[outv]", concat.String(), len(images)))

	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "[outv]",
	)
	if soundtrack != "" {
		args = append(args,
			"-map", fmt.Sprintf("%d:a", len(images)),
			"-c:a", "aac",
			"-b:a", "320k",
			"-ar", "48000",
			"-af", slideshowAudioChain,
			"-shortest",
		)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		out,
	)

	if err := f.run(ctx, f.ffmpeg, args...); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("assemble slideshow: %w", err)
	}
	info, err := f.probe(ctx, out)
	if err != nil || !info.hasVideo || info.Duration <= 0 {
		os.Remove(out)
		return "", fmt.Errorf("slideshow output failed verification")
	}
	return out, nil
}

// VideoInfo describes a playable video for upload attributes.
type VideoInfo struct {
	Width           int
	Height          int
	DurationSeconds int
}

// Probe returns the dimensions and duration of the video at path.
func (f *FFmpeg) Probe(ctx context.Context, path string) (VideoInfo, error) {
	info, err := f.probe(ctx, path)
	if err != nil {
		return VideoInfo{}, err
	}
	if !info.hasVideo {
		return VideoInfo{}, fmt.Errorf("no video stream in %s", path)
	}
	return VideoInfo{
		Width:           info.Width,
		Height:          info.Height,
		DurationSeconds: int(info.Duration),
	}, nil
}

type probeResult struct {
	hasVideo bool
	hasAudio bool
	Width    int
	Height   int
	Duration float64
}

func (f *FFmpeg) probe(ctx context.Context, path string) (probeResult, error) {
	cmd := commandContext(ctx, f.ffprobe,
		"-v", "quiet", "-print_format", "json", "-show_streams", "-show_format", path)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return probeResult{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var payload struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return probeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var res probeResult
	for _, s := range payload.Streams {
		switch s.CodecType {
		case "video":
			res.hasVideo = true
			if res.Width == 0 {
				res.Width = s.Width
				res.Height = s.Height
			}
		case "audio":
			res.hasAudio = true
		}
	}
	res.Duration, _ = strconv.ParseFloat(payload.Format.Duration, 64)
	return res, nil
}

func (f *FFmpeg) mediaDuration(ctx context.Context, path string) float64 {
	info, err := f.probe(ctx, path)
	if err != nil {
		return 0
	}
	return info.Duration
}

func (f *FFmpeg) run(ctx context.Context, name string, args ...string) error {
	cmd := commandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
			msg = msg[i+1:]
		}
		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 2, 64)
}
