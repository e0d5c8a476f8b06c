package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haovie/clonevideo/internal/data"
	"github.com/haovie/clonevideo/internal/urlutil"
)

var commandContext = exec.CommandContext

// formatSpec prefers the best video under the upload ceiling paired with m4a
// audio, falling back to progressively looser selections.
const formatSpec = "bestvideo[filesize<2G]+bestaudio[ext=m4a]/bestvideo[filesize<2G]+bestaudio/best[filesize<2G]/best"

// CLI acquires content by shelling out to yt-dlp and gallery-dl. Every
// acquisition works inside a fresh scratch directory under the download root
// so cleanup can never touch unrelated files.
type CLI struct {
	ytdlp     string
	gallerydl string
	root      string
	post      PostProcessor
	client    *http.Client
	log       *slog.Logger
}

// Option configures the CLI fetcher.
type Option func(*CLI)

// WithYtDlpBinary overrides the default yt-dlp binary name.
func WithYtDlpBinary(bin string) Option {
	return func(c *CLI) {
		if bin != "" {
			c.ytdlp = bin
		}
	}
}

// WithGalleryDLBinary overrides the default gallery-dl binary name.
func WithGalleryDLBinary(bin string) Option {
	return func(c *CLI) {
		if bin != "" {
			c.gallerydl = bin
		}
	}
}

// WithHTTPClient overrides the client used to resolve short URLs.
func WithHTTPClient(client *http.Client) Option {
	return func(c *CLI) {
		if client != nil {
			c.client = client
		}
	}
}

// NewCLI constructs a fetcher rooted at root. The post processor may be nil,
// in which case acquired videos are delivered as-is and photo slideshows
// cannot be assembled into videos.
func NewCLI(root string, post PostProcessor, log *slog.Logger, opts ...Option) *CLI {
	c := &CLI{
		ytdlp:     "yt-dlp",
		gallerydl: "gallery-dl",
		root:      root,
		post:      post,
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Fetcher = (*CLI)(nil)

type probeInfo struct {
	Title            string  `json:"title"`
	Uploader         string  `json:"uploader"`
	Duration         float64 `json:"duration"`
	Filesize         int64   `json:"filesize"`
	FilesizeApprox   int64   `json:"filesize_approx"`
	Description      string  `json:"description"`
	RequestedFormats []struct {
		Filesize int64 `json:"filesize"`
	} `json:"requested_formats"`
}

// GetMetadata probes the URL with yt-dlp without downloading. TikTok photo
// URLs are probed through their /video/ form, which yt-dlp understands; when
// probing a TikTok URL fails entirely, a coarse estimate is returned instead
// of an error so the task can still be parked.
func (c *CLI) GetMetadata(ctx context.Context, rawURL string) (*data.Metadata, error) {
	url := c.resolveShortURL(ctx, rawURL)
	probeURL := url
	if urlutil.IsSlideshow(url) {
		probeURL = strings.Replace(url, "/photo/", "/video/", 1)
	}

	args := []string{"-J", "--no-playlist", "-f", formatSpec, probeURL}
	cmd := commandContext(ctx, c.ytdlp, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if strings.Contains(url, "tiktok.com") {
			c.log.Warn("metadata probe failed, using tiktok fallback", "url", rawURL, "err", err)
			return fallbackTikTokMeta(url), nil
		}
		return nil, fmt.Errorf("%w: yt-dlp probe: %v: %s", data.ErrAcquisition, err, firstLine(stderr.String()))
	}

	var info probeInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("%w: parse yt-dlp output: %v", data.ErrAcquisition, err)
	}

	size := info.Filesize
	for _, f := range info.RequestedFormats {
		size += f.Filesize
	}
	if size == 0 {
		size = info.FilesizeApprox
	}
	// Assembled slideshows come out larger than the source formats.
	if urlutil.IsSlideshow(url) && size > 0 {
		size = size * 3 / 2
	}

	desc := info.Description
	if len(desc) > 200 {
		desc = desc[:200] + "..."
	}
	return &data.Metadata{
		Title:           info.Title,
		Uploader:        info.Uploader,
		DurationSeconds: int(info.Duration),
		EstimatedBytes:  size,
		Description:     desc,
	}, nil
}

// Acquire downloads the video behind the URL into a fresh scratch directory.
// If the download yields a set of images instead of a video, they are
// assembled into a slideshow video. The returned handle's first file is the
// deliverable.
func (c *CLI) Acquire(ctx context.Context, rawURL string) (*Handle, error) {
	url := c.resolveShortURL(ctx, rawURL)
	dir, err := c.scratchDir()
	if err != nil {
		return nil, err
	}

	args := []string{
		"-f", formatSpec,
		"--no-playlist",
		"--merge-output-format", "mp4",
		"--socket-timeout", "60",
		"--retries", "3",
		"-o", filepath.Join(dir, "%(title)s.%(ext)s"),
		url,
	}
	cmd := commandContext(ctx, c.ytdlp, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.RemoveAll(dir)
		if ctx.Err() != nil {
			return nil, data.ErrCancelled
		}
		return nil, fmt.Errorf("%w: yt-dlp: %v: %s", data.ErrAcquisition, err, firstLine(stderr.String()))
	}

	path, err := c.pickDeliverable(ctx, dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return newHandle(c.root, dir, []string{path}), nil
}

// AcquirePhotoSet downloads the raw slideshow images with gallery-dl.
func (c *CLI) AcquirePhotoSet(ctx context.Context, rawURL string) (*Handle, error) {
	url := c.resolveShortURL(ctx, rawURL)
	if !urlutil.IsSlideshow(url) {
		return nil, data.ErrNotSlideshow
	}
	dir, err := c.scratchDir()
	if err != nil {
		return nil, err
	}

	args := []string{
		"--dest", dir,
		"--filename", "{num:>02}_{id}.{extension}",
		url,
	}
	cmd := commandContext(ctx, c.gallerydl, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.RemoveAll(dir)
		if ctx.Err() != nil {
			return nil, data.ErrCancelled
		}
		return nil, fmt.Errorf("%w: gallery-dl: %v: %s", data.ErrAcquisition, err, firstLine(stderr.String()))
	}

	images := collectFiles(dir, isImage)
	if len(images) == 0 {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: no images extracted", data.ErrAcquisition)
	}
	return newHandle(c.root, dir, images), nil
}

// pickDeliverable decides what to hand back from a finished download: a video
// as-is (audio enhanced), multiple images assembled into a slideshow, or the
// single file that was produced.
func (c *CLI) pickDeliverable(ctx context.Context, dir string) (string, error) {
	videos := collectFiles(dir, isVideo)
	if len(videos) > 0 {
		return c.enhance(ctx, videos[0]), nil
	}

	images := collectFiles(dir, isImage)
	if len(images) > 1 && c.post != nil {
		out, err := c.post.Slideshow(ctx, dir)
		if err == nil {
			return out, nil
		}
		c.log.Error("slideshow assembly failed", "dir", dir, "err", err)
	}

	all := collectFiles(dir, func(string) bool { return true })
	if len(all) == 0 {
		return "", fmt.Errorf("%w: nothing downloaded", data.ErrAcquisition)
	}
	return all[0], nil
}

func (c *CLI) enhance(ctx context.Context, path string) string {
	if c.post == nil {
		return path
	}
	out, err := c.post.Enhance(ctx, path)
	if err != nil {
		c.log.Warn("audio enhancement failed, delivering original", "path", path, "err", err)
		return path
	}
	return out
}

func (c *CLI) scratchDir() (string, error) {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return "", fmt.Errorf("create download root: %w", err)
	}
	dir := filepath.Join(c.root, uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}

// resolveShortURL follows TikTok vt/vm short links to their canonical form so
// slideshow detection can see the /photo/ path segment. On any failure the
// original URL is returned.
func (c *CLI) resolveShortURL(ctx context.Context, rawURL string) string {
	if !strings.Contains(rawURL, "vt.tiktok.com") && !strings.Contains(rawURL, "vm.tiktok.com") {
		return rawURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("short url resolution failed", "url", rawURL, "err", err)
		return rawURL
	}
	resp.Body.Close()
	resolved := resp.Request.URL.String()
	c.log.Info("resolved short url", "from", rawURL, "to", resolved)
	return resolved
}

func fallbackTikTokMeta(url string) *data.Metadata {
	username := "unknown"
	if i := strings.Index(url, "@"); i >= 0 {
		rest := url[i+1:]
		if j := strings.IndexByte(rest, '/'); j > 0 {
			username = rest[:j]
		}
	}
	if urlutil.IsSlideshow(url) {
		return &data.Metadata{
			Title:           "TikTok Slideshow by @" + username,
			Uploader:        "@" + username,
			DurationSeconds: 15,
			EstimatedBytes:  10 << 20,
		}
	}
	return &data.Metadata{
		Title:           "TikTok Video by @" + username,
		Uploader:        "@" + username,
		DurationSeconds: 30,
		EstimatedBytes:  10 << 20,
	}
}

func collectFiles(dir string, match func(string) bool) []string {
	var out []string
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if match(path) {
			out = append(out, path)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return filepath.Base(out[i]) < filepath.Base(out[j])
	})
	return out
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func isImage(path string) bool {
	return hasExt(path, ".jpg", ".jpeg", ".png", ".webp")
}

func isVideo(path string) bool {
	return hasExt(path, ".mp4", ".avi", ".mov", ".mkv", ".webm")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
