package urlutil

import (
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"single url", "check this https://youtube.com/watch?v=abc out", []string{"https://youtube.com/watch?v=abc"}},
		{"two urls", "https://a.com/x and http://b.com/y", []string{"https://a.com/x", "http://b.com/y"}},
		{"trailing punctuation stripped", "see https://a.com/x.", []string{"https://a.com/x"}},
		{"no urls", "just some words", nil},
		{"bare scheme", "https:// is not a link", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("Extract(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Extract(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPlatform(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=abc", "YouTube"},
		{"https://youtu.be/abc", "YouTube"},
		{"https://www.tiktok.com/@user/video/123", "TikTok"},
		{"https://www.tiktok.com/@user/photo/123", "TikTok Photos"},
		{"https://x.com/user/status/1", "Twitter/X"},
		{"https://www.twitch.tv/somebody", "Twitch"},
		{"https://example.com/video", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := Platform(tt.url); got != tt.want {
				t.Fatalf("Platform(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestIsSupported(t *testing.T) {
	if !IsSupported("https://vimeo.com/12345") {
		t.Fatal("expected vimeo to be supported")
	}
	if IsSupported("https://unknown-site.net/clip") {
		t.Fatal("expected unknown host to be unsupported")
	}
	if IsSupported("not a url") {
		t.Fatal("expected garbage to be unsupported")
	}
}

func TestIsSlideshow(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.tiktok.com/@user/photo/123", true},
		{"https://www.tiktok.com/@user/video/123?mode=slideshow", true},
		{"https://www.tiktok.com/@user/video/123", false},
		{"https://youtube.com/photo/123", false},
	}
	for _, tt := range tests {
		if got := IsSlideshow(tt.url); got != tt.want {
			t.Fatalf("IsSlideshow(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestIsSpam(t *testing.T) {
	if !IsSpam("https://taphoammo.net/gian-hang/thing") {
		t.Fatal("expected spam url to be flagged")
	}
	if IsSpam("https://www.youtube.com/watch?v=abc") {
		t.Fatal("expected clean url to pass")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{45, "45s"},
		{60, "1m 0s"},
		{125, "2m 5s"},
		{3723, "1h 2m 3s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Fatalf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	if got := FormatSize(0); got != "unknown" {
		t.Fatalf("FormatSize(0) = %q", got)
	}
	if got := FormatSize(1500); !strings.Contains(got, "kB") {
		t.Fatalf("FormatSize(1500) = %q, want kB unit", got)
	}
}

func TestProgressBar(t *testing.T) {
	bar := ProgressBar(5, 10, 10)
	if !strings.HasPrefix(bar, "█████░░░░░") {
		t.Fatalf("unexpected bar: %q", bar)
	}
	if !strings.HasSuffix(bar, "50.0%") {
		t.Fatalf("expected percentage suffix, got %q", bar)
	}

	full := ProgressBar(3, 0, 10)
	if full != strings.Repeat("█", 10) {
		t.Fatalf("zero total should render a full bar, got %q", full)
	}

	over := ProgressBar(20, 10, 10)
	if !strings.HasSuffix(over, "100.0%") {
		t.Fatalf("overshoot should clamp to 100%%, got %q", over)
	}
}
