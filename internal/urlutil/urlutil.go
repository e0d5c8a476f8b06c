// Package urlutil classifies and formats media links posted in chat.
package urlutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// Extract returns every valid URL found in free-form message text.
func Extract(text string) []string {
	var out []string
	for _, m := range urlPattern.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;:!?)")
		if Valid(m) {
			out = append(out, m)
		}
	}
	return out
}

// Valid reports whether s parses as an absolute http(s) URL with a host.
func Valid(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

var platformDomains = []struct {
	domain string
	name   string
}{
	{"youtube.com", "YouTube"},
	{"youtu.be", "YouTube"},
	{"tiktok.com", "TikTok"},
	{"instagram.com", "Instagram"},
	{"facebook.com", "Facebook"},
	{"twitter.com", "Twitter"},
	{"x.com", "Twitter/X"},
	{"vimeo.com", "Vimeo"},
	{"dailymotion.com", "Dailymotion"},
	{"twitch.tv", "Twitch"},
}

// Platform names the source site, or "" when the host is not recognized.
// TikTok slideshow links are reported as a distinct "TikTok Photos" platform
// so callers can route them to the image pipeline.
func Platform(rawURL string) string {
	if strings.Contains(rawURL, "tiktok.com") {
		if IsSlideshow(rawURL) {
			return "TikTok Photos"
		}
		return "TikTok"
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	for _, p := range platformDomains {
		if strings.Contains(host, p.domain) {
			return p.name
		}
	}
	return ""
}

// IsSupported reports whether the URL belongs to a platform the pipeline can
// acquire from.
func IsSupported(rawURL string) bool {
	return Valid(rawURL) && Platform(rawURL) != ""
}

// IsSlideshow reports whether a TikTok URL points at a photo slideshow rather
// than a video.
func IsSlideshow(rawURL string) bool {
	if !strings.Contains(rawURL, "tiktok.com") {
		return false
	}
	return strings.Contains(rawURL, "/photo/") ||
		strings.Contains(strings.ToLower(rawURL), "slideshow")
}

var spamIndicators = []string{
	"taphoammo.net",
	"gian-hang",
	"tai-khoan",
	"pro-",
	"ban-nick",
	"mua-ban",
	"kiem-tien",
	"hack-",
	"mod-apk",
	"download-",
	"crack-",
	"free-fire",
	"pubg-",
	"lien-quan",
}

// IsSpam reports whether the URL matches known promotional patterns.
func IsSpam(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, ind := range spamIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// FormatSize renders a byte count for status messages.
func FormatSize(n int64) string {
	if n <= 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(n))
}

// FormatDuration renders seconds as "1h 2m 3s", dropping leading zero units.
func FormatDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	return fmt.Sprintf("%dh %dm %ds", seconds/3600, (seconds%3600)/60, seconds%60)
}

// ProgressBar renders a fixed-width text bar with a percentage.
func ProgressBar(current, total int64, width int) string {
	if total <= 0 {
		return strings.Repeat("█", width)
	}
	filled := int(int64(width) * current / total)
	if filled > width {
		filled = width
	}
	pct := float64(current) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled) +
		fmt.Sprintf(" %.1f%%", pct)
}
