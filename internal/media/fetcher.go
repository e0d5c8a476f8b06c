// Package media acquires remote content through external tools and owns the
// lifecycle of the files they produce.
package media

import (
	"context"

	"github.com/haovie/clonevideo/internal/data"
)

// Fetcher retrieves metadata and content for a URL. Acquisitions return a
// Handle the caller must Release once the content has been delivered or the
// task is abandoned.
type Fetcher interface {
	// GetMetadata inspects the URL without downloading anything.
	GetMetadata(ctx context.Context, url string) (*data.Metadata, error)
	// Acquire downloads the video behind the URL. The handle's first file is
	// the deliverable video path.
	Acquire(ctx context.Context, url string) (*Handle, error)
	// AcquirePhotoSet downloads the images of a photo slideshow. It returns
	// data.ErrNotSlideshow when the URL does not point at one.
	AcquirePhotoSet(ctx context.Context, url string) (*Handle, error)
}

// PostProcessor transforms acquired files in place. Implementations degrade
// gracefully: Enhance returns the input path unchanged when processing fails.
type PostProcessor interface {
	// Enhance improves the audio track of a video and returns the path to the
	// result, which may be the unmodified input.
	Enhance(ctx context.Context, path string) (string, error)
	// Slideshow assembles the images and optional audio found under dir into
	// a single video and returns its path.
	Slideshow(ctx context.Context, dir string) (string, error)
}
