package mediaview

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageDecoder reads the natural size of still images. Sizes are cached per
// reference for the configured TTL.
type ImageDecoder struct {
	cache *cache.Cache
}

// NewImageDecoder creates a decoder caching sizes for ttl.
func NewImageDecoder(ttl time.Duration) *ImageDecoder {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	// No janitor goroutine: expired entries are skipped by Get and purged on Set.
	return &ImageDecoder{cache: cache.New(ttl, 0)}
}

// DecodeSize returns the pixel size of the image at ref.
func (d *ImageDecoder) DecodeSize(ref string) (Size, error) {
	if v, ok := d.cache.Get(ref); ok {
		return v.(Size), nil
	}

	f, err := os.Open(localPath(ref))
	if err != nil {
		return Size{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return Size{}, fmt.Errorf("failed to decode image: %w", err)
	}
	size := Size{Width: float64(cfg.Width), Height: float64(cfg.Height)}

	d.cache.DeleteExpired()
	d.cache.Set(ref, size, cache.DefaultExpiration)
	return size, nil
}

// Cached reports whether a size for ref is cached.
func (d *ImageDecoder) Cached(ref string) bool {
	_, ok := d.cache.Get(ref)
	return ok
}

// ImageResource is a still image. Its natural size is known once decoded.
type ImageResource struct {
	ref string

	mu     sync.Mutex
	size   Size
	closed bool
}

// NewImageResource creates an image resource for ref.
func NewImageResource(ref string) *ImageResource {
	return &ImageResource{ref: ref}
}

func (r *ImageResource) Kind() ResourceKind { return ResourceImage }
func (r *ImageResource) Ref() string        { return r.ref }

func (r *ImageResource) NaturalSize() Size {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// setSize records the decoded size. It reports false once the resource is closed.
func (r *ImageResource) setSize(size Size) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.size = size
	return true
}

func (r *ImageResource) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
