package mediaview

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	path := filepath.Join(t.TempDir(), "still.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestImageDecoder_DecodeSize(t *testing.T) {
	path := writePNG(t, 320, 200)
	d := NewImageDecoder(time.Minute)

	assert.False(t, d.Cached(path))
	size, err := d.DecodeSize(path)
	require.NoError(t, err)
	assert.Equal(t, Size{320, 200}, size)
	assert.True(t, d.Cached(path))

	// Served from cache once the file is gone.
	require.NoError(t, os.Remove(path))
	size, err = d.DecodeSize("file://" + path)
	assert.Error(t, err, "file:// references are distinct cache keys")
	size, err = d.DecodeSize(path)
	require.NoError(t, err)
	assert.Equal(t, Size{320, 200}, size)
}

func TestImageDecoder_Errors(t *testing.T) {
	d := NewImageDecoder(0)

	_, err := d.DecodeSize(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	_, err = d.DecodeSize(garbage)
	assert.ErrorContains(t, err, "failed to decode image")
	assert.False(t, d.Cached(garbage))
}

func TestDefaultLoader_LoadImage(t *testing.T) {
	path := writePNG(t, 64, 48)
	loader := NewDefaultLoader()

	got := make(chan Notification, 1)
	res, err := loader.LoadImage(context.Background(), path, func(n Notification, err error) {
		got <- n
	})
	require.NoError(t, err)
	assert.Equal(t, ResourceImage, res.Kind())
	assert.Equal(t, path, res.Ref())

	select {
	case n := <-got:
		assert.Equal(t, NotifyMetadata, n)
	case <-time.After(waitTimeout):
		t.Fatal("no metadata notification")
	}
	assert.Equal(t, Size{64, 48}, res.NaturalSize())
	assert.NoError(t, res.Close())

	_, err = loader.LoadImage(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyReference)
	_, err = loader.LoadFile(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyReference)
}

func TestImageResource_ClosedIgnoresSize(t *testing.T) {
	r := NewImageResource("x.png")
	require.NoError(t, r.Close())
	assert.False(t, r.setSize(Size{10, 10}))
	assert.Equal(t, Size{}, r.NaturalSize())
}
