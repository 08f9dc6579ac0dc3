package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"blogicum/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/webp"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestStore_SavePostImage(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, "media/", 5)

	rel, err := s.SavePostImage(Upload{Filename: "big.png", ContentType: "image/png", Content: pngBytes(t, 2560, 640)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rel, "posts/"))
	assert.True(t, strings.HasSuffix(rel, ".webp"))

	f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := webp.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, MaxDimension, cfg.Width)
	assert.Equal(t, 320, cfg.Height)

	assert.Equal(t, "/media/"+rel, s.URL(rel))
	assert.Equal(t, "", s.URL(""))

	require.NoError(t, s.Delete(rel))
	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, s.Delete(rel))
}

func TestStore_SavePostImage_Rejects(t *testing.T) {
	s := NewStore(t.TempDir(), "/media", 1)

	tests := []struct {
		name    string
		content []byte
	}{
		{"Empty", nil},
		{"Not An Image", []byte("plain text, definitely not a picture")},
		{"Too Large", bytes.Repeat([]byte{0}, 1024*1024+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SavePostImage(Upload{Filename: "x", Content: tt.content})
			appErr, ok := models.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, models.CodeValidation, appErr.Code)
			assert.Contains(t, appErr.Fields, "image")
		})
	}
}

func TestStore_SavePostImage_RejectsOversizedRaster(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, "/media", 5)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, MaxSourceSide+1, 2))))
	require.Less(t, buf.Len(), 1024*1024)

	_, err := s.SavePostImage(Upload{Filename: "wide.png", Content: buf.Bytes()})
	appErr, ok := models.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeValidation, appErr.Code)
	assert.Contains(t, appErr.Fields["image"], "too large")

	_, statErr := os.Stat(filepath.Join(root, "posts"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCheckSourceSize(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		ok            bool
	}{
		{"Ordinary photo", 4000, 3000, true},
		{"Longest allowed side", MaxSourceSide, 100, true},
		{"Side too long", MaxSourceSide + 1, 10, false},
		{"Too many pixels", 7000, 7000, false},
		{"Zero", 0, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSourceSize(tt.width, tt.height)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestStore_SmallImageKeepsSize(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, "/media", 5)
	rel, err := s.SavePostImage(Upload{Content: pngBytes(t, 40, 30)})
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := webp.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 30, cfg.Height)
}

func TestStore_DeleteStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(filepath.Dir(root), "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))
	t.Cleanup(func() { _ = os.Remove(outside) })

	s := NewStore(root, "/media", 5)
	require.NoError(t, s.Delete("../keep.txt"))
	_, err := os.Stat(outside)
	assert.NoError(t, err)
	assert.Error(t, s.Delete("/"))
}
