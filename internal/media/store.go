// Package media stores post images under MEDIA_ROOT.
package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"blogicum/internal/models"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	// MaxDimension bounds the longer side of a stored image.
	MaxDimension = 1280
	WebPQuality  = 82
	postsDir     = "posts"

	// MaxSourceSide and MaxSourcePixels bound what is decoded at all; a small
	// compressed file can describe a raster of gigabytes.
	MaxSourceSide   = 8000
	MaxSourcePixels = 40_000_000
)

// Upload is a file received from a form.
type Upload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Store writes re-encoded images below root and builds their public URLs.
type Store struct {
	root               string
	baseURL            string
	maxUploadSizeBytes int64
}

// NewStore returns a Store rooted at root whose files are served under baseURL.
func NewStore(root, baseURL string, maxUploadSizeMB int) *Store {
	if maxUploadSizeMB <= 0 {
		maxUploadSizeMB = 5
	}
	return &Store{
		root:               root,
		baseURL:            "/" + strings.Trim(baseURL, "/"),
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
	}
}

// Root returns the directory images are written to.
func (s *Store) Root() string {
	return s.root
}

// SavePostImage validates, downsizes and re-encodes the upload as WebP.
// It returns the path relative to the media root.
func (s *Store) SavePostImage(in Upload) (string, error) {
	if len(in.Content) == 0 {
		return "", models.NewFieldValidationError(map[string]string{"image": "the submitted file is empty"})
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return "", models.NewFieldValidationError(map[string]string{
			"image": fmt.Sprintf("file too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)),
		})
	}

	detectedType := http.DetectContentType(in.Content)
	if !isAllowedImageMIME(detectedType) {
		return "", models.NewFieldValidationError(map[string]string{"image": "upload a valid image"})
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(in.Content))
	if err != nil {
		return "", models.NewFieldValidationError(map[string]string{"image": "upload a valid image"})
	}
	if err := checkSourceSize(cfg.Width, cfg.Height); err != nil {
		return "", err
	}

	decoded, format, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil || !isSupportedDecodedFormat(format) {
		return "", models.NewFieldValidationError(map[string]string{"image": "upload a valid image"})
	}

	encoded, err := encodeWebP(resizeToFit(decoded, MaxDimension, MaxDimension), WebPQuality)
	if err != nil {
		return "", models.NewInternalError(err)
	}

	rel := path.Join(postsDir, uuid.NewString()+".webp")
	if err := writeBytesToFile(filepath.Join(s.root, filepath.FromSlash(rel)), encoded); err != nil {
		return "", models.NewInternalError(err)
	}
	return rel, nil
}

// Delete removes a stored image. Missing files and empty paths are ignored.
func (s *Store) Delete(rel string) error {
	if rel == "" {
		return nil
	}
	abs, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// URL returns the public URL of a stored image, or "" for no image.
func (s *Store) URL(rel string) string {
	if rel == "" {
		return ""
	}
	return s.baseURL + "/" + strings.TrimLeft(rel, "/")
}

// resolve maps rel into the media root and rejects paths escaping it.
func (s *Store) resolve(rel string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(rel))
	if clean == "/" {
		return "", fmt.Errorf("invalid media path %q", rel)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func checkSourceSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return models.NewFieldValidationError(map[string]string{"image": "upload a valid image"})
	}
	if width > MaxSourceSide || height > MaxSourceSide || int64(width)*int64(height) > MaxSourcePixels {
		return models.NewFieldValidationError(map[string]string{
			"image": fmt.Sprintf("image is too large (max %dx%d pixels)", MaxSourceSide, MaxSourceSide),
		})
	}
	return nil
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scaleW := float64(maxWidth) / float64(w)
	scaleH := float64(maxHeight) / float64(h)
	scale := min(scaleW, scaleH)
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isSupportedDecodedFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "png", "gif", "webp":
		return true
	default:
		return false
	}
}

func writeBytesToFile(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}
