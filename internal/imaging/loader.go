package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// ImageInfo contains metadata about an image file.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the decoded format: "png", "jpeg", "gif", "tiff", "bmp"
	// or "webp". Detection is based on file contents, not the extension.
	Format string `json:"format"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// Load decodes the image at path, applying EXIF orientation for JPEGs.
//
// # Errors
//
//   - Returns error if the file does not exist or cannot be read
//   - Returns error if the contents are not a supported image format
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Info reads the image header at path without decoding pixel data.
func Info(path string) (*ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return &ImageInfo{
		Width:         cfg.Width,
		Height:        cfg.Height,
		Format:        format,
		FileSizeBytes: stat.Size(),
	}, nil
}

// ForPDF returns a path to an encoding PDF composition can embed directly:
// the original for PNG and JPEG, otherwise a PNG written into dir. The
// returned format is "PNG" or "JPG" as fpdf expects.
func ForPDF(path, dir string) (string, string, error) {
	info, err := Info(path)
	if err != nil {
		return "", "", err
	}
	switch info.Format {
	case "jpeg":
		return path, "JPG", nil
	case "png":
		return path, "PNG", nil
	}
	img, err := Load(path)
	if err != nil {
		return "", "", err
	}
	base := filepath.Base(path)
	out := filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+"-"+info.Format+".png")
	if err := imaging.Save(img, out); err != nil {
		return "", "", fmt.Errorf("failed to re-encode %s: %w", info.Format, err)
	}
	return out, "PNG", nil
}

// Save encodes img to path in format ("png", "jpeg", "tiff", "gif",
// "bmp"); an empty format is inferred from the extension.
func Save(img image.Image, path, format string) error {
	if format == "" {
		return imaging.Save(img, path)
	}
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := imaging.Encode(out, img, f, imaging.JPEGQuality(90)); err != nil {
		out.Close()
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return out.Close()
}

// ParseFormat maps a format token to an imaging.Format.
func ParseFormat(format string) (imaging.Format, error) {
	f, err := imaging.FormatFromExtension(strings.TrimPrefix(strings.ToLower(format), "."))
	if err != nil {
		return 0, fmt.Errorf("unsupported image format %q", format)
	}
	return f, nil
}

// FitWidth scales img to width while keeping the aspect ratio. A zero or
// matching width returns img unchanged.
func FitWidth(img image.Image, width int) image.Image {
	if width <= 0 || img.Bounds().Dx() == width {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}
