package status

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"os"
)

// FaviconSize is the required width and height of a server icon in pixels.
const FaviconSize = 64

const faviconPrefix = "data:image/png;base64,"

// LoadFavicon reads a 64x64 PNG and returns it as a data URI.
//
// Parameters:
//   - path: Path to the PNG file
//
// Returns:
//   - The "data:image/png;base64,..." URI
//   - An error if the file cannot be read, is not a PNG or has the wrong size
func LoadFavicon(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read favicon: %w", err)
	}

	return EncodeFavicon(data)
}

// EncodeFavicon validates PNG bytes and returns them as a data URI.
func EncodeFavicon(data []byte) (string, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode favicon: %w", err)
	}

	if cfg.Width != FaviconSize || cfg.Height != FaviconSize {
		return "", fmt.Errorf("favicon must be %dx%d, got %dx%d", FaviconSize, FaviconSize, cfg.Width, cfg.Height)
	}

	return faviconPrefix + base64.StdEncoding.EncodeToString(data), nil
}
