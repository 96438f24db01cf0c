// Package favicon loads the server icon advertised in status responses.
package favicon

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// DataURIPrefix is prepended to the base64 image in the status JSON.
const DataURIPrefix = "data:image/png;base64,"

// Size is the icon edge length clients render without scaling.
const Size = 64

// ErrNotPNG is returned for files that are not PNG images.
var ErrNotPNG = errors.New("favicon is not a PNG image")

// Load reads the file at path and returns it as a data URI.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read favicon %s: %w", path, err)
	}
	uri, err := Encode(data)
	if err != nil {
		return "", fmt.Errorf("favicon %s: %w", path, err)
	}
	return uri, nil
}

// Encode validates a PNG image and returns it as a data URI. Images of
// the wrong size are accepted with a warning.
func Encode(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	if !mt.Is("image/png") {
		return "", fmt.Errorf("%w: detected %s", ErrNotPNG, mt.String())
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotPNG, err)
	}
	if cfg.Width != Size || cfg.Height != Size {
		log.Warn().
			Int("width", cfg.Width).
			Int("height", cfg.Height).
			Msgf("favicon is not %dx%d, clients may reject it", Size, Size)
	}

	return DataURIPrefix + base64.StdEncoding.EncodeToString(data), nil
}
