// Package vision turns camera frames into motion detections using OpenCV.
//
// The pipeline for every frame is: grayscale, Gaussian blur, running-average
// background update, absolute difference against the background, binary
// threshold, dilation, external contours. Contours whose area reaches
// MinArea count as motion and are outlined on the colour frame, which is then
// JPEG-encoded for live view and snapshots.
package vision

import "fmt"

// Config holds detection tuning.
type Config struct {
	// BlurSize is the Gaussian kernel size (odd). Default: 21
	BlurSize int `json:"blur_size"`

	// Alpha is the background learning rate in (0, 1]. Default: 0.5
	Alpha float64 `json:"alpha"`

	// DiffThreshold is the per-pixel difference (0-255) above which a pixel
	// is foreground. Default: 25
	DiffThreshold int `json:"diff_threshold"`

	// DilateIterations fills gaps in the foreground mask. Default: 2
	DilateIterations int `json:"dilate_iterations"`

	// MinArea is the smallest contour area, in pixels, that counts as motion.
	// Default: 2500
	MinArea float64 `json:"min_area"`

	// JPEGQuality for annotated frames (1-100). Default: 80
	JPEGQuality int `json:"jpeg_quality"`

	// Annotate draws bounding boxes around motion regions. Default: true
	Annotate bool `json:"annotate"`
}

// DefaultConfig returns the standard detection settings.
func DefaultConfig() Config {
	return Config{
		BlurSize:         21,
		Alpha:            0.5,
		DiffThreshold:    25,
		DilateIterations: 2,
		MinArea:          2500,
		JPEGQuality:      80,
		Annotate:         true,
	}
}

// SensitiveConfig catches smaller and fainter movement.
func SensitiveConfig() Config {
	cfg := DefaultConfig()
	cfg.DiffThreshold = 15
	cfg.MinArea = 800
	return cfg
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.BlurSize < 1 || c.BlurSize%2 == 0 {
		return fmt.Errorf("blur size must be a positive odd number, got %d", c.BlurSize)
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in (0, 1], got %g", c.Alpha)
	}
	if c.DiffThreshold < 0 || c.DiffThreshold > 255 {
		return fmt.Errorf("diff threshold must be 0-255, got %d", c.DiffThreshold)
	}
	if c.DilateIterations < 0 {
		return fmt.Errorf("dilate iterations must not be negative, got %d", c.DilateIterations)
	}
	if c.MinArea < 0 {
		return fmt.Errorf("min area must not be negative, got %g", c.MinArea)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be 1-100, got %d", c.JPEGQuality)
	}
	return nil
}
