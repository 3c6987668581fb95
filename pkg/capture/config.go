// Package capture reads frames from a camera, video file, or network stream.
package capture

import (
	"strconv"
	"strings"
)

// Config holds frame source settings.
type Config struct {
	// Device is a camera index ("0"), a file path, or a stream URL.
	Device string `json:"device"`

	// Resolution and rate hints; 0 keeps the device default.
	Width     int `json:"width"`
	Height    int `json:"height"`
	Framerate int `json:"framerate"`

	// ReopenAfter reopens the device after this many consecutive failed
	// reads. 0 disables reopening.
	ReopenAfter int `json:"reopen_after"`
}

// DefaultConfig returns the first local camera at its native settings.
func DefaultConfig() Config {
	return Config{
		Device:      "0",
		ReopenAfter: 50,
	}
}

// Presets for common cameras.
var presets = map[string]Config{
	"default": DefaultConfig(),
	"low":     {Device: "0", Width: 640, Height: 480, Framerate: 15, ReopenAfter: 50},
	"hd":      {Device: "0", Width: 1280, Height: 720, Framerate: 30, ReopenAfter: 50},
}

// GetPreset returns a named preset, or nil if unknown.
func GetPreset(name string) *Config {
	cfg, ok := presets[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return &cfg
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if strings.TrimSpace(c.Device) == "" {
		errors = append(errors, "device must not be empty")
	}
	if c.Width < 0 || c.Width > 7680 {
		errors = append(errors, "width must be 0 (native) or at most 7680")
	}
	if c.Height < 0 || c.Height > 4320 {
		errors = append(errors, "height must be 0 (native) or at most 4320")
	}
	if (c.Width == 0) != (c.Height == 0) {
		errors = append(errors, "width and height must be set together")
	}
	if c.Framerate < 0 || c.Framerate > 120 {
		errors = append(errors, "framerate must be 0 (native) or between 1 and 120")
	}
	if c.ReopenAfter < 0 {
		errors = append(errors, "reopen_after must not be negative")
	}

	return errors
}

// DeviceIndex returns the camera index if Device is numeric.
func (c *Config) DeviceIndex() (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(c.Device))
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}
