// Package debug provides global debug logging flags
package debug

import "log/slog"

// Enabled controls whether debug logging is active
var Enabled bool

// Frames controls whether per-frame detection logs are shown (contour areas,
// region counts). Use --debug-frames to enable these very verbose logs
var Frames bool

// Log emits a message only if debug mode is enabled
func Log(msg string, args ...any) {
	if Enabled {
		slog.Info(msg, args...)
	}
}

// FrameLog emits a message only if frame debug mode is enabled
func FrameLog(msg string, args ...any) {
	if Frames {
		slog.Info(msg, args...)
	}
}
