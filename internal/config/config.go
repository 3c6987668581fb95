// Package config loads sentinel configuration from TOML with environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/teslashibe/go-sentinel/pkg/alert"
	"github.com/teslashibe/go-sentinel/pkg/capture"
	"github.com/teslashibe/go-sentinel/pkg/motion"
	"github.com/teslashibe/go-sentinel/pkg/recorder"
	"github.com/teslashibe/go-sentinel/pkg/vision"
	"github.com/teslashibe/go-sentinel/pkg/web"
)

// Camera selects the frame source.
type Camera struct {
	// Preset names a capture preset ("default", "low", "hd") whose values
	// fill any key left out of this section.
	Preset      string `toml:"preset,omitempty"`
	Device      string `toml:"device"`
	Width       int    `toml:"width"`
	Height      int    `toml:"height"`
	Framerate   int    `toml:"framerate"`
	ReopenAfter int    `toml:"reopen_after"`
}

// Detection tunes the image pipeline.
type Detection struct {
	// Profile is "default" or "sensitive"; explicit keys override it.
	Profile          string  `toml:"profile"`
	BlurSize         int     `toml:"blur_size"`
	Alpha            float64 `toml:"alpha"`
	DiffThreshold    int     `toml:"diff_threshold"`
	DilateIterations int     `toml:"dilate_iterations"`
	MinArea          float64 `toml:"min_area"`
	JPEGQuality      int     `toml:"jpeg_quality"`
	Annotate         bool    `toml:"annotate"`
}

// Episode tunes debounce and retry behaviour.
type Episode struct {
	RequiredFrames int `toml:"required_frames"`
	RetryDelayMS   int `toml:"retry_delay_ms"`
	SkipLogEvery   int `toml:"skip_log_every"`
}

// Alert configures the audible cue.
type Alert struct {
	Enabled        bool   `toml:"enabled"`
	Sound          string `toml:"sound"`
	Silent         bool   `toml:"silent"` // play a silent cue of SilentMS instead of Sound
	SilentMS       int    `toml:"silent_ms"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
	MaxDurationMS  int    `toml:"max_duration_ms"`
	StopGraceMS    int    `toml:"stop_grace_ms"`
}

// Storage locates persisted episodes.
type Storage struct {
	DataDir     string `toml:"data_dir"`
	EventLog    string `toml:"event_log"`
	SnapshotDir string `toml:"snapshot_dir"`
	Database    bool   `toml:"database"`
	QueueSize   int    `toml:"queue_size"`
}

// Server configures the web dashboard.
type Server struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	RecentEvents int    `toml:"recent_events"`
}

// Logging configures log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for the sentinel.
//
// Configuration sections by subsystem:
//   - Camera: frame source device and capture hints
//   - Detection: blur, background, threshold, and area tuning
//   - Episode: debounce threshold and stall retry
//   - Alert: cue file and playback timing
//   - Storage: data directory, CSV log, snapshots, SQLite index
//   - Server: dashboard bind address
//   - Logging: log level and format
type Config struct {
	Camera    Camera    `toml:"camera"`
	Detection Detection `toml:"detection"`
	Episode   Episode   `toml:"episode"`
	Alert     Alert     `toml:"alert"`
	Storage   Storage   `toml:"storage"`
	Server    Server    `toml:"server"`
	Logging   Logging   `toml:"logging"`
}

// Detection profiles.
const (
	ProfileDefault   = "default"
	ProfileSensitive = "sensitive"
)

// Default returns the built-in configuration.
func Default() Config {
	eng := motion.DefaultConfig()
	al := alert.DefaultConfig()

	return Config{
		Camera:    cameraFrom("", capture.DefaultConfig()),
		Detection: detectionFrom(ProfileDefault, vision.DefaultConfig()),
		Episode: Episode{
			RequiredFrames: eng.RequiredFrames,
			RetryDelayMS:   int(eng.RetryDelay / time.Millisecond),
			SkipLogEvery:   eng.SkipLogEvery,
		},
		Alert: Alert{
			Enabled:        true,
			Sound:          "alert_sound.mp3",
			SilentMS:       3000,
			PollIntervalMS: int(al.PollInterval / time.Millisecond),
			MaxDurationMS:  int(al.MaxDuration / time.Millisecond),
			StopGraceMS:    int(al.StopGrace / time.Millisecond),
		},
		Storage: Storage{
			DataDir:     "~/.local/share/sentinel",
			EventLog:    "motion_events.csv",
			SnapshotDir: "screenshots",
			Database:    true,
			QueueSize:   64,
		},
		Server: Server{
			Enabled:      true,
			Addr:         ":8080",
			RecentEvents: web.DefaultRecentEvents,
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
	}
}

func cameraFrom(preset string, cam capture.Config) Camera {
	return Camera{
		Preset:      preset,
		Device:      cam.Device,
		Width:       cam.Width,
		Height:      cam.Height,
		Framerate:   cam.Framerate,
		ReopenAfter: cam.ReopenAfter,
	}
}

func detectionFrom(profile string, det vision.Config) Detection {
	return Detection{
		Profile:          profile,
		BlurSize:         det.BlurSize,
		Alpha:            det.Alpha,
		DiffThreshold:    det.DiffThreshold,
		DilateIterations: det.DilateIterations,
		MinArea:          det.MinArea,
		JPEGQuality:      det.JPEGQuality,
		Annotate:         det.Annotate,
	}
}

// applyProfiles swaps the camera and detection sections for the preset and
// profile they name. It reports whether anything changed, in which case the
// file must be decoded again so its explicit keys win.
func (c *Config) applyProfiles() (bool, error) {
	changed := false
	if name := strings.TrimSpace(c.Camera.Preset); name != "" {
		preset := capture.GetPreset(name)
		if preset == nil {
			return false, &ConfigError{Field: "camera.preset", Message: fmt.Sprintf("unknown camera preset %q", name)}
		}
		c.Camera = cameraFrom(name, *preset)
		changed = true
	}
	switch profile := strings.ToLower(strings.TrimSpace(c.Detection.Profile)); profile {
	case "", ProfileDefault:
	case ProfileSensitive:
		c.Detection = detectionFrom(profile, vision.SensitiveConfig())
		changed = true
	default:
		return false, &ConfigError{Field: "detection.profile", Message: fmt.Sprintf("unknown detection profile %q", c.Detection.Profile)}
	}
	return changed, nil
}

func decode(data []byte, cfg *Config) error {
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/sentinel/config.toml")
}

// Load locates, parses, and validates a configuration file. Environment
// overrides are applied after the file. It returns the config, the resolved
// path, and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		data, err := os.ReadFile(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return nil, "", false, err
		}
		changed, err := cfg.applyProfiles()
		if err != nil {
			return nil, "", false, err
		}
		if changed {
			if err := decode(data, &cfg); err != nil {
				return nil, "", false, err
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("sentinel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	dataDir, err := ExpandPath(strings.TrimSpace(c.Storage.DataDir))
	if err != nil {
		return fmt.Errorf("storage.data_dir: %w", err)
	}
	c.Storage.DataDir = dataDir

	if c.Alert.Sound != "" {
		sound := c.Alert.Sound
		if !strings.HasPrefix(sound, "~") && !filepath.IsAbs(sound) {
			sound = filepath.Join(c.Storage.DataDir, sound)
		}
		if c.Alert.Sound, err = ExpandPath(sound); err != nil {
			return fmt.Errorf("alert.sound: %w", err)
		}
	}
	c.Camera.Preset = strings.ToLower(strings.TrimSpace(c.Camera.Preset))
	c.Detection.Profile = strings.ToLower(strings.TrimSpace(c.Detection.Profile))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return &ConfigError{Field: "storage.data_dir", Message: "storage.data_dir must be set"}
	}
	if c.Storage.EventLog == "" {
		return &ConfigError{Field: "storage.event_log", Message: "storage.event_log must be set"}
	}
	if c.Storage.QueueSize < 0 {
		return &ConfigError{Field: "storage.queue_size", Message: "storage.queue_size must not be negative"}
	}

	if c.Camera.Preset != "" && capture.GetPreset(c.Camera.Preset) == nil {
		return &ConfigError{Field: "camera.preset", Message: fmt.Sprintf("unknown camera preset %q", c.Camera.Preset)}
	}
	switch c.Detection.Profile {
	case "", ProfileDefault, ProfileSensitive:
	default:
		return &ConfigError{Field: "detection.profile", Message: fmt.Sprintf("unknown detection profile %q", c.Detection.Profile)}
	}

	cam := c.CaptureConfig()
	if errs := cam.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "camera", Message: "camera: " + strings.Join(errs, "; ")}
	}
	if err := c.VisionConfig().Validate(); err != nil {
		return &ConfigError{Field: "detection", Message: "detection: " + err.Error()}
	}
	eng := c.EngineConfig()
	if err := eng.Validate(); err != nil {
		return &ConfigError{Field: "episode", Message: "episode: " + err.Error()}
	}
	if c.Alert.Enabled {
		if err := c.AlertConfig().Validate(); err != nil {
			return &ConfigError{Field: "alert", Message: "alert: " + err.Error()}
		}
		if !c.Alert.Silent && c.Alert.Sound == "" {
			return &ConfigError{Field: "alert.sound", Message: "alert.sound is required unless alert.silent is set"}
		}
		if c.Alert.Silent && c.Alert.SilentMS <= 0 {
			return &ConfigError{Field: "alert.silent_ms", Message: "alert.silent_ms must be positive"}
		}
	}
	if c.Server.Enabled && strings.TrimSpace(c.Server.Addr) == "" {
		return &ConfigError{Field: "server.addr", Message: "server.addr must be set when the server is enabled"}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "logging.level", Message: fmt.Sprintf("unknown log level %q", c.Logging.Level)}
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown log format %q", c.Logging.Format)}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// EnsureDirectories creates the data and snapshot directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.DataDir, c.SnapshotPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) inDataDir(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Storage.DataDir, p)
}

// EventLogPath returns the CSV event log path.
func (c *Config) EventLogPath() string {
	return c.inDataDir(c.Storage.EventLog)
}

// SnapshotPath returns the snapshot directory.
func (c *Config) SnapshotPath() string {
	return c.inDataDir(c.Storage.SnapshotDir)
}

// DatabasePath returns the SQLite file path.
func (c *Config) DatabasePath() string {
	return c.inDataDir(recorder.DatabaseFile)
}

// LockPath returns the single-instance lock file path.
func (c *Config) LockPath() string {
	return c.inDataDir("sentinel.lock")
}

// CaptureConfig converts the camera section.
func (c *Config) CaptureConfig() capture.Config {
	return capture.Config{
		Device:      c.Camera.Device,
		Width:       c.Camera.Width,
		Height:      c.Camera.Height,
		Framerate:   c.Camera.Framerate,
		ReopenAfter: c.Camera.ReopenAfter,
	}
}

// VisionConfig converts the detection section.
func (c *Config) VisionConfig() vision.Config {
	return vision.Config{
		BlurSize:         c.Detection.BlurSize,
		Alpha:            c.Detection.Alpha,
		DiffThreshold:    c.Detection.DiffThreshold,
		DilateIterations: c.Detection.DilateIterations,
		MinArea:          c.Detection.MinArea,
		JPEGQuality:      c.Detection.JPEGQuality,
		Annotate:         c.Detection.Annotate,
	}
}

// EngineConfig converts the episode section.
func (c *Config) EngineConfig() motion.Config {
	return motion.Config{
		RequiredFrames: c.Episode.RequiredFrames,
		RetryDelay:     ms(c.Episode.RetryDelayMS),
		SkipLogEvery:   c.Episode.SkipLogEvery,
	}
}

// AlertConfig converts the alert section.
func (c *Config) AlertConfig() alert.Config {
	return alert.Config{
		PollInterval: ms(c.Alert.PollIntervalMS),
		MaxDuration:  ms(c.Alert.MaxDurationMS),
		StopGrace:    ms(c.Alert.StopGraceMS),
	}
}

// WebConfig converts the server section.
func (c *Config) WebConfig() web.Config {
	return web.Config{
		Addr:         c.Server.Addr,
		SnapshotDir:  c.SnapshotPath(),
		RecentEvents: c.Server.RecentEvents,
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Sample renders the default configuration as TOML.
func Sample() ([]byte, error) {
	return toml.Marshal(Default())
}

// Marshal renders c as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// CreateSample writes the default configuration to path.
func CreateSample(path string) error {
	sample, err := Sample()
	if err != nil {
		return fmt.Errorf("render sample config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, sample, 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath resolves a leading ~ and returns an absolute path.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
