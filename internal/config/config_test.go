package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-sentinel/pkg/motion"
	"github.com/teslashibe/go-sentinel/pkg/vision"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvCamera, EnvPort, EnvDataDir, EnvAlertSound, EnvLogLevel} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.normalize())
	require.NoError(t, cfg.Validate())

	assert.Equal(t, motion.DefaultRequiredFrames, cfg.Episode.RequiredFrames)
	if diff := cmp.Diff(vision.DefaultConfig(), cfg.VisionConfig()); diff != "" {
		t.Errorf("vision config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	dataDir := t.TempDir()
	path := writeConfig(t, `
[camera]
device = "rtsp://cam.local/stream"
width = 640
height = 480

[episode]
required_frames = 3
retry_delay_ms = 20

[alert]
sound = "chime.wav"
max_duration_ms = 5000

[storage]
data_dir = "`+filepath.ToSlash(dataDir)+`"

[server]
addr = "127.0.0.1:9090"

[logging]
level = "DEBUG"
format = "json"
`)

	cfg, resolved, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, path, resolved)

	assert.Equal(t, "rtsp://cam.local/stream", cfg.Camera.Device)
	assert.Equal(t, 640, cfg.CaptureConfig().Width)
	assert.Equal(t, 3, cfg.EngineConfig().RequiredFrames)
	assert.Equal(t, 20*time.Millisecond, cfg.EngineConfig().RetryDelay)
	assert.Equal(t, 5*time.Second, cfg.AlertConfig().MaxDuration)
	assert.Equal(t, filepath.Join(dataDir, "chime.wav"), cfg.Alert.Sound)
	assert.Equal(t, "127.0.0.1:9090", cfg.WebConfig().Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)

	assert.Equal(t, filepath.Join(dataDir, "motion_events.csv"), cfg.EventLogPath())
	assert.Equal(t, filepath.Join(dataDir, "screenshots"), cfg.SnapshotPath())
	assert.Equal(t, filepath.Join(dataDir, "sentinel.db"), cfg.DatabasePath())
	assert.Equal(t, cfg.SnapshotPath(), cfg.WebConfig().SnapshotDir)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDataDir, t.TempDir())

	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, exists, err := Load(path)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, path, resolved)
	assert.Equal(t, Default().Episode, cfg.Episode)
}

func TestLoad_PresetAndProfile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDataDir, t.TempDir())
	path := writeConfig(t, `
[camera]
preset = "HD"
framerate = 10

[detection]
profile = "sensitive"
min_area = 1200
`)

	cfg, _, _, err := Load(path)
	require.NoError(t, err)

	cam := cfg.CaptureConfig()
	assert.Equal(t, "hd", cfg.Camera.Preset)
	assert.Equal(t, 1280, cam.Width)
	assert.Equal(t, 720, cam.Height)
	assert.Equal(t, 10, cam.Framerate, "explicit key overrides the preset")

	want := vision.SensitiveConfig()
	want.MinArea = 1200
	if diff := cmp.Diff(want, cfg.VisionConfig()); diff != "" {
		t.Errorf("vision config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_UnknownPreset(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[camera]\npreset = \"4k\"\n")

	_, _, _, err := Load(path)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce), "expected ConfigError, got %v", err)
	assert.Equal(t, "camera.preset", ce.Field)
}

func TestLoad_UnknownField(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[camera]\nlens = \"wide\"\n")

	_, _, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	dataDir := t.TempDir()
	t.Setenv(EnvCamera, "2")
	t.Setenv(EnvPort, "7000")
	t.Setenv(EnvDataDir, dataDir)
	t.Setenv(EnvAlertSound, "/opt/sounds/siren.mp3")
	t.Setenv(EnvLogLevel, "warn")

	path := writeConfig(t, "[camera]\ndevice = \"1\"\n")
	cfg, _, _, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "2", cfg.Camera.Device)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, dataDir, cfg.Storage.DataDir)
	assert.Equal(t, filepath.Clean("/opt/sounds/siren.mp3"), cfg.Alert.Sound)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero required frames", func(c *Config) { c.Episode.RequiredFrames = 0 }, "episode"},
		{"even blur", func(c *Config) { c.Detection.BlurSize = 20 }, "detection"},
		{"alpha out of range", func(c *Config) { c.Detection.Alpha = 1.5 }, "detection"},
		{"negative reopen", func(c *Config) { c.Camera.ReopenAfter = -1 }, "camera"},
		{"no sound", func(c *Config) { c.Alert.Sound = "" }, "alert.sound"},
		{"silent without duration", func(c *Config) { c.Alert.Silent = true; c.Alert.SilentMS = 0 }, "alert.silent_ms"},
		{"bad alert timing", func(c *Config) { c.Alert.MaxDurationMS = 10 }, "alert"},
		{"empty addr", func(c *Config) { c.Server.Addr = " " }, "server.addr"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"negative queue", func(c *Config) { c.Storage.QueueSize = -1 }, "storage.queue_size"},
		{"unknown preset", func(c *Config) { c.Camera.Preset = "4k" }, "camera.preset"},
		{"unknown profile", func(c *Config) { c.Detection.Profile = "paranoid" }, "detection.profile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Storage.DataDir = t.TempDir()
			tt.mutate(&cfg)

			err := cfg.Validate()
			var ce *ConfigError
			require.True(t, errors.As(err, &ce), "expected ConfigError, got %v", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestValidate_DisabledSectionsSkipChecks(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Alert.Enabled = false
	cfg.Alert.Sound = ""
	cfg.Server.Enabled = false
	cfg.Server.Addr = ""

	assert.NoError(t, cfg.Validate())
}

func TestCreateSampleRoundTrip(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDataDir, t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, CreateSample(path))

	cfg, _, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, Default().Detection, cfg.Detection)
	assert.Equal(t, Default().Alert.MaxDurationMS, cfg.Alert.MaxDurationMS)
}

func TestEnsureDirectories(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = filepath.Join(t.TempDir(), "data")
	require.NoError(t, cfg.EnsureDirectories())

	info, err := os.Stat(cfg.SnapshotPath())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/sentinel")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "sentinel"), got)

	got, err = ExpandPath("")
	require.NoError(t, err)
	assert.Empty(t, got)
}
