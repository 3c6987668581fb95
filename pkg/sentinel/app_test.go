package sentinel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-sentinel/internal/config"
	"github.com/teslashibe/go-sentinel/pkg/alert"
	"github.com/teslashibe/go-sentinel/pkg/motion"
	"github.com/teslashibe/go-sentinel/pkg/web"
)

var testJPEG = []byte{0xFF, 0xD8, 0xFF, 0xD9}

type testFrame struct{ motion bool }

func (testFrame) Close() error { return nil }

// scriptSource replays a fixed motion script, then reports the camera as
// unavailable forever.
type scriptSource struct {
	mu     sync.Mutex
	script []bool
	pos    int
	calls  int
}

func (s *scriptSource) Next(ctx context.Context) (motion.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.script) {
		return nil, motion.ErrFrameUnavailable
	}
	f := testFrame{motion: s.script[s.pos]}
	s.pos++
	return f, nil
}

func (s *scriptSource) nextCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptSource) done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos >= len(s.script)
}

type testDetector struct{}

func (testDetector) Detect(f motion.Frame) (motion.Detection, error) {
	tf := f.(testFrame)
	det := motion.Detection{Motion: tf.motion, Annotated: testJPEG}
	if tf.motion {
		det.Regions = []motion.Region{{X: 1, Y: 1, Width: 60, Height: 60, Area: 3600}}
	}
	return det, nil
}

func repeat(v bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func concat(parts ...[]bool) []bool {
	var out []bool
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Episode.RetryDelayMS = 1
	cfg.Alert.PollIntervalMS = 5
	cfg.Alert.StopGraceMS = 100
	return &cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startApp initializes and runs an app in the background. The returned
// function cancels Run and shuts the app down.
func startApp(t *testing.T, cfg *config.Config, opts Options) (*App, func()) {
	t.Helper()
	opts.Logger = quietLogger()
	app, err := New(cfg, opts)
	require.NoError(t, err)
	require.NoError(t, app.Init())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Error("Run did not return after cancel")
			}
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			assert.NoError(t, app.Shutdown(sctx))
		})
	}
	t.Cleanup(stop)
	return app, stop
}

func TestApp_EpisodeEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	src := &scriptSource{script: concat(repeat(false, 3), repeat(true, 6), repeat(false, 4))}
	backend := alert.NewMockBackend(20 * time.Millisecond)

	app, stop := startApp(t, cfg, Options{Source: src, Detector: testDetector{}, AlertBackend: backend})

	require.Eventually(t, src.done, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return app.Stats().FramesProcessed == 13 }, 2*time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, uint64(1), app.Episodes())
	assert.Equal(t, 1, backend.Starts())

	state := app.Web().State()
	assert.False(t, state.MotionDetected)
	assert.Equal(t, uint64(1), state.Episodes)
	assert.NotEmpty(t, state.LastEpisode)

	csv, err := os.ReadFile(cfg.EventLogPath())
	require.NoError(t, err)
	assert.Equal(t, "timestamp\n"+state.LastEpisode+"\n", string(csv))

	shots, err := os.ReadDir(cfg.SnapshotPath())
	require.NoError(t, err)
	require.Len(t, shots, 1)
	assert.Equal(t, "motion_"+state.LastEpisode+".jpg", shots[0].Name())

	data, err := os.ReadFile(filepath.Join(cfg.SnapshotPath(), shots[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, testJPEG, data)
}

func TestApp_StoreIndexesSnapshot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.QueueSize = 0
	cfg.Server.Enabled = false
	src := &scriptSource{script: concat(repeat(true, 3), repeat(false, 1))}

	app, stop := startApp(t, cfg, Options{Source: src, Detector: testDetector{}, NoAlert: true})
	require.Eventually(t, src.done, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return app.Episodes() == 1 }, 2*time.Second, 5*time.Millisecond)

	episodes, err := app.Store().List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.NotEmpty(t, episodes[0].ID)
	assert.Contains(t, episodes[0].Snapshot, "motion_")
	stop()
}

func TestApp_MotionStatusEndpoint(t *testing.T) {
	cfg := testConfig(t)
	src := &scriptSource{script: concat(repeat(true, 4), repeat(false, 2), repeat(true, 4))}

	app, stop := startApp(t, cfg, Options{Source: src, Detector: testDetector{}, Silent: true})
	require.Eventually(t, func() bool { return app.Stats().FramesProcessed == 10 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), app.Episodes())

	// Recording is queued; wait for both rows before asking the dashboard.
	require.Eventually(t, func() bool {
		ts, err := app.recorder.Recent(context.Background(), 5)
		return err == nil && len(ts) == 2
	}, 2*time.Second, 5*time.Millisecond)

	resp, err := app.Web().App().Test(httptest.NewRequest(http.MethodGet, "/motion_status", nil))
	require.NoError(t, err)

	var got web.MotionStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, got.MotionDetected)
	assert.Len(t, got.MotionEvents, 2)
	stop()
}

func TestApp_NoAlert(t *testing.T) {
	cfg := testConfig(t)
	src := &scriptSource{script: repeat(true, 5)}

	app, stop := startApp(t, cfg, Options{Source: src, Detector: testDetector{}, NoAlert: true})
	require.Eventually(t, func() bool { return app.Episodes() == 1 }, 2*time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, "disabled", app.Web().State().AlertStatus)
	assert.Equal(t, uint64(0), app.Stats().AlertsStarted)
}

func TestApp_ServesDashboard(t *testing.T) {
	cfg := testConfig(t)
	src := &scriptSource{}

	app, _ := startApp(t, cfg, Options{Source: src, Detector: testDetector{}, NoAlert: true})
	require.NotEmpty(t, app.Addr())

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://" + app.Addr() + "/api/status")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 10*time.Millisecond)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestApp_RunStopsEngineWhenServerStops(t *testing.T) {
	cfg := testConfig(t)
	src := &scriptSource{}

	app, err := New(cfg, Options{Source: src, Detector: testDetector{}, NoAlert: true, Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, app.Init())
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	require.Eventually(t, func() bool { return src.nextCalls() > 3 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		r, err := http.Get("http://" + app.Addr() + "/api/status")
		if err != nil {
			return false
		}
		r.Body.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, app.listener.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrServerStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the dashboard stopped")
	}

	calls := src.nextCalls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, src.nextCalls(), "engine kept reading frames after Run returned")
}

func TestApp_StatusReportsHealth(t *testing.T) {
	cfg := testConfig(t)
	src := &scriptSource{script: concat(repeat(true, 3), repeat(false, 1))}
	backend := alert.NewMockBackend(5 * time.Millisecond)
	backend.FailStart(errors.New("no audio device"))

	app, stop := startApp(t, cfg, Options{Source: src, Detector: testDetector{}, AlertBackend: backend})
	require.Eventually(t, func() bool { return app.Episodes() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		written, _, _ := app.async.Stats()
		return written == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return app.player.Failures() == 1 }, 2*time.Second, 5*time.Millisecond)

	resp, err := app.Web().App().Test(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.NoError(t, err)

	var got web.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.NotNil(t, got.Health)
	assert.Equal(t, uint64(1), got.Health.AlertFailures)
	assert.Equal(t, uint64(2), got.Health.RecordsWritten)
	assert.Zero(t, got.Health.CaptureReads, "injected source has no capture counters")
	stop()
}

func TestNew_SilentNeedsDuration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Alert.SilentMS = 0

	_, err := New(cfg, Options{Silent: true})
	var ce *config.ConfigError
	require.True(t, errors.As(err, &ce), "expected ConfigError, got %v", err)
	assert.Equal(t, "alert.silent_ms", ce.Field)

	_, err = New(cfg, Options{Silent: true, NoAlert: true})
	assert.NoError(t, err)
}

func TestApp_DataDirLock(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Enabled = false

	first, err := New(cfg, Options{Source: &scriptSource{}, Detector: testDetector{}, NoAlert: true, Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, first.Init())

	second, err := New(cfg, Options{Source: &scriptSource{}, Detector: testDetector{}, NoAlert: true, Logger: quietLogger()})
	require.NoError(t, err)
	assert.ErrorIs(t, second.Init(), ErrAlreadyRunning)

	require.NoError(t, first.Shutdown(context.Background()))

	third, err := New(cfg, Options{Source: &scriptSource{}, Detector: testDetector{}, NoAlert: true, Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, third.Init())
	require.NoError(t, third.Shutdown(context.Background()))
}

func TestApp_RunBeforeInit(t *testing.T) {
	app, err := New(testConfig(t), Options{})
	require.NoError(t, err)
	assert.Error(t, app.Run(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Episode.RequiredFrames = 0

	_, err := New(cfg, Options{})
	var ce *config.ConfigError
	assert.True(t, errors.As(err, &ce))
}
