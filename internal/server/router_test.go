package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/world"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/simulation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorld struct {
	mu     sync.Mutex
	cfg    simulation.Config
	frame  *world.Frame
	subs   []chan *world.Frame
	failed error
}

func newFakeWorld() *fakeWorld {
	cfg := simulation.DefaultConfig()
	return &fakeWorld{
		cfg: *cfg,
		frame: &world.Frame{
			RunID:  "run-1",
			Tick:   7,
			Bounds: geometry.Vector3{X: 10, Y: 10},
			Agents: []simulation.AgentState{
				{Index: 0, Position: geometry.Vector3{X: 1}, Velocity: geometry.Vector3{Y: 1}, Heading: geometry.Vector3{Y: 1}},
			},
		},
	}
}

func (f *fakeWorld) Latest() *world.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame
}

func (f *fakeWorld) Config() simulation.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeWorld) ModifyConfig(_ context.Context, fn func(simulation.Config) (*simulation.Config, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next, err := fn(f.cfg)
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if f.failed != nil {
		return f.failed
	}
	if next.Population != f.cfg.Population {
		return fmt.Errorf("%w: have %d, got %d", world.ErrPopulationFixed, f.cfg.Population, next.Population)
	}
	f.cfg = *next
	return nil
}

func (f *fakeWorld) Subscribe(buffer int) (<-chan *world.Frame, func()) {
	ch := make(chan *world.Frame, buffer)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeWorld) publish(fr *world.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = fr
	for _, ch := range f.subs {
		select {
		case ch <- fr:
		default:
		}
	}
}

func (f *fakeWorld) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndSnapshot(t *testing.T) {
	fw := newFakeWorld()
	r := NewRouter(RouterConfig{World: fw})

	rec := do(t, r, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "run-1", health["runId"])

	rec = do(t, r, http.MethodGet, "/api/snapshot", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var frame world.Frame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frame))
	assert.Equal(t, uint64(7), frame.Tick)
	assert.Len(t, frame.Agents, 1)
}

func TestSnapshotBeforeFirstFrame(t *testing.T) {
	fw := newFakeWorld()
	fw.frame = nil
	rec := do(t, NewRouter(RouterConfig{World: fw}), http.MethodGet, "/api/snapshot", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetConfigAndSchema(t *testing.T) {
	r := NewRouter(RouterConfig{World: newFakeWorld()})

	rec := do(t, r, http.MethodGet, "/api/config", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg simulation.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, simulation.DefaultConfig().Population, cfg.Population)

	rec = do(t, r, http.MethodGet, "/api/schema", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "separationWeight")
}

func TestPutConfig(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		check       func(t *testing.T, cfg simulation.Config)
	}{
		{
			name:        "json overlay",
			contentType: "application/json",
			body:        `{"cohesionWeight": 0.5}`,
			wantStatus:  http.StatusOK,
			check: func(t *testing.T, cfg simulation.Config) {
				assert.Equal(t, 0.5, cfg.CohesionWeight)
				assert.Equal(t, simulation.DefaultConfig().AlignmentWeight, cfg.AlignmentWeight)
			},
		},
		{
			name:        "yaml overlay",
			contentType: "application/yaml",
			body:        "boundaryPolicy: destiny_invert\nmaxSpeed: 3\n",
			wantStatus:  http.StatusOK,
			check: func(t *testing.T, cfg simulation.Config) {
				assert.Equal(t, 3.0, cfg.MaxSpeed)
			},
		},
		{
			name:        "unknown key",
			contentType: "application/json",
			body:        `{"gravity": 9.81}`,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "semantic error",
			contentType: "application/json",
			body:        `{"minSpeed": 5, "maxSpeed": 1}`,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "population change",
			contentType: "application/json",
			body:        `{"population": 99}`,
			wantStatus:  http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fw := newFakeWorld()
			r := NewRouter(RouterConfig{World: fw, ConfigWritesPerSecond: 100})
			rec := do(t, r, http.MethodPut, "/api/config", tt.contentType, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.check != nil {
				tt.check(t, fw.Config())
			}
		})
	}
}

func TestPutConfigConcurrentOverlaysCompose(t *testing.T) {
	fw := newFakeWorld()
	r := NewRouter(RouterConfig{World: fw, ConfigWritesPerSecond: 1000})

	bodies := []string{
		`{"separationWeight": 0.11}`,
		`{"alignmentWeight": 0.22}`,
		`{"cohesionWeight": 0.33}`,
		`{"rotationSpeed": 4.4}`,
	}
	var wg sync.WaitGroup
	for _, body := range bodies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := do(t, r, http.MethodPut, "/api/config", "application/json", body)
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}()
	}
	wg.Wait()

	cfg := fw.Config()
	assert.Equal(t, 0.11, cfg.SeparationWeight)
	assert.Equal(t, 0.22, cfg.AlignmentWeight)
	assert.Equal(t, 0.33, cfg.CohesionWeight)
	assert.Equal(t, 4.4, cfg.RotationSpeed)
}

func TestPutConfigInternalError(t *testing.T) {
	fw := newFakeWorld()
	fw.failed = io.ErrUnexpectedEOF
	rec := do(t, NewRouter(RouterConfig{World: fw}), http.MethodPut, "/api/config", "application/json", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPutConfigRateLimited(t *testing.T) {
	r := NewRouter(RouterConfig{World: newFakeWorld(), ConfigWritesPerSecond: 1})

	var limited bool
	for i := 0; i < 5; i++ {
		rec := do(t, r, http.MethodPut, "/api/config", "application/json", `{}`)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			break
		}
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.True(t, limited, "expected a 429 after the burst")
}

func TestPutConfigSlowRateStillAdmits(t *testing.T) {
	r := NewRouter(RouterConfig{World: newFakeWorld(), ConfigWritesPerSecond: 0.3})

	rec := do(t, r, http.MethodPut, "/api/config", "application/json", `{}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, r, http.MethodPut, "/api/config", "application/json", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestConfigLimiterBurst(t *testing.T) {
	for _, tt := range []struct {
		writes float64
		burst  int
	}{
		{0, 10},
		{0.3, 1},
		{0.7, 2},
		{1, 2},
		{2.5, 5},
	} {
		assert.Equal(t, tt.burst, configLimiter(tt.writes).Burst(), "writes=%v", tt.writes)
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "flock_agents 10\n")
	})

	rec := do(t, NewRouter(RouterConfig{World: newFakeWorld(), Metrics: metrics}), http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flock_agents")

	rec = do(t, NewRouter(RouterConfig{World: newFakeWorld()}), http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebsocketStreamsFrames(t *testing.T) {
	fw := newFakeWorld()
	var clients sync.Map
	srv := httptest.NewServer(NewRouter(RouterConfig{
		World:     fw,
		OnClients: func(n int) { clients.Store("n", n) },
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first world.Frame
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, uint64(7), first.Tick)

	require.Eventually(t, func() bool { return fw.subscribers() == 1 }, time.Second, 10*time.Millisecond)
	n, ok := clients.Load("n")
	require.True(t, ok)
	assert.Equal(t, 1, n)

	fw.publish(&world.Frame{RunID: "run-1", Tick: 8})
	var next world.Frame
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, uint64(8), next.Tick)
}
