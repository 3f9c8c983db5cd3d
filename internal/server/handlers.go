package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/world"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/simulation"
	"go.uber.org/zap"
)

// maxConfigBody bounds a configuration document.
const maxConfigBody = 64 << 10

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	f := h.world.Latest()
	resp := map[string]any{"status": "ok"}
	if f != nil {
		resp["runId"] = f.RunID
		resp["tick"] = f.Tick
	}
	writeJSON(w, resp)
}

func (h *routerHandlers) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	f := h.world.Latest()
	if f == nil {
		writeError(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, f)
}

func (h *routerHandlers) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.world.Config())
}

func (h *routerHandlers) handleSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	_, _ = io.WriteString(w, simulation.Schema())
}

// handlePutConfig overlays the body on the active configuration and hands
// the result to the world. The change is visible from the next tick. The
// overlay runs under the world's lock, so concurrent partial updates compose.
func (h *routerHandlers) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConfigBody))
	if err != nil {
		writeError(w, "failed to read config: "+err.Error(), http.StatusBadRequest)
		return
	}
	format := requestFormat(r)

	var decodeErr error
	var applied simulation.Config
	err = h.world.ModifyConfig(r.Context(), func(cur simulation.Config) (*simulation.Config, error) {
		next, err := simulation.DecodeConfig(bytes.NewReader(body), format, &cur)
		if err != nil {
			decodeErr = err
			return nil, err
		}
		applied = *next
		return next, nil
	})
	switch {
	case err == nil:
		writeJSON(w, applied)
	case decodeErr != nil:
		writeError(w, decodeErr.Error(), http.StatusBadRequest)
	case errors.Is(err, world.ErrPopulationFixed):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, simulation.ErrInvalidConfig):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("config update failed", zap.Error(err))
		writeError(w, "config update failed", http.StatusInternalServerError)
	}
}

func requestFormat(r *http.Request) simulation.Format {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return simulation.FormatYAML
	default:
		return simulation.FormatJSON
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
