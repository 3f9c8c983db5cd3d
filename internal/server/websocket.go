package server

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = pongWait * 9 / 10
	frameBuffer    = 4
	maxClientFrame = 1024
)

// streamer pushes every published frame to websocket clients as JSON.
// Clients that cannot keep up skip frames.
type streamer struct {
	world     WorldInterface
	logger    *zap.Logger
	upgrader  websocket.Upgrader
	clients   atomic.Int64
	onClients func(int)
}

func newStreamer(w WorldInterface, logger *zap.Logger, onClients func(int)) *streamer {
	return &streamer{
		world:  w,
		logger: logger,
		// nil CheckOrigin keeps gorilla's same-origin policy
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 << 10,
		},
		onClients: onClients,
	}
}

func (s *streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.track(1)
	defer s.track(-1)
	defer conn.Close()

	frames, cancel := s.world.Subscribe(frameBuffer)
	defer cancel()

	// Reader: only control frames are expected, it detects the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxClientFrame)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// the current frame first so clients draw immediately
	if f := s.world.Latest(); f != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(f); err != nil {
			return
		}
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case f, ok := <-frames:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "simulation stopped"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *streamer) track(delta int64) {
	n := s.clients.Add(delta)
	s.logger.Info("websocket clients", zap.Int64("count", n))
	if s.onClients != nil {
		s.onClients(int(n))
	}
}
