package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/cubestream/animation"
	"github.com/c360/cubestream/dispatch"
	"github.com/c360/cubestream/jobs"
	"github.com/c360/cubestream/message"
	"github.com/c360/cubestream/streammux"
)

const pingInterval = 30 * time.Second

// runConnection owns one websocket connection for its whole life: it
// builds the session stack, pumps inbound frames through the dispatcher,
// and tears everything down when the read loop ends.
func (s *Server) runConnection(conn *websocket.Conn) {
	remote := conn.RemoteAddr().String()
	logger := s.logger.With("remote", remote)

	conn.SetReadLimit(s.cfg.MaxMessageSize)

	sink := func(frame message.Frame) error {
		if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return err
		}
		return conn.WriteMessage(websocket.BinaryMessage, frame.Encode())
	}

	mux, err := streammux.New(sink, s.deps.Stream, logger, s.deps.Metrics)
	if err != nil {
		logger.Error("stream mux init failed", "error", err)
		_ = conn.Close()
		return
	}
	if err := mux.Start(); err != nil {
		logger.Error("stream mux start failed", "error", err)
		_ = conn.Close()
		return
	}

	mgr := jobs.NewManager(s.deps.JobWorkers, s.deps.JobQueue, logger, s.deps.Metrics, nil)
	if err := mgr.Start(context.Background()); err != nil {
		logger.Error("job manager start failed", "error", err)
		_ = mux.Stop(time.Second)
		_ = conn.Close()
		return
	}
	anims := animation.NewController(s.deps.Animation, logger, s.deps.Metrics)

	d := dispatch.New(dispatch.Deps{
		Registry:   s.deps.Registry,
		Store:      s.deps.Store,
		Jobs:       mgr,
		Animations: anims,
		Mux:        mux,
		Opener:     s.deps.Opener,
		Logger:     logger,
		Metrics:    s.deps.Metrics,
	})

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordSessionOpened()
	}
	logger.Info("connection opened")

	// Keepalive pings; WriteControl is safe alongside the mux writer.
	pingDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ticker.C:
				deadline := time.Now().Add(s.cfg.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			}
		}
	}()

	s.readLoop(conn, d, logger)

	close(pingDone)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	d.Shutdown(ctx)
	cancel()
	anims.StopAll()
	if err := mgr.Stop(5 * time.Second); err != nil {
		logger.Warn("job manager stop", "error", err)
	}
	if err := mux.Stop(5 * time.Second); err != nil {
		logger.Warn("stream mux stop", "error", err)
	}
	_ = conn.Close()

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordSessionClosed()
	}
	logger.Info("connection closed")
}

func (s *Server) readLoop(conn *websocket.Conn, d *dispatch.Dispatcher, logger *slog.Logger) {
	ctx := context.Background()
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			return
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("read failed", "error", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			logger.Debug("ignoring non-binary message", "type", msgType)
			continue
		}

		frame, err := message.DecodeFrame(data)
		if err != nil {
			logger.Warn("malformed frame", "error", err)
			continue
		}
		d.Dispatch(ctx, frame)
	}
}
