package app

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/session"
	"github.com/MrWong99/voxdesk/internal/wsdevice"
)

const (
	// liveStopTimeout bounds the teardown of a session whose browser went away.
	liveStopTimeout = 5 * time.Second

	// liveQueueSize is how many browser commands may wait behind a blocked one.
	liveQueueSize = 8
)

// queuedCommand is a browser command with the context it runs under.
type queuedCommand struct {
	ctx context.Context
	cmd wsdevice.Command
}

// handleLive upgrades to a WebSocket and runs one session controller for the
// lifetime of the connection. The browser drives it with start, stop and
// dialect commands; every snapshot is pushed back.
func (a *App) handleLive(w http.ResponseWriter, r *http.Request) {
	settings := a.liveConfig()
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: settings.origins,
	})
	if err != nil {
		observe.Logger(r.Context()).Debug("live: upgrade rejected", "err", err)
		return
	}
	defer ws.CloseNow()

	connID := uuid.NewString()
	log := observe.Logger(r.Context()).With("conn_id", connID)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	conn := wsdevice.New(ws, wsdevice.WithLogger(log))

	// The listener must not block; the newest snapshot replaces any unsent one.
	latest := make(chan session.Snapshot, 1)
	publish := func(s session.Snapshot) {
		select {
		case <-latest:
		default:
		}
		latest <- s
	}

	s := settings.session
	ctrl := session.New(conn, a.providers.S2S, a.catalog,
		session.WithListener(publish),
		session.WithLogger(log),
		session.WithMetrics(a.metrics),
		session.WithDialect(s.Dialect),
		session.WithRestartDelay(s.RestartDelay),
		session.WithNudge(s.NudgeEnabled()),
		session.WithScriptFilter(settings.scriptFilter),
		session.WithLevelGain(s.LevelGain),
		session.WithSampleRates(s.InputRate, s.OutputRate),
		session.WithFrameSize(s.FrameSize),
	)

	entry := &liveConn{
		info: SessionInfo{
			ConnID:      connID,
			RemoteAddr:  r.RemoteAddr,
			ConnectedAt: time.Now(),
		},
		ctrl:   ctrl,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if !a.sessions.add(entry) {
		ws.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer a.sessions.remove(connID)
	log.Info("live: connection opened", "remote", r.RemoteAddr)

	var wg sync.WaitGroup
	wg.Go(func() {
		for {
			select {
			case snap := <-latest:
				if err := conn.SendSnapshot(ctx, snap); err != nil {
					log.Debug("live: push snapshot", "err", err)
				}
			case <-ctx.Done():
				return
			}
		}
	})
	wg.Go(func() {
		if err := conn.Run(ctx); err != nil {
			log.Warn("live: connection ended", "err", err)
		}
	})
	publish(ctrl.Snapshot())

	// Commands run in arrival order on one worker. Start and ChangeDialect
	// block on the browser's permission answer, which arrives through Run, so
	// the read loop below only queues them. A stop cancels every start or
	// dialect change queued or running before it.
	queue := make(chan queuedCommand, liveQueueSize)
	opCtx, opCancel := context.WithCancel(ctx)
	worker := make(chan struct{})
	go func() {
		defer close(worker)
		for q := range queue {
			a.runCommand(q.ctx, ctrl, q.cmd, log)
		}
	}()

	for cmd := range conn.Commands() {
		if cmd.Type == wsdevice.TypeStop {
			opCancel()
			opCtx, opCancel = context.WithCancel(ctx)
		}
		select {
		case queue <- queuedCommand{ctx: opCtx, cmd: cmd}:
		default:
			log.Warn("live: command queue full, dropping command", "type", cmd.Type)
		}
	}
	opCancel()
	close(queue)
	<-worker

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), liveStopTimeout)
	defer stopCancel()
	if err := ctrl.Stop(stopCtx); err != nil {
		log.Warn("live: teardown after disconnect", "err", err)
	}
	cancel()
	wg.Wait()
	ws.Close(websocket.StatusNormalClosure, "")
	log.Info("live: connection closed")
}

// runCommand applies one browser command to the connection's controller.
func (a *App) runCommand(ctx context.Context, ctrl *session.Controller, cmd wsdevice.Command, log *slog.Logger) {
	switch cmd.Type {
	case wsdevice.TypeStart:
		if err := ctrl.Start(ctx, cmd.Dialect); err != nil {
			log.Info("live: start failed", "dialect", cmd.Dialect, "err", err)
		}
	case wsdevice.TypeStop:
		if err := ctrl.Stop(ctx); err != nil {
			log.Warn("live: stop", "err", err)
		}
	case wsdevice.TypeDialect:
		if err := ctrl.ChangeDialect(ctx, cmd.Dialect); err != nil {
			log.Info("live: dialect change failed", "dialect", cmd.Dialect, "err", err)
		}
	}
}
