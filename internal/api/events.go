package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ridesim/internal/model"
	"ridesim/internal/store"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = 20 * time.Second
)

// streamEvents pushes run events as JSON text frames until the run
// finishes or the client goes away.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.Store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Simulation not found", id, r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get simulation failed", err.Error(), r.URL.Path)
		return
	}
	// Subscribe before the handshake completes so no event published after
	// the client connects is missed.
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	write := func(evt model.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(evt)
	}
	finish := func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	}

	// A run that finished before we subscribed will not publish again.
	if run, err := s.Store.GetRun(r.Context(), id); err == nil && run.Finished() {
		_ = write(runEvent(run))
		finish()
		return
	}

	// Read loop only services control frames and notices disconnects.
	closed := make(chan struct{})
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := write(evt); err != nil {
				return
			}
			if evt.Type == model.EventCompleted || evt.Type == model.EventFailed {
				finish()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
