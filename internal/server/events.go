package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"labmonitor/internal/models"
)

const eventWriteTimeout = 5 * time.Second

var eventUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := eventUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveEventConnection(conn)
}

func (s *Server) serveEventConnection(conn *websocket.Conn) {
	defer conn.Close()

	events, cancel := s.monitor.Subscribe()
	defer cancel()

	// Send the current tallies immediately so a fresh dashboard does not
	// have to wait for the next probe round.
	summary := s.monitor.Summary()
	initial := models.Event{Kind: models.EventSummary, Summary: &summary, EmittedAt: time.Now().UTC()}
	if err := writeEventPayload(conn, initial); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeEventPayload(conn, event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeEventPayload(conn *websocket.Conn, event models.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(event)
}
