package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/let5sne/mimiclaw/pkg/session"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a silent peer stays alive; pings go out at a
	// third of it so two may be lost before the deadline hits.
	pongWait   = 90 * time.Second
	pingPeriod = 30 * time.Second

	// maxMessageSize caps one incoming frame. PCM arrives in small
	// chunks; anything past this is a broken client.
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (g *Gateway) wsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleDevice)
	return mux
}

// handleDevice owns one device connection: upgrade, session setup, ping
// keep-alive and the read pump. All session mutation happens here, on the
// read goroutine.
func (g *Gateway) handleDevice(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	sender := &wsSender{conn: conn}
	sess := session.New(sender, session.Deps{
		Transcriber: g.pipeline,
		Synth:       g.synth,
		Transcoder:  g.transcoder,
		Pool:        g.pool,
		Metrics:     g.met,
		Log:         g.log,
		Voice:       g.cfg.TTS.Voice,
		Rate:        g.cfg.TTS.Rate,
	})
	defer sess.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := sender.ping(); err != nil {
					return
				}
			case <-stopPing:
				return
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.log.Warn("device connection dropped", "session", sess.ID(), "error", err)
			}
			return
		}
		switch msgType {
		case websocket.TextMessage:
			sess.HandleText(data)
		case websocket.BinaryMessage:
			sess.HandleBinary(data)
		}
	}
}

// wsSender serializes writes to one connection. The session's worker pool
// and synthesis stream write concurrently with the event loop, and
// gorilla connections allow only one writer at a time.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) SendJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *wsSender) SendBinary(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *wsSender) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

var _ session.Sender = (*wsSender)(nil)
