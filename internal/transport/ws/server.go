package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"plaza.gg/internal/moderation"
	"plaza.gg/internal/protocol"
	"plaza.gg/internal/sim/world"
)

type Config struct {
	RequestsPerSec float64
	Burst          int
}

type Server struct {
	world *world.World
	mod   moderation.Checker
	cfg   Config
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, mod moderation.Checker, cfg Config, logger *log.Logger) *Server {
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 25
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 50
	}
	return &Server{
		world: w,
		mod:   mod,
		cfg:   cfg,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		limiter := rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSec), s.cfg.Burst)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || !protocol.IsRequest(base.Type) {
				continue
			}
			var req protocol.Request
			if err := json.Unmarshal(msg, &req); err != nil {
				continue
			}
			if req.ProtocolVersion != "" && req.ProtocolVersion != protocol.Version {
				continue
			}
			if !limiter.Allow() {
				// All post-handshake writes go through the writer goroutine.
				if req.ID != "" {
					enqueueJSON(out, protocol.AckMsg{
						Type:            protocol.TypeAck,
						ProtocolVersion: protocol.Version,
						Ref:             req.ID,
						Code:            protocol.ErrRateLimit,
						Message:         "too many requests",
					})
				}
				continue
			}

			// Name moderation happens here, off the world loop. A rejection
			// reaches only this connection; the session's name stays unset.
			if req.Type == protocol.TypeSetName {
				res := s.mod.CheckName(ctx, req.Name)
				if !res.Accepted {
					enqueueJSON(out, protocol.Event{
						"type":   protocol.EvNameError,
						"reason": res.Reason,
					})
					continue
				}
				req.Name = strings.TrimSpace(req.Name)
			}

			s.world.Inbox() <- world.Envelope{SessionID: sessionID, Req: req}
		}

		// Cleanup.
		s.world.Leave() <- sessionID
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}

	// Soft device identity: trust the claimed id, mint one when absent.
	deviceID := strings.TrimSpace(hello.DeviceID)
	if deviceID == "" {
		deviceID = "d_" + uuid.NewString()
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 32
	}
	if maxQ > 256 {
		maxQ = 256
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{DeviceID: deviceID, Out: out, Resp: respCh}
	resp := <-respCh
	if resp.Welcome.SessionID == "" {
		return "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.world.Leave() <- resp.Welcome.SessionID
		return "", nil
	}
	return resp.Welcome.SessionID, out
}

func enqueueJSON(out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
