package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"nationsim.io/internal/protocol"
	"nationsim.io/internal/sim/catalogs"
	"nationsim.io/internal/sim/registry"
)

type Server struct {
	reg     *registry.Registry
	catalog *catalogs.Catalog
	log     *log.Logger

	// Commands allowed per connection per second; 0 disables the limit.
	CmdsPerSecond int

	upgrader websocket.Upgrader

	sessions atomic.Int64
}

func NewServer(reg *registry.Registry, cat *catalogs.Catalog, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[ws] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Server{
		reg:           reg,
		catalog:       cat,
		log:           logger,
		CmdsPerSecond: 20,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Sessions is the number of open websocket sessions.
func (s *Server) Sessions() int64 { return s.sessions.Load() }

// session is one websocket connection. Only the reader goroutine touches
// unsubscribe and the rate window.
type session struct {
	id      string
	out     chan []byte
	replies chan []byte

	unsubscribe func()
	rate        rateWindow
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.sessions.Add(1)
		defer s.sessions.Add(-1)
		defer func() {
			if sess.unsubscribe != nil {
				sess.unsubscribe()
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case b = <-sess.replies:
				case b = <-sess.out:
				}
				if b == nil {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			res := s.handleFrame(sess, msg)
			b, err := json.Marshal(res)
			if err != nil {
				s.log.Printf("encode result %s: %v", res.Ref, err)
				continue
			}
			select {
			case sess.replies <- b:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, "bad HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil
	}
	if hello.PlayerName == "" {
		hello.PlayerName = "player"
	}

	sess := &session{
		id:      "s_" + uuid.NewString(),
		out:     make(chan []byte, 8),
		replies: make(chan []byte, 8),
	}
	room := ""
	if hello.Room != "" {
		unsub, err := s.reg.Subscribe(hello.Room, sess.out)
		if err != nil {
			closeWith(conn, "unknown room")
			return nil
		}
		sess.unsubscribe = unsub
		room = hello.Room
	}

	tune := s.reg.Tuning()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		Room:            room,
		Country:         hello.Country,
		Params: protocol.SimParams{
			TickPeriodMs:  tune.TickPeriodMs,
			TicksPerMonth: tune.TicksPerMonth,
			MaxBondAmount: tune.Economy.Debt.MaxBondAmount,
		},
		Catalog: s.catalog.Names(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		if sess.unsubscribe != nil {
			sess.unsubscribe()
		}
		return nil
	}
	s.log.Printf("session %s player=%q room=%q", sess.id, hello.PlayerName, room)
	return sess
}

func (s *Server) handleFrame(sess *session, msg []byte) protocol.ResultMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeCmd {
		return failure("", protocol.ErrProtoBadRequest, "expected CMD")
	}
	var cmd protocol.CmdMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return failure("", protocol.ErrProtoBadRequest, "bad CMD: "+err.Error())
	}
	if cmd.ProtocolVersion != protocol.Version {
		return failure(cmd.Ref, protocol.ErrProtoBadRequest, "bad protocol_version")
	}
	if s.CmdsPerSecond > 0 {
		if ok, wait := sess.rate.allow(time.Now(), time.Second, s.CmdsPerSecond); !ok {
			return failure(cmd.Ref, protocol.ErrRateLimit, "retry in "+wait.Round(time.Millisecond).String())
		}
	}
	if cmd.Op == protocol.OpSubscribe {
		return s.subscribe(sess, cmd)
	}
	return s.Handle(cmd)
}

func (s *Server) subscribe(sess *session, cmd protocol.CmdMsg) protocol.ResultMsg {
	if cmd.Room == "" {
		return failure(cmd.Ref, protocol.ErrBadRequest, "room required")
	}
	unsub, err := s.reg.Subscribe(cmd.Room, sess.out)
	if err != nil {
		return errorResult(cmd.Ref, err)
	}
	if sess.unsubscribe != nil {
		sess.unsubscribe()
	}
	sess.unsubscribe = unsub
	return success(cmd.Ref, map[string]string{"room": cmd.Room})
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}

// rateWindow is a fixed-window counter.
type rateWindow struct {
	start time.Time
	count int
}

func (w *rateWindow) allow(now time.Time, window time.Duration, max int) (bool, time.Duration) {
	if w.start.IsZero() || now.Sub(w.start) >= window {
		w.start = now
		w.count = 0
	}
	if w.count >= max {
		return false, w.start.Add(window).Sub(now)
	}
	w.count++
	return true, 0
}
