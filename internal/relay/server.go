package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/hammamikhairi/readaloud/internal/logger"
	"github.com/hammamikhairi/readaloud/internal/protocol"
)

// Server is the host-side websocket endpoint. Each connection is one UI:
// it sends command envelopes and receives every broadcast on the bus.
type Server struct {
	router *Router
	bus    *Bus
	buffer int
	log    *logger.Logger
}

// NewServer creates the endpoint.
func NewServer(router *Router, bus *Bus, log *logger.Logger) *Server {
	return &Server{
		router: router,
		bus:    bus,
		buffer: 32,
		log:    log.Named("ws"),
	}
}

// Handler returns the HTTP handler that upgrades to a websocket.
func (s *Server) Handler() http.Handler {
	return websocket.Handler(s.serve)
}

func (s *Server) serve(ws *websocket.Conn) {
	defer ws.Close()

	ctx, cancel := context.WithCancel(ws.Request().Context())
	defer cancel()

	peer := ws.Request().RemoteAddr
	s.log.Info("ui attached from %s", peer)
	defer s.log.Info("ui detached from %s", peer)

	updates, unsubscribe := s.bus.Subscribe(s.buffer)
	defer unsubscribe()

	out := &conn{ws: ws}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-updates:
				if !ok {
					return
				}
				if err := out.send(m); err != nil {
					s.log.Debug("push to %s failed: %v", peer, err)
					cancel()
					return
				}
			}
		}
	}()

	for {
		var raw string
		if err := websocket.Message.Receive(ws, &raw); err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("read from %s: %v", peer, err)
			}
			return
		}

		cmd, err := protocol.DecodeCommand([]byte(raw))
		if err != nil {
			s.log.Warn("bad message from %s: %v", peer, err)
			continue
		}

		// Language detection can take seconds; keep reading meanwhile.
		if _, ok := cmd.(protocol.DetectLang); ok {
			go s.route(ctx, out, cmd)
			continue
		}
		s.route(ctx, out, cmd)
	}
}

func (s *Server) route(ctx context.Context, out *conn, cmd protocol.Command) {
	reply, err := s.router.Route(ctx, cmd)
	if err != nil {
		s.log.Warn("%s: %v", cmd.Type(), err)
		return
	}
	if reply == nil {
		return
	}
	if err := out.send(reply); err != nil {
		s.log.Debug("reply %s: %v", reply.Type(), err)
	}
}

// conn serializes writes to one websocket.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.Message.Send(c.ws, string(data))
}
