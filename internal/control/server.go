// ABOUTME: WebSocket control server for the noise engine
// ABOUTME: Accepts panel connections, applies noise commands and broadcasts engine events
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/remrama/smacc-go/internal/protocol"
	"github.com/remrama/smacc-go/internal/version"
	"github.com/remrama/smacc-go/pkg/audio/output"
	"github.com/remrama/smacc-go/pkg/noise"
	"github.com/remrama/smacc-go/pkg/playback"
)

// Path is the websocket endpoint
const Path = "/control"

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	helloTimeout  = 5 * time.Second
	sendBuffer    = 100
)

// Controller is the engine surface the server drives. *playback.Engine
// implements it.
type Controller interface {
	Start(color noise.Color, deviceID string) error
	Stop() error
	SetColor(color noise.Color) error
	SetVolume(volume float64) error
	SetDevice(deviceID string) error
	Status() playback.Status
	Devices() ([]output.Device, error)
	Subscribe() (<-chan playback.Event, func())
}

// Config holds server configuration
type Config struct {
	Port int
	Name string
}

// Server exposes a Controller over websocket
type Server struct {
	config   Config
	serverID string
	ctrl     Controller

	upgrader websocket.Upgrader
	mux      *http.ServeMux

	clients   map[string]*client
	clientsMu sync.RWMutex

	wg sync.WaitGroup
}

// client is one connected control panel
type client struct {
	id       string
	name     string
	conn     *websocket.Conn
	sendChan chan interface{}
	done     chan struct{}
}

// New creates a control server for ctrl
func New(config Config, ctrl Controller) *Server {
	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		ctrl:     ctrl,
		mux:      http.NewServeMux(),
		clients:  make(map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Lab LAN only; browsers on other hosts are logged, not refused
				if origin := r.Header.Get("Origin"); origin != "" {
					log.Printf("[control] Accepting websocket from origin %s", origin)
				}
				return true
			},
		},
	}
	s.mux.HandleFunc(Path, s.handleWebSocket)
	return s
}

// ID returns the server's id
func (s *Server) ID() string {
	return s.serverID
}

// Handler returns the HTTP handler serving the control endpoint
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ClientCount returns the number of connected panels
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// ListenAndServe serves the control endpoint and forwards engine events
// until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.ForwardEvents(ctx)
	}()

	errChan := make(chan error, 1)
	go func() {
		log.Printf("[control] Listening on %s%s", addr, Path)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
	case serverErr = <-errChan:
		log.Printf("[control] HTTP server error: %v", serverErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[control] HTTP server shutdown error: %v", err)
	}
	s.closeClients()
	s.wg.Wait()

	if serverErr != nil {
		return fmt.Errorf("control server failed: %w", serverErr)
	}
	return nil
}

// ForwardEvents broadcasts engine events to every client until ctx is done
func (s *Server) ForwardEvents(ctx context.Context) {
	events, cancel := s.ctrl.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.broadcast(protocol.TypeNoiseEvent, EventPayload(ev))
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[control] Websocket upgrade error: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var env protocol.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		log.Printf("[control] Error reading hello: %v", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	if env.Type != protocol.TypePanelHello {
		log.Printf("[control] Expected %s, got %s", protocol.TypePanelHello, env.Type)
		return
	}
	var hello protocol.PanelHello
	if err := env.Decode(&hello); err != nil || hello.ClientID == "" || hello.Name == "" {
		log.Printf("[control] Rejecting malformed hello: %+v (%v)", hello, err)
		writeDirect(conn, protocol.TypeCommandError, protocol.CommandError{
			Command: protocol.TypePanelHello,
			Code:    protocol.CodeInvalidParameter,
			Message: "hello requires client_id and name",
		})
		return
	}

	c := &client{
		id:       hello.ClientID,
		name:     hello.Name,
		conn:     conn,
		sendChan: make(chan interface{}, sendBuffer),
		done:     make(chan struct{}),
	}

	s.clientsMu.Lock()
	if _, exists := s.clients[c.id]; exists {
		s.clientsMu.Unlock()
		log.Printf("[control] Client ID %s already connected, rejecting duplicate", c.id)
		writeDirect(conn, protocol.TypeCommandError, protocol.CommandError{
			Command: protocol.TypePanelHello,
			Code:    protocol.CodeInvalidParameter,
			Message: "client id already connected",
		})
		return
	}
	s.clients[c.id] = c
	s.clientsMu.Unlock()

	log.Printf("[control] Panel connected: %s (ID: %s)", c.name, c.id)

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c.id)
		s.clientsMu.Unlock()
		close(c.done)
		log.Printf("[control] Panel disconnected: %s", c.name)
	}()

	s.send(c, protocol.TypeServerHello, protocol.ServerHello{
		ServerID:     s.serverID,
		Name:         s.config.Name,
		Version:      protocol.Version,
		Software:     version.String(),
		Manufacturer: version.Manufacturer,
		Status:       StatusPayload(s.ctrl.Status()),
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(c)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[control] Websocket error: %v", err)
			}
			return
		}
		s.handleMessage(c, data)
	}
}

// clientWriter owns all writes to the connection
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("[control] Error writing to %s: %v", c.name, err)
				c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// handleMessage applies one client command and replies to the sender
func (s *Server) handleMessage(c *client, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("[control] Error unmarshaling message from %s: %v", c.name, err)
		s.sendError(c, "", fmt.Errorf("%w: malformed message", playback.ErrInvalidParameter))
		return
	}

	switch env.Type {
	case protocol.TypeNoiseStart:
		var req protocol.Start
		if err := env.Decode(&req); err != nil {
			s.sendError(c, env.Type, fmt.Errorf("%w: %v", playback.ErrInvalidParameter, err))
			return
		}
		color := s.ctrl.Status().Color
		if req.Color != "" {
			var err error
			if color, err = noise.ParseColor(req.Color); err != nil {
				s.sendError(c, env.Type, err)
				return
			}
		}
		s.reply(c, env.Type, s.ctrl.Start(color, req.Device))

	case protocol.TypeNoiseStop:
		s.reply(c, env.Type, s.ctrl.Stop())

	case protocol.TypeNoiseColor:
		var req protocol.Color
		if err := env.Decode(&req); err != nil {
			s.sendError(c, env.Type, fmt.Errorf("%w: %v", playback.ErrInvalidParameter, err))
			return
		}
		color, err := noise.ParseColor(req.Color)
		if err != nil {
			s.sendError(c, env.Type, err)
			return
		}
		s.reply(c, env.Type, s.ctrl.SetColor(color))

	case protocol.TypeNoiseVolume:
		var req protocol.Volume
		if err := env.Decode(&req); err != nil {
			s.sendError(c, env.Type, fmt.Errorf("%w: %v", playback.ErrInvalidParameter, err))
			return
		}
		s.reply(c, env.Type, s.ctrl.SetVolume(req.Volume))

	case protocol.TypeNoiseDevice:
		var req protocol.Device
		if err := env.Decode(&req); err != nil {
			s.sendError(c, env.Type, fmt.Errorf("%w: %v", playback.ErrInvalidParameter, err))
			return
		}
		s.reply(c, env.Type, s.ctrl.SetDevice(req.Device))

	case protocol.TypeNoiseStatus:
		s.reply(c, env.Type, nil)

	case protocol.TypeDeviceList:
		devices, err := s.ctrl.Devices()
		if err != nil {
			s.sendError(c, env.Type, err)
			return
		}
		list := protocol.DeviceList{
			Backend: s.ctrl.Status().Backend,
			Devices: make([]protocol.OutputDevice, 0, len(devices)),
		}
		for _, d := range devices {
			list.Devices = append(list.Devices, protocol.OutputDevice{ID: d.ID, Name: d.Name, Default: d.Default})
		}
		s.send(c, protocol.TypeDeviceList, list)

	default:
		log.Printf("[control] Unknown message type from %s: %s", c.name, env.Type)
		s.send(c, protocol.TypeCommandError, protocol.CommandError{
			Command: env.Type,
			Code:    protocol.CodeUnknownCommand,
			Message: fmt.Sprintf("unknown message type %q", env.Type),
		})
	}
}

// reply answers a command with the resulting status, or an error
func (s *Server) reply(c *client, command string, err error) {
	if err != nil {
		s.sendError(c, command, err)
		return
	}
	s.send(c, protocol.TypeNoiseStatus, StatusPayload(s.ctrl.Status()))
}

func (s *Server) sendError(c *client, command string, err error) {
	log.Printf("[control] %s from %s failed: %v", command, c.name, err)
	s.send(c, protocol.TypeCommandError, protocol.CommandError{
		Command: command,
		Code:    ErrorCode(err),
		Message: err.Error(),
	})
}

// send queues a message for c, dropping it if the client is not keeping up
func (s *Server) send(c *client, msgType string, payload interface{}) {
	select {
	case c.sendChan <- protocol.Message{Type: msgType, Payload: payload}:
	default:
		log.Printf("[control] Send buffer full for %s, dropping %s", c.name, msgType)
	}
}

func (s *Server) broadcast(msgType string, payload interface{}) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, c := range s.clients {
		s.send(c, msgType, payload)
	}
}

func (s *Server) closeClients() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, c := range s.clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
}

// writeDirect writes a message before the writer goroutine exists
func writeDirect(conn *websocket.Conn, msgType string, payload interface{}) {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(protocol.Message{Type: msgType, Payload: payload}); err != nil {
		log.Printf("[control] Error writing %s: %v", msgType, err)
	}
}

// ErrorCode maps engine errors to protocol error codes
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, playback.ErrInvalidParameter):
		return protocol.CodeInvalidParameter
	case errors.Is(err, playback.ErrDeviceUnavailable):
		return protocol.CodeDeviceUnavailable
	case errors.Is(err, playback.ErrStreamFault):
		return protocol.CodeStreamFault
	default:
		return protocol.CodeInternal
	}
}

// StatusPayload converts an engine status to its wire form
func StatusPayload(st playback.Status) protocol.Status {
	return protocol.Status{
		State:    st.State.String(),
		Color:    st.Color.String(),
		Volume:   st.Volume,
		Device:   st.Device,
		Session:  st.Session,
		Backend:  st.Backend,
		Blocks:   st.Blocks,
		Glitches: st.Glitches,
	}
}

// EventPayload converts an engine event to its wire form
func EventPayload(ev playback.Event) protocol.Event {
	out := protocol.Event{
		Kind:    ev.Kind.String(),
		Session: ev.Session,
		Time:    ev.Time.UnixMilli(),
		Status:  StatusPayload(ev.Status),
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	return out
}
