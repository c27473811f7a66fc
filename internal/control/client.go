// ABOUTME: WebSocket client for the noise control protocol
// ABOUTME: Handles connection, handshake, request/reply and event delivery
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/remrama/smacc-go/internal/protocol"
)

// ClientConfig holds client configuration
type ClientConfig struct {
	ServerAddr string
	ClientID   string
	Name       string
}

// Client is a control panel connection. Requests are not safe for
// concurrent use; Messages may be read from another goroutine.
type Client struct {
	config ClientConfig
	conn   *websocket.Conn
	hello  protocol.ServerHello

	writeMu  sync.Mutex
	messages chan protocol.Envelope
	replies  chan protocol.Envelope

	closeOnce sync.Once
	done      chan struct{}
}

// ErrClosed is returned once the connection is gone
var ErrClosed = errors.New("control connection closed")

// Dial connects to a control server and performs the handshake
func Dial(ctx context.Context, config ClientConfig) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: config.ServerAddr, Path: Path}
	log.Printf("[control] Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := &Client{
		config:   config,
		conn:     conn,
		messages: make(chan protocol.Envelope, 64),
		replies:  make(chan protocol.Envelope, 1),
		done:     make(chan struct{}),
	}

	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	return c, nil
}

func (c *Client) handshake() error {
	if err := c.Send(protocol.TypePanelHello, protocol.PanelHello{
		ClientID: c.config.ClientID,
		Name:     c.config.Name,
		Version:  protocol.Version,
	}); err != nil {
		return fmt.Errorf("failed to send %s: %w", protocol.TypePanelHello, err)
	}

	c.conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var env protocol.Envelope
	if err := c.conn.ReadJSON(&env); err != nil {
		return fmt.Errorf("failed to read %s: %w", protocol.TypeServerHello, err)
	}
	c.conn.SetReadDeadline(time.Time{})

	switch env.Type {
	case protocol.TypeServerHello:
		return env.Decode(&c.hello)
	case protocol.TypeCommandError:
		cmdErr := &protocol.CommandError{}
		if err := env.Decode(cmdErr); err != nil {
			return err
		}
		return cmdErr
	default:
		return fmt.Errorf("expected %s, got %s", protocol.TypeServerHello, env.Type)
	}
}

// Hello returns the server's handshake reply
func (c *Client) Hello() protocol.ServerHello {
	return c.hello
}

// Messages delivers noise/event pushes. Closed when the connection ends.
func (c *Client) Messages() <-chan protocol.Envelope {
	return c.messages
}

// Send writes one message
func (c *Client) Send(msgType string, payload interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteJSON(protocol.Message{Type: msgType, Payload: payload})
}

// readMessages routes replies and pushes until the connection drops
func (c *Client) readMessages() {
	defer close(c.messages)
	defer c.Close()

	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[control] Read error: %v", err)
				}
			}
			return
		}

		if env.Type == protocol.TypeNoiseEvent {
			select {
			case c.messages <- env:
			default:
				log.Printf("[control] Event buffer full, dropping event")
			}
			continue
		}

		select {
		case c.replies <- env:
		case <-c.done:
			return
		}
	}
}

// Request sends a command and waits for its reply. A command/error reply
// is returned as a *protocol.CommandError.
func (c *Client) Request(ctx context.Context, msgType string, payload interface{}) (protocol.Envelope, error) {
	if err := c.Send(msgType, payload); err != nil {
		return protocol.Envelope{}, err
	}

	select {
	case env := <-c.replies:
		if env.Type == protocol.TypeCommandError {
			cmdErr := &protocol.CommandError{}
			if err := env.Decode(cmdErr); err != nil {
				return env, err
			}
			return env, cmdErr
		}
		return env, nil
	case <-c.done:
		return protocol.Envelope{}, ErrClosed
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	}
}

// statusRequest sends a command that is answered with noise/status
func (c *Client) statusRequest(ctx context.Context, msgType string, payload interface{}) (protocol.Status, error) {
	env, err := c.Request(ctx, msgType, payload)
	if err != nil {
		return protocol.Status{}, err
	}
	if env.Type != protocol.TypeNoiseStatus {
		return protocol.Status{}, fmt.Errorf("expected %s, got %s", protocol.TypeNoiseStatus, env.Type)
	}
	var st protocol.Status
	err = env.Decode(&st)
	return st, err
}

// Start requests noise playback; empty arguments keep the server's selection
func (c *Client) Start(ctx context.Context, color, device string) (protocol.Status, error) {
	return c.statusRequest(ctx, protocol.TypeNoiseStart, protocol.Start{Color: color, Device: device})
}

// Stop requests that playback stop
func (c *Client) Stop(ctx context.Context) (protocol.Status, error) {
	return c.statusRequest(ctx, protocol.TypeNoiseStop, nil)
}

// SetColor changes the noise color
func (c *Client) SetColor(ctx context.Context, color string) (protocol.Status, error) {
	return c.statusRequest(ctx, protocol.TypeNoiseColor, protocol.Color{Color: color})
}

// SetVolume changes the volume
func (c *Client) SetVolume(ctx context.Context, volume float64) (protocol.Status, error) {
	return c.statusRequest(ctx, protocol.TypeNoiseVolume, protocol.Volume{Volume: volume})
}

// SetDevice changes the output device
func (c *Client) SetDevice(ctx context.Context, device string) (protocol.Status, error) {
	return c.statusRequest(ctx, protocol.TypeNoiseDevice, protocol.Device{Device: device})
}

// Status fetches the current status
func (c *Client) Status(ctx context.Context) (protocol.Status, error) {
	return c.statusRequest(ctx, protocol.TypeNoiseStatus, nil)
}

// Devices lists the server's output devices
func (c *Client) Devices(ctx context.Context) (protocol.DeviceList, error) {
	env, err := c.Request(ctx, protocol.TypeDeviceList, nil)
	if err != nil {
		return protocol.DeviceList{}, err
	}
	var list protocol.DeviceList
	if env.Type != protocol.TypeDeviceList {
		return list, fmt.Errorf("expected %s, got %s", protocol.TypeDeviceList, env.Type)
	}
	err = env.Decode(&list)
	return list, err
}

// Close closes the connection
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// DecodeEvent unmarshals a noise/event envelope
func DecodeEvent(env protocol.Envelope) (protocol.Event, error) {
	var ev protocol.Event
	if env.Type != protocol.TypeNoiseEvent {
		return ev, fmt.Errorf("expected %s, got %s", protocol.TypeNoiseEvent, env.Type)
	}
	err := json.Unmarshal(env.Payload, &ev)
	return ev, err
}
