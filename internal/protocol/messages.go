// ABOUTME: Noise control protocol message type definitions
// ABOUTME: Defines the JSON envelope and payloads exchanged on the /control websocket
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version of the control protocol
const Version = 1

// Message types sent by control clients
const (
	TypePanelHello  = "panel/hello"
	TypeNoiseStart  = "noise/start"
	TypeNoiseStop   = "noise/stop"
	TypeNoiseColor  = "noise/color"
	TypeNoiseVolume = "noise/volume"
	TypeNoiseDevice = "noise/device"
	TypeNoiseStatus = "noise/status"
	TypeDeviceList  = "device/list"
)

// Message types sent by the server
const (
	TypeServerHello  = "server/hello"
	TypeNoiseEvent   = "noise/event"
	TypeCommandError = "command/error"
	// TypeNoiseStatus and TypeDeviceList are also server replies
)

// Error codes carried by command/error
const (
	CodeInvalidParameter  = "invalid_parameter"
	CodeDeviceUnavailable = "device_unavailable"
	CodeStreamFault       = "stream_fault"
	CodeUnknownCommand    = "unknown_command"
	CodeInternal          = "internal"
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Envelope is a received message whose payload has not been decoded yet
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (e Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// PanelHello is sent by clients to initiate the handshake
type PanelHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerHello is the server's response to panel/hello
type ServerHello struct {
	ServerID     string `json:"server_id"`
	Name         string `json:"name"`
	Version      int    `json:"version"`
	Software     string `json:"software"`
	Manufacturer string `json:"manufacturer"`
	Status       Status `json:"status"`
}

// Start requests noise/start. Empty fields keep the engine's current selection.
type Start struct {
	Color  string `json:"color,omitempty"`
	Device string `json:"device,omitempty"`
}

// Color requests noise/color
type Color struct {
	Color string `json:"color"`
}

// Volume requests noise/volume
type Volume struct {
	Volume float64 `json:"volume"`
}

// Device requests noise/device
type Device struct {
	Device string `json:"device"`
}

// Status reports the engine state (noise/status)
type Status struct {
	State    string  `json:"state"` // "running" or "stopped"
	Color    string  `json:"color"`
	Volume   float64 `json:"volume"`
	Device   string  `json:"device"`
	Session  string  `json:"session,omitempty"`
	Backend  string  `json:"backend"`
	Blocks   int64   `json:"blocks"`
	Glitches int64   `json:"glitches"`
}

// Event is an engine change pushed to every client (noise/event)
type Event struct {
	Kind    string `json:"kind"`
	Session string `json:"session,omitempty"`
	Time    int64  `json:"time"` // Unix milliseconds
	Error   string `json:"error,omitempty"`
	Status  Status `json:"status"`
}

// OutputDevice describes one output device
type OutputDevice struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// DeviceList answers device/list
type DeviceList struct {
	Backend string         `json:"backend"`
	Devices []OutputDevice `json:"devices"`
}

// CommandError reports a rejected command
type CommandError struct {
	Command string `json:"command"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Command, e.Message, e.Code)
}
