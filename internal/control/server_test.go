// ABOUTME: Tests for the control server and client
// ABOUTME: Runs the websocket endpoint against an engine on the headless backend
package control

import (
	"context"
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/remrama/smacc-go/internal/protocol"
	"github.com/remrama/smacc-go/internal/version"
	"github.com/remrama/smacc-go/pkg/audio/output"
	"github.com/remrama/smacc-go/pkg/playback"
)

type testRig struct {
	headless *output.Headless
	engine   *playback.Engine
	server   *Server
	http     *httptest.Server
}

func newRig(t *testing.T) *testRig {
	t.Helper()

	h := output.NewHeadless("USB Speakers")
	h.Interval = time.Millisecond
	eng, err := playback.New(playback.Config{
		Backend:         h,
		SampleRate:      8000,
		BlockFrames:     1024,
		FramesPerBuffer: 80,
	})
	if err != nil {
		t.Fatalf("playback.New failed: %v", err)
	}

	srv := New(Config{Name: "Test Panel"}, eng)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.ForwardEvents(ctx)
	hs := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		cancel()
		hs.Close()
		eng.Stop()
	})
	return &testRig{headless: h, engine: eng, server: srv, http: hs}
}

func (r *testRig) addr() string {
	return strings.TrimPrefix(r.http.URL, "http://")
}

func (r *testRig) dial(t *testing.T, id string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), ClientConfig{ServerAddr: r.addr(), ClientID: id, Name: "panel " + id})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	var cmdErr *protocol.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected command error %s, got %v", code, err)
	}
	if cmdErr.Code != code {
		t.Errorf("expected code %s, got %s (%s)", code, cmdErr.Code, cmdErr.Message)
	}
}

func waitNoiseEvent(t *testing.T, c *Client, kind string) protocol.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case env, ok := <-c.Messages():
			if !ok {
				t.Fatal("connection closed while waiting for event")
			}
			ev, err := DecodeEvent(env)
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestHandshake(t *testing.T) {
	rig := newRig(t)
	c := rig.dial(t, "a")

	hello := c.Hello()
	if hello.Name != "Test Panel" {
		t.Errorf("expected server name Test Panel, got %q", hello.Name)
	}
	if hello.ServerID != rig.server.ID() {
		t.Errorf("expected server id %s, got %s", rig.server.ID(), hello.ServerID)
	}
	if hello.Version != protocol.Version {
		t.Errorf("expected version %d, got %d", protocol.Version, hello.Version)
	}
	if hello.Software != version.String() || hello.Manufacturer != version.Manufacturer {
		t.Errorf("unexpected software in hello: %q by %q", hello.Software, hello.Manufacturer)
	}
	if hello.Status.State != "stopped" {
		t.Errorf("expected stopped state in hello, got %q", hello.Status.State)
	}
}

func TestHandshakeRequired(t *testing.T) {
	rig := newRig(t)

	u := url.URL{Scheme: "ws", Host: rig.addr(), Path: Path}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.WriteJSON(protocol.Message{Type: protocol.TypeNoiseStop})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected server to close connection without hello")
	}
}

func TestHandshakeRejectsDuplicateID(t *testing.T) {
	rig := newRig(t)
	rig.dial(t, "same")

	_, err := Dial(context.Background(), ClientConfig{ServerAddr: rig.addr(), ClientID: "same", Name: "other"})
	if err == nil {
		t.Fatal("expected duplicate client id to be rejected")
	}
	expectCode(t, err, protocol.CodeInvalidParameter)
}

func TestStartStopOverWebsocket(t *testing.T) {
	rig := newRig(t)
	c := rig.dial(t, "a")
	ctx := testContext(t)

	st, err := c.Start(ctx, "pink", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if st.State != "running" || st.Color != "pink" || st.Session == "" {
		t.Errorf("unexpected status after start: %+v", st)
	}
	if !rig.engine.Running() {
		t.Error("engine not running")
	}

	st, err = c.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if st.State != "stopped" {
		t.Errorf("expected stopped, got %s", st.State)
	}
	if rig.headless.Live() != 0 {
		t.Errorf("expected stream released, live=%d", rig.headless.Live())
	}
}

func TestStartKeepsCurrentColor(t *testing.T) {
	rig := newRig(t)
	c := rig.dial(t, "a")
	ctx := testContext(t)

	if _, err := c.SetColor(ctx, "brown"); err != nil {
		t.Fatalf("SetColor failed: %v", err)
	}
	st, err := c.Start(ctx, "", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if st.Color != "brown" {
		t.Errorf("expected brown, got %s", st.Color)
	}
}

func TestCommandErrors(t *testing.T) {
	rig := newRig(t)
	c := rig.dial(t, "a")
	ctx := testContext(t)

	_, err := c.Start(ctx, "mauve", "")
	expectCode(t, err, protocol.CodeInvalidParameter)

	_, err = c.Start(ctx, "white", "bad-device-id")
	expectCode(t, err, protocol.CodeDeviceUnavailable)

	_, err = c.SetVolume(ctx, 1.5)
	expectCode(t, err, protocol.CodeInvalidParameter)
	if rig.engine.Volume() != playback.DefaultVolume {
		t.Errorf("rejected volume changed engine volume to %v", rig.engine.Volume())
	}

	_, err = c.Request(ctx, "noise/rewind", nil)
	expectCode(t, err, protocol.CodeUnknownCommand)

	_, err = c.Request(ctx, protocol.TypeNoiseVolume, map[string]string{"volume": "loud"})
	expectCode(t, err, protocol.CodeInvalidParameter)
}

func TestSetVolumeAndDevice(t *testing.T) {
	rig := newRig(t)
	c := rig.dial(t, "a")
	ctx := testContext(t)

	st, err := c.SetVolume(ctx, 0.2)
	if err != nil {
		t.Fatalf("SetVolume failed: %v", err)
	}
	if st.Volume != 0.2 {
		t.Errorf("expected volume 0.2, got %v", st.Volume)
	}

	st, err = c.SetDevice(ctx, "USB Speakers")
	if err != nil {
		t.Fatalf("SetDevice failed: %v", err)
	}
	if st.Device != "USB Speakers" {
		t.Errorf("expected USB Speakers, got %q", st.Device)
	}

	st, err = c.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Device != "USB Speakers" || st.Volume != 0.2 || st.Backend != "headless" {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestDeviceList(t *testing.T) {
	rig := newRig(t)
	c := rig.dial(t, "a")

	list, err := c.Devices(testContext(t))
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if list.Backend != "headless" {
		t.Errorf("expected headless backend, got %q", list.Backend)
	}
	if len(list.Devices) != 2 {
		t.Fatalf("expected 2 devices, got %+v", list.Devices)
	}
	if !list.Devices[0].Default || list.Devices[1].ID != "USB Speakers" {
		t.Errorf("unexpected devices: %+v", list.Devices)
	}
}

func TestEventsBroadcast(t *testing.T) {
	rig := newRig(t)
	a := rig.dial(t, "a")
	b := rig.dial(t, "b")

	if _, err := a.SetColor(testContext(t), "violet"); err != nil {
		t.Fatalf("SetColor failed: %v", err)
	}

	ev := waitNoiseEvent(t, b, "color")
	if ev.Status.Color != "violet" {
		t.Errorf("expected violet in event, got %s", ev.Status.Color)
	}
	waitNoiseEvent(t, a, "color")
}

func TestStreamFaultEvent(t *testing.T) {
	rig := newRig(t)
	c := rig.dial(t, "a")

	if _, err := c.Start(testContext(t), "white", ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	rig.headless.Fault(errors.New("device lost"))

	ev := waitNoiseEvent(t, c, "stream_fault")
	if ev.Error == "" {
		t.Error("expected error text in fault event")
	}
	if ev.Status.State != "stopped" {
		t.Errorf("expected stopped state in fault event, got %s", ev.Status.State)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{playback.ErrInvalidParameter, protocol.CodeInvalidParameter},
		{playback.ErrDeviceUnavailable, protocol.CodeDeviceUnavailable},
		{playback.ErrStreamFault, protocol.CodeStreamFault},
		{errors.New("other"), protocol.CodeInternal},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
