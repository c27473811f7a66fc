// ABOUTME: Command-line remote for SMACC noise panels
// ABOUTME: Sends one control command over websocket, finding the panel via mDNS if needed
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/remrama/smacc-go/internal/control"
	"github.com/remrama/smacc-go/internal/discovery"
	"github.com/remrama/smacc-go/internal/protocol"
)

var (
	addr    = flag.String("addr", "", "Panel address host:port (default: discover via mDNS)")
	timeout = flag.Duration("timeout", 5*time.Second, "Discovery and request timeout")
	asJSON  = flag.Bool("json", false, "Print replies as JSON")
	verbose = flag.Bool("v", false, "Log connection details")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: noisectl [flags] <command> [args]

Commands:
  start [color] [device]   start noise
  stop                     stop noise
  color <name>             set color (white, pink, brown, blue, violet)
  volume <0-1>             set volume
  device <name|index>      select output device
  status                   show engine status
  devices                  list output devices
  watch                    print engine events until interrupted

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	if !*verbose {
		log.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "noisectl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	serverAddr, err := resolveAddr(ctx)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client, err := control.Dial(dialCtx, control.ClientConfig{
		ServerAddr: serverAddr,
		ClientID:   uuid.New().String(),
		Name:       "noisectl",
	})
	if err != nil {
		return err
	}
	defer client.Close()

	if command == "watch" {
		return watch(ctx, client)
	}

	reqCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var st protocol.Status
	switch command {
	case "start":
		color, device := argOr(args, 0), argOr(args, 1)
		st, err = client.Start(reqCtx, color, device)
	case "stop":
		st, err = client.Stop(reqCtx)
	case "color":
		if len(args) != 1 {
			return fmt.Errorf("color requires a color name")
		}
		st, err = client.SetColor(reqCtx, args[0])
	case "volume":
		if len(args) != 1 {
			return fmt.Errorf("volume requires a value between 0 and 1")
		}
		v, perr := strconv.ParseFloat(args[0], 64)
		if perr != nil {
			return fmt.Errorf("invalid volume %q: %w", args[0], perr)
		}
		st, err = client.SetVolume(reqCtx, v)
	case "device":
		if len(args) != 1 {
			return fmt.Errorf("device requires a device name or index")
		}
		st, err = client.SetDevice(reqCtx, args[0])
	case "status":
		st, err = client.Status(reqCtx)
	case "devices":
		list, derr := client.Devices(reqCtx)
		if derr != nil {
			return derr
		}
		printDevices(list)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		return err
	}
	printStatus(st)
	return nil
}

func resolveAddr(ctx context.Context) (string, error) {
	if *addr != "" {
		return *addr, nil
	}

	findCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	server, err := discovery.Find(findCtx)
	if err != nil {
		return "", fmt.Errorf("discovery failed (use -addr): %w", err)
	}
	if *verbose {
		log.Printf("Discovered %s at %s", server.Name, server.Addr())
	}
	return server.Addr(), nil
}

func watch(ctx context.Context, client *control.Client) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-client.Messages():
			if !ok {
				return control.ErrClosed
			}
			ev, err := control.DecodeEvent(env)
			if err != nil {
				fmt.Fprintf(os.Stderr, "noisectl: bad event: %v\n", err)
				continue
			}
			if *asJSON {
				printJSON(ev)
				continue
			}
			line := fmt.Sprintf("%s  %-14s %s %s vol=%.2f device=%s",
				time.UnixMilli(ev.Time).Format("15:04:05.000"), ev.Kind,
				ev.Status.State, ev.Status.Color, ev.Status.Volume, ev.Status.Device)
			if ev.Error != "" {
				line += "  error: " + ev.Error
			}
			fmt.Println(line)
		}
	}
}

func printStatus(st protocol.Status) {
	if *asJSON {
		printJSON(st)
		return
	}
	fmt.Printf("state:    %s\n", st.State)
	fmt.Printf("color:    %s\n", st.Color)
	fmt.Printf("volume:   %.2f\n", st.Volume)
	fmt.Printf("device:   %s (%s)\n", st.Device, st.Backend)
	if st.Session != "" {
		fmt.Printf("session:  %s\n", st.Session)
	}
	fmt.Printf("blocks:   %d (glitches: %d)\n", st.Blocks, st.Glitches)
}

func printDevices(list protocol.DeviceList) {
	if *asJSON {
		printJSON(list)
		return
	}
	fmt.Printf("Output devices (%s):\n", list.Backend)
	for i, d := range list.Devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Printf("%s %2d  %s\n", marker, i, d.Name)
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "noisectl: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func argOr(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
