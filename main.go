// ABOUTME: Entry point for the SMACC noise panel
// ABOUTME: Parses CLI flags and config, then runs the engine with its TUI and control server
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/remrama/smacc-go/internal/app"
	"github.com/remrama/smacc-go/internal/config"
	"github.com/remrama/smacc-go/internal/version"
	"github.com/remrama/smacc-go/pkg/audio/output"
	"github.com/remrama/smacc-go/pkg/noise"
)

var (
	configPath  = flag.String("config", "", "JSON config file; flags override its values")
	backendName = flag.String("backend", "oto", "Audio backend: oto, malgo, portaudio, headless")
	device      = flag.String("device", output.DefaultDevice, "Output device name or index")
	color       = flag.String("color", "white", "Initial noise color: white, pink, brown, blue, violet")
	volume      = flag.Float64("volume", 0.5, "Initial volume (0-1)")
	rate        = flag.Int("rate", 44100, "Output sample rate in Hz")
	port        = flag.Int("port", 8928, "Control websocket port (0 disables remote control)")
	name        = flag.String("name", "", "Panel name (default: hostname-noise)")
	noMDNS      = flag.Bool("no-mdns", false, "Do not advertise the panel via mDNS")
	logFile     = flag.String("log-file", "smacc-noise.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	listDevices = flag.Bool("list-devices", false, "List output devices for the backend and exit")
	autoplay    = flag.Bool("autoplay", false, "Start noise immediately")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	backend, err := output.New(cfg.Backend)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if *listDevices {
		if err := printDevices(backend); err != nil {
			log.Fatalf("Failed to list devices: %v", err)
		}
		return
	}

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	panel, err := app.New(app.Config{Config: cfg, UseTUI: useTUI}, backend)
	if err != nil {
		log.Fatalf("Failed to create panel: %v", err)
	}

	if useTUI {
		// TUI mode: log to file and the TUI log pane
		log.SetOutput(io.MultiWriter(f, panel.LogWriter()))
	} else {
		// Streaming logs mode: log to both stdout and file
		log.SetOutput(io.MultiWriter(os.Stdout, f))
		log.Printf("Starting %s: %s", version.String(), cfg.Name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := panel.Run(ctx); err != nil {
		log.Printf("Panel error: %v", err)
		os.Exit(1)
	}
}

// loadConfig layers explicitly set flags over the config file
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, err
	}

	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = *backendName
		case "device":
			cfg.Device = *device
		case "color":
			c, err := noise.ParseColor(*color)
			if err != nil {
				flagErr = err
				return
			}
			cfg.Color = c
		case "volume":
			cfg.Volume = *volume
		case "rate":
			cfg.SampleRate = *rate
		case "port":
			cfg.Port = *port
		case "name":
			cfg.Name = *name
		case "no-mdns":
			cfg.MDNS = !*noMDNS
		case "log-file":
			cfg.LogFile = *logFile
		case "autoplay":
			cfg.Autoplay = *autoplay
		}
	})
	if flagErr != nil {
		return cfg, flagErr
	}
	return cfg, cfg.Validate()
}

func printDevices(backend output.Backend) error {
	devices, err := backend.Devices()
	if err != nil {
		return err
	}
	fmt.Printf("Output devices (%s):\n", backend.Name())
	for i, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Printf("%s %2d  %s\n", marker, i, d.Name)
	}
	return nil
}
