package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lumeworks/lume/internal/api"
	"github.com/lumeworks/lume/internal/config"
	"github.com/lumeworks/lume/internal/core"
	"github.com/lumeworks/lume/internal/effect"
	"github.com/lumeworks/lume/internal/led"
	"github.com/lumeworks/lume/internal/mqtt"
	"github.com/lumeworks/lume/internal/prompt"
	"github.com/lumeworks/lume/internal/protocol/sacn"
)

func main() {
	// ---- Flags (config.yaml can override most) ----
	var (
		count      = flag.Int("count", 0, "number of LEDs (overrides config)")
		fps        = flag.Int("fps", 0, "target frames per second (overrides config)")
		brightness = flag.Int("brightness", -1, "global brightness 0-255 (overrides config)")
		driver     = flag.String("driver", "", "driver: spi | console | sim (overrides config)")
		colorOrder = flag.String("color", "", "LED color order (e.g. GRB, RGB)")
		addr       = flag.String("addr", "", "HTTP listen address (overrides config)")
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		simOnly    = flag.Bool("sim-only", false, "force simulation (no hardware output)")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// ---- Config, flags winning where set ----
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with defaults")
	}
	if *count > 0 {
		cfg.LEDCount = *count
	}
	if *fps > 0 {
		cfg.FPS = *fps
	}
	if *brightness >= 0 && *brightness <= 255 {
		cfg.Brightness = uint8(*brightness)
	}
	if *driver != "" {
		cfg.Driver = *driver
	}
	if *colorOrder != "" {
		cfg.ColorOrder = *colorOrder
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *simOnly {
		cfg.Driver = "sim"
	}
	if cfg.FPS <= 0 {
		cfg.FPS = core.DefaultFPS
	}

	// ---- Output driver, falling back to SIM on hardware failure ----
	var drv led.Driver
	switch cfg.Driver {
	case "sim", "":
		drv = led.NewSim()
	case "console":
		drv = led.NewConsole(cfg.LEDCount)
	case "spi":
		spiDrv, err := led.NewSPI(cfg.SPI.Device, cfg.LEDCount, cfg.ColorOrder, int(cfg.SPI.SpeedHz))
		if err != nil {
			log.Warn().Err(err).Str("dev", cfg.SPI.Device).Msg("SPI init failed; falling back to SIM")
			drv = led.NewSim()
		} else {
			drv = spiDrv
		}
	default:
		log.Warn().Str("driver", cfg.Driver).Msg("unknown driver; using SIM")
		drv = led.NewSim()
	}

	// ---- Effects ----
	reg := effect.NewRegistry()
	if err := effect.RegisterBuiltins(reg); err != nil {
		log.Fatal().Err(err).Msg("effect registration failed")
	}

	// ---- Controller ----
	var server *api.Server
	ctrl, err := core.NewController(log.Logger, reg, core.Options{
		LEDCount:        cfg.LEDCount,
		TargetFPS:       cfg.FPS,
		Brightness:      cfg.Brightness,
		ProtocolTimeout: cfg.Sacn.DataTimeout,
		Driver:          drv,
		OnFrame: func(pix []led.Color) {
			if server != nil {
				server.BroadcastFrame(pix)
			}
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("controller init failed")
	}
	if _, err := ctrl.CreateFullStrip(); err != nil {
		log.Fatal().Err(err).Msg("default segment failed")
	}
	ctrl.Enqueue(core.SetEffect(0, "solid"))

	// ---- sACN receiver ----
	var receiver *sacn.Receiver
	if cfg.Sacn.Enabled {
		receiver = sacn.New(log.Logger, sacn.Config{
			StartUniverse: cfg.Sacn.StartUniverse,
			UniverseCount: cfg.Sacn.UniverseCount,
			Unicast:       cfg.Sacn.Unicast,
			StartChannel:  cfg.Sacn.StartChannel,
			AcceptPreview: cfg.Sacn.AcceptPreview,
			DataTimeout:   cfg.Sacn.DataTimeout,
		})
		if err := receiver.Begin(); err != nil {
			log.Error().Err(err).Msg("sACN start failed; continuing without it")
			receiver = nil
		} else if err := ctrl.RegisterProtocol(receiver); err != nil {
			log.Error().Err(err).Msg("sACN registration failed")
			receiver.Stop()
			receiver = nil
		}
	}

	// ---- MQTT bridge ----
	var bridge *mqtt.Bridge
	if cfg.MQTT.Enabled {
		bridge = mqtt.NewBridge(log.Logger, mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Prefix:   cfg.MQTT.Prefix,
		}, ctrl)
		if err := bridge.Start(); err != nil {
			log.Error().Err(err).Msg("MQTT start failed; continuing without it")
			bridge = nil
		}
	}

	// ---- Prompt client ----
	var promptClient *prompt.Client
	if cfg.Prompt.Enabled && cfg.Prompt.APIKey != "" {
		promptClient = prompt.NewClient(log.Logger, prompt.Config{
			APIKey:   cfg.Prompt.APIKey,
			Model:    cfg.Prompt.Model,
			Endpoint: cfg.Prompt.Endpoint,
		}, ctrl)
	}

	// ---- HTTP API ----
	server = api.New(log.Logger, ctrl, promptClient, cfg, *configPath)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	// ---- Render loop ----
	// The ticker runs faster than the target rate; Tick gates itself.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(cfg.FPS*2))
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				ctrl.Tick(now)
			case <-stop:
				return
			}
		}
	}()

	log.Info().
		Int("leds", cfg.LEDCount).
		Int("fps", cfg.FPS).
		Str("driver", cfg.Driver).
		Msg("lumed running")

	// ---- Graceful shutdown ----
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	close(stop)
	if receiver != nil {
		receiver.Stop()
	}
	if bridge != nil {
		bridge.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
	_ = drv.Close()
}
