package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firemon-dev/firemon/internal/accum"
	"github.com/firemon-dev/firemon/internal/bell"
	"github.com/firemon-dev/firemon/internal/cache"
	"github.com/firemon-dev/firemon/internal/config"
	"github.com/firemon-dev/firemon/internal/frame"
	"github.com/firemon-dev/firemon/internal/log"
	"github.com/firemon-dev/firemon/internal/status"
	"github.com/firemon-dev/firemon/internal/store"
	"github.com/firemon-dev/firemon/internal/transport"
	"github.com/firemon-dev/firemon/internal/types"
)

func main() {
	configFile := flag.String("config", "config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewLogger(cfg.Log)
	logger.Info("Starting firemon for panel %q (%d modules)", cfg.Panel.Name, cfg.Panel.Devices)

	decoder := frame.NewDecoder(logger)
	extractor := status.NewExtractor(logger)
	accumulator := accum.New(logger)
	bells := bell.New(logger, time.Duration(cfg.Bell.SilenceWindow)*time.Second)
	st := store.New(logger, extractor, accumulator, bells)

	sink := func(data []byte) {
		for _, f := range decoder.Feed(data) {
			st.Apply(f)
		}
	}

	local := transport.NewLocal(logger, cfg.Local.Host, cfg.Local.Port)
	cloud := transport.NewCloud(logger, cfg.Cloud, cfg.Panel.Name)
	arbiter := transport.NewArbiter(logger, st, sink, decoder.Reset, local, cloud)

	mode, err := types.ParseTransportMode(cfg.Transport)
	if err != nil {
		logger.Error("Invalid transport in config: %v", err)
		os.Exit(1)
	}

	// Restore the operator's last explicit control choices.
	localHost, localPort := cfg.Local.Host, cfg.Local.Port
	if saved, err := cache.Load(); err != nil {
		logger.Warn("Failed to load saved state: %v", err)
	} else if saved != nil {
		if m, err := types.ParseTransportMode(saved.Transport); err == nil {
			mode = m
		}
		if saved.LocalHost != "" {
			localHost, localPort = saved.LocalHost, saved.LocalPort
			local.SetEndpoint(localHost, localPort)
		}
		st.SetAccumulationMode(saved.Accumulation)
		logger.Info("Restored saved state: transport=%s accumulation=%v", mode, saved.Accumulation)
	}

	// Log headline status transitions for the operator.
	lastText := types.StatusNormal
	unsub := st.Subscribe(func() {
		if text := st.StatusText(); text != lastText {
			lastText = text
			logger.Panel("System status: %s (%s)", text, st.ConnectionDisplay())
		}
	})
	defer unsub()

	// A failed initial connect is surfaced as transport state, not a
	// fatal error; the operator can retry or switch.
	if err := arbiter.Start(mode); err != nil {
		logger.Error("Failed to start %s transport: %v", mode, err)
	}

	if cfg.Metrics != "" {
		go serveControl(cfg.Metrics, logger, st, arbiter, localHost, localPort)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	arbiter.Stop()
}
