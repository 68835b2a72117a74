// Command eventhubd is a small bootstrap binary that wires the Event
// Hub to a real Linux kernel: it loads configuration, opens the hub,
// and drives get_events in a loop, printing a decoded trace. It is
// explicitly not the input reader (spec.md §1 calls that out of
// scope); it exists to demonstrate wiring, the way the teacher's own
// cmd/asahi-map/main.go demonstrates its device loop.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/inputhub/eventhub"
	"github.com/inputhub/eventhub/internal/config"
	"github.com/inputhub/eventhub/internal/hostio"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	logLevel := flag.String("log-level", "", "override configured log level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "eventhubd: loading config:", err)
		os.Exit(1)
	}
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(logger)

	hub, err := eventhub.New(hostio.Linux{}, cfg, eventhub.WithLogger(logger))
	if err != nil {
		logger.Error("eventhubd: building hub failed", "error", err)
		os.Exit(1)
	}
	defer hub.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-sigCh
		close(done)
	}()

	buf := make([]eventhub.RawEvent, 64)
	for {
		select {
		case <-done:
			logger.Info("eventhubd: shutting down")
			return
		default:
		}

		n := hub.GetEvents(1000, buf, len(buf))
		for i := 0; i < n; i++ {
			ev := buf[i]
			logger.Debug("eventhubd: event", "device_id", ev.DeviceID, "type", ev.Type, "code", ev.Code, "value", ev.Value)
		}
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
