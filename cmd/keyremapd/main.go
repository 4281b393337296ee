// Command keyremapd is the key-remapping daemon: it owns the event loop
// wiring the event source, device manager, configuration registry, virtual
// sink, and IPC server together.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/keyremap/keyremapd/internal/daemonconfig"
	"github.com/keyremap/keyremapd/internal/device"
	"github.com/keyremap/keyremapd/internal/dispatch"
	"github.com/keyremap/keyremapd/internal/evsource"
	"github.com/keyremap/keyremapd/internal/hotplug"
	"github.com/keyremap/keyremapd/internal/ipc"
	"github.com/keyremap/keyremapd/internal/priority"
	"github.com/keyremap/keyremapd/internal/registry"
	"github.com/keyremap/keyremapd/internal/simpleconfig"
	"github.com/keyremap/keyremapd/internal/vsink"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to daemon config file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("keyremapd %s (%s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := daemonconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "keyremapd: loading daemon config:", err)
		os.Exit(1)
	}

	level := parseLevel(*logLevel, cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if cfg.RequestPriority {
		if err := priority.RequestRealtime(); err != nil {
			logger.Warn("could not raise scheduling priority", "error", err)
		}
	}

	sink, err := vsink.New()
	if err != nil {
		logger.Error("creating virtual sink", "error", err)
		os.Exit(1)
	}
	defer sink.Close()

	source := evsource.New()
	defer source.Close()

	d := &dispatch.Dispatcher{Sink: sink, Logger: logger}

	emit := func(code uint16, pressed bool) {
		if err := sink.SendKey(code, pressed); err != nil {
			logger.Warn("sending key to virtual sink", "code", code, "error", err)
		}
	}
	reg := registry.New(simpleconfig.Parser{}, emit, d.BroadcastLayer)
	d.Registry = reg
	d.Reload = func() error { return reg.Load(cfg.ConfigDir) }

	if err := d.Reload(); err != nil {
		logger.Error("loading remap configuration", "dir", cfg.ConfigDir, "error", err)
		os.Exit(1)
	}

	mgr := device.New(reg, source, logger)
	d.Manager = mgr

	devices, err := device.Enumerate()
	if err != nil {
		logger.Error("enumerating input devices", "error", err)
		os.Exit(1)
	}
	for _, dev := range devices {
		mgr.AddDevice(dev)
	}

	mon, err := hotplug.New(source, logger)
	if err != nil {
		logger.Warn("hotplug monitoring unavailable", "error", err)
	} else {
		defer mon.Close()
		go mon.Run()
	}

	ipcSrv, err := ipc.Listen(cfg.SocketPath)
	if err != nil {
		logger.Error("starting ipc server", "error", err)
		os.Exit(1)
	}
	defer ipcSrv.Close()

	ipcSrv.Reload = d.DoReload
	ipcSrv.Bind = d.DoBind
	d.IPC = ipcSrv
	d.IPCFd = ipcSrv.FD()
	source.RegisterFD(ipcSrv.FD())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down")
		source.Close()
	}()

	logger.Info("keyremapd starting", "version", version, "socket", cfg.SocketPath, "config_dir", cfg.ConfigDir)
	if err := source.Next(d.Handle); err != nil {
		logger.Error("event loop exited", "error", err)
		os.Exit(1)
	}
	logger.Info("keyremapd stopped")
}

func parseLevel(flagVal, cfgVal string) slog.Level {
	v := flagVal
	if v == "" {
		v = cfgVal
	}
	switch v {
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
