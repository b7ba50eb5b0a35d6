package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kestrelnet/captureproxy/admin"
	"github.com/kestrelnet/captureproxy/cert"
	"github.com/kestrelnet/captureproxy/proxy"
	"github.com/kestrelnet/captureproxy/rules"
	"github.com/kestrelnet/captureproxy/version"
)

func main() {
	config := ParseFlags()

	if config.version {
		fmt.Println("captureproxy: " + version.String())
		os.Exit(0)
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(config.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var out *os.File = os.Stdout
	if config.LogFile != "" {
		f, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			slog.Error("failed to open log file", "file", config.LogFile, "error", err)
			os.Exit(1)
		}
		out = f
	}
	var logHandler slog.Handler
	if config.LogJSON {
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))

	storePath := config.DataDir
	if config.RootCertPath != "" {
		storePath = filepath.Dir(config.RootCertPath)
	}
	ca, err := cert.NewSelfSignCA(storePath)
	if err != nil {
		slog.Error("failed to load or generate CA", "error", err)
		os.Exit(1)
	}

	store, err := newRuleStore(config.RulesPath)
	if err != nil {
		slog.Error("failed to load rule store", "error", err)
		os.Exit(1)
	}

	proxyConfig := proxy.Config{
		Port:                   config.Port,
		OnlyLocalhost:          config.OnlyLocalhost,
		Addr:                   config.Addr,
		RootCertPath:           config.RootCertPath,
		RootKeyPath:            config.RootKeyPath,
		CustomCertsPath:        config.CustomCerts,
		RulesPath:              config.RulesPath,
		HTTPSCapture:           config.HTTPSCapture,
		HTTPSCaptureInclude:    config.HTTPSCaptureInclude,
		HTTPSCaptureExclude:    config.HTTPSCaptureExclude,
		EventBufferSize:        config.EventBufferSize,
		RequestTimeout:         config.RequestTimeout,
		ConnectPeekTimeout:     config.ConnectPeekTimeout,
		TLSHandshakeTimeout:    config.TLSHandshakeTimeout,
		UpstreamConnectTimeout: config.UpstreamConnectTimeout,
		LogFilePath:            config.LogFile,
	}

	p, err := proxy.NewProxy(proxyConfig, ca, store)
	if err != nil {
		slog.Error("failed to create proxy", "error", err)
		os.Exit(1)
	}

	p.RegisterAdmin(admin.New(config.AdminPrefix, ca, store, p, p.Events()))

	watchReloadSignal(store)

	slog.Info("captureproxy started", "version", p.Version)
	if err := p.Start(); err != nil {
		slog.Error("proxy exited", "error", err)
		os.Exit(1)
	}
}

// newRuleStore builds a rules.FileStore when rulesPath is set, otherwise an
// empty rules.MemoryStore.
func newRuleStore(rulesPath string) (rules.Store, error) {
	if rulesPath == "" {
		return rules.NewMemoryStore(nil), nil
	}
	return rules.NewFileStore(rulesPath)
}

// watchReloadSignal reloads a rules.FileStore's backing file on SIGHUP, so
// rule edits on disk take effect without restarting the process. No-op for
// any other rules.Store implementation.
func watchReloadSignal(store rules.Store) {
	fs, ok := store.(*rules.FileStore)
	if !ok {
		return
	}

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			if err := fs.Reload(); err != nil {
				slog.Warn("rule file reload failed", "error", err)
			} else {
				slog.Info("rule file reloaded")
			}
		}
	}()
}
