package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wippyai/vm-bridge/vm"
	"github.com/wippyai/vm-bridge/vm/scriptvm"
	"github.com/wippyai/vm-bridge/vm/wasmvm"
)

func main() {
	var (
		scriptFile  = flag.String("script", "", "Path to guest JavaScript file")
		wasmFile    = flag.String("wasm", "", "Path to guest wasm module")
		logFile     = flag.String("log", "", "Write debug logs to this file")
		permTimeout = flag.Duration("perm-timeout", 0, "Permission prompt timeout (0 = 30s default)")
	)
	flag.Parse()

	if (*scriptFile == "") == (*wasmFile == "") {
		fmt.Fprintln(os.Stderr, "Usage: bridge-demo -script <guest.js> [-log file] [-perm-timeout 30s]")
		fmt.Fprintln(os.Stderr, "       bridge-demo -wasm <guest.wasm> [-log file] [-perm-timeout 30s]")
		os.Exit(1)
	}

	logger, err := newLogger(*logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	factory, guestName, err := newFactory(*scriptFile, *wasmFile, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := runDemo(factory, guestName, logger, *permTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds a file-backed debug logger. The TUI owns the
// terminal, so without -log everything is discarded.
func newLogger(path string) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}

func newFactory(scriptFile, wasmFile string, logger *zap.Logger) (vm.Factory, string, error) {
	if scriptFile != "" {
		source, err := os.ReadFile(scriptFile)
		if err != nil {
			return nil, "", fmt.Errorf("read script: %w", err)
		}
		name := filepath.Base(scriptFile)
		return scriptvm.Factory(scriptvm.Config{
			Source: string(source),
			Name:   name,
			Logger: logger,
		}), name, nil
	}

	module, err := os.ReadFile(wasmFile)
	if err != nil {
		return nil, "", fmt.Errorf("read wasm module: %w", err)
	}
	name := filepath.Base(wasmFile)
	return wasmvm.Factory(wasmvm.Config{
		Module: module,
		Name:   name,
		Logger: logger,
	}), name, nil
}
