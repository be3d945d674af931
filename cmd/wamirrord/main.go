// wamirrord mirrors a WhatsApp account into a local SQLite snapshot and
// serves it over a local HTTP API.
//
// First run: wamirrord --auth, then scan the QR code with the phone.
// After pairing: wamirrord.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmartins/wamirror/internal/bus"
	"github.com/mmartins/wamirror/internal/daemon"
	"github.com/mmartins/wamirror/internal/logging"
	"github.com/mmartins/wamirror/internal/paths"
	"github.com/mmartins/wamirror/internal/status"
	"github.com/mmartins/wamirror/internal/wa"
	"go.uber.org/fx"
)

const pairingTimeout = 5 * time.Minute

func main() {
	authFlag := flag.Bool("auth", false, "pair this device by scanning a QR code, then exit")
	dataDirFlag := flag.String("data-dir", "", "data directory (default ~/.local/share/wamirror)")
	flag.Parse()

	dataDir := *dataDirFlag
	if dataDir == "" {
		dataDir = paths.DefaultDataDir()
	}

	if *authFlag {
		if err := bootstrap(dataDir); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fx.New(
		daemon.Module(daemon.Params{DataDir: dataDir}),
	).Run()
}

// bootstrap runs the interactive pairing flow without the fx graph: no HTTP
// server, no ingestion, just the adapter and a QR code on the terminal.
func bootstrap(dataDir string) error {
	if err := paths.EnsureDataDir(dataDir); err != nil {
		return err
	}

	logger := logging.NewConsole("warn")
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, pairingTimeout)
	defer cancelTimeout()

	b := bus.New()
	machine := status.NewMachine(b)

	adapter, err := wa.NewAdapter(ctx, dataDir, logger)
	if err != nil {
		return err
	}

	handler := wa.NewEventHandler(b, machine, logger)
	adapter.RegisterEventHandler(handler.Handle)

	supervisor := wa.NewBootstrapSupervisor(adapter, b, machine, logger, dataDir)
	return supervisor.Bootstrap(ctx)
}
