package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thereceipt/printlink/internal/api"
	"github.com/thereceipt/printlink/internal/config"
	"github.com/thereceipt/printlink/internal/connection"
	"github.com/thereceipt/printlink/internal/logging"
	"github.com/thereceipt/printlink/internal/printer"
	"github.com/thereceipt/printlink/internal/registry"
	"github.com/thereceipt/printlink/internal/selector"
	"github.com/thereceipt/printlink/internal/tui"
)

// Version is set during build via ldflags
var Version = "dev"

type options struct {
	configPath string
	port       string
	logLevel   string
	headless   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "printlink",
		Short: "Choose and test printer connections",
		Long: `printlink builds connection descriptors for label and receipt printers
reachable over TLS, plain TCP, a USB printer driver or direct USB, and
serves the same connection panel over HTTP and WebSocket.`,
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.SetVersionTemplate(`{{printf "printlink version %s\n" .Version}}`)

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./"+config.FileName+")")
	cmd.Flags().StringVarP(&opts.port, "port", "p", "", "API port (overrides config and SERVER_PORT)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "run the API only, without the terminal UI")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.port != "" {
		cfg.Server.Port = opts.port
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	console := logging.NewTUIWriter(200)
	var out io.Writer = os.Stderr
	if !opts.headless {
		out = console
	}
	logging.Init(out, cfg.LogLevel)
	log := logging.For("main")

	regPath := cfg.Registry
	if regPath == "" {
		regPath = config.RegistryPath()
	}
	reg, err := registry.New(regPath)
	if err != nil {
		return fmt.Errorf("failed to open printer registry: %w", err)
	}

	discovery := printer.NewDiscovery(cfg.Discovery.DeviceGlob, cfg.Discovery.SysfsRoot, cfg.Discovery.DisableLibUSB, reg)
	factory := printer.NewFactory(cfg.Dial.Timeout)
	pool := printer.NewConnectionPool(factory)
	defer pool.DisconnectAll()

	var mu sync.Mutex
	sel := selector.New(discovery, cfg.Selector.Options()...)
	if p := sel.USBDriver().Printers(); len(p) > 0 {
		log.Info("driver printers found", "count", len(p))
	}

	srv := api.NewServer(api.Deps{
		Selector: sel,
		Lock:     &mu,
		Opener:   factory,
		Pool:     pool,
		Registry: reg,
	})

	monitor := printer.NewMonitor(discovery, 2*time.Second)
	monitor.OnPrinterAdded(func(p connection.DriverPrinter) {
		srv.BroadcastPrinterAdded(p)
		srv.RefreshPrinters()
	})
	monitor.OnPrinterRemoved(func(p connection.DriverPrinter) {
		srv.BroadcastPrinterRemoved(p)
		srv.RefreshPrinters()
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var app *tui.App
	if !opts.headless {
		app = tui.NewApp(sel, &mu, factory, console, cfg.Server.Addr())
		app.OnChange = func() { go srv.BroadcastState() }
		srv.OnChange = app.Notify
	}

	monitor.Start()
	defer monitor.Stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Run(ctx, cfg.Server.Addr())
	}()
	log.Info("printlink starting", "version", Version, "addr", cfg.Server.Addr())

	if app == nil {
		return serveResult(<-serverErr)
	}

	tuiErr := make(chan error, 1)
	go func() {
		tuiErr <- app.Run(ctx)
	}()

	select {
	case err := <-serverErr:
		stop()
		<-tuiErr
		return serveResult(err)
	case err := <-tuiErr:
		stop()
		if serr := serveResult(<-serverErr); serr != nil && err == nil {
			err = serr
		}
		return err
	}
}

func serveResult(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
