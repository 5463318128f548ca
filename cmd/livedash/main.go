package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/livefir/livedash"
	"github.com/livefir/livedash/internal/config"
	"github.com/livefir/livedash/internal/metrics"
)

// Version information (can be overridden at build time with -ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", config.ConfigFileName, "path to the YAML configuration file")
	printTree := flag.Bool("tree", false, "print the menu tree after startup")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	if err := run(*configPath, *printTree); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, printTree bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	zapLog, err := newZap(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer zapLog.Sync() //nolint:errcheck
	log := zapr.NewLogger(zapLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector, collectors.NewGoCollector())

	transport := livedash.NewServer(livedash.WithServerLogger(log.WithName("socket")))
	dash := livedash.New(transport,
		livedash.WithLogger(log),
		livedash.WithReadOnly(cfg.ReadOnly),
		livedash.WithRemoveStateTimeout(cfg.RemoveStateTimeout),
		livedash.WithReplayDelay(cfg.ReplayDelay),
		livedash.WithMetrics(collector),
		livedash.WithClientListener(func(e livedash.ClientEvent) {
			switch e.Kind {
			case livedash.ClientEventConnected:
				log.Info("Client connected", "client", e.ID, "remote", e.RemoteAddr)
			case livedash.ClientEventDisconnected:
				log.Info("Client disconnected", "client", e.ID)
			case livedash.ClientEventTabChanged:
				log.V(1).Info("Client changed tab", "client", e.ID, "tab", e.Tab.Name)
			}
		}),
	)

	if cfg.Demo.Enabled {
		demo, err := newDemo(dash, cfg.Demo, log.WithName("demo"))
		if err != nil {
			return fmt.Errorf("failed to start demo flow: %w", err)
		}
		defer demo.Close()
		go demo.Run(ctx)
	}

	if printTree {
		if err := dash.WriteTree(os.Stdout); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           routes(cfg, dash, transport, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Serving dashboard", "listen", cfg.Listen, "path", cfg.Path, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	m := collector.GetMetrics()
	log.Info("Shutting down",
		"uptime", m.Uptime.Round(time.Second).String(),
		"messages", m.MessagesReceived,
		"suppressed_pct", collector.GetSuppressionRate())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked socket connections are not closed by Shutdown.
	if err := transport.Close(); err != nil {
		log.V(1).Info("Closing sockets", "error", err.Error())
	}
	return srv.Shutdown(shutdownCtx)
}

func routes(cfg *config.Config, dash *livedash.Dashboard, transport http.Handler, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route(cfg.Path, func(r chi.Router) {
		r.Handle("/socket", transport)
		r.Get("/tree", func(w http.ResponseWriter, _ *http.Request) {
			raw, err := dash.Tree()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(raw)
		})
		r.Get("/tree.txt", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_ = dash.WriteTree(w)
		})
	})
	return r
}

func newZap(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func printVersion() {
	fmt.Printf("livedash version %s (%s)\n", version, commit)
	if info, ok := debug.ReadBuildInfo(); ok {
		fmt.Printf("go: %s\n", info.GoVersion)
	}
}
