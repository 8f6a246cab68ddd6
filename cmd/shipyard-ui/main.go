package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/jvreagan/shipyard/pkg/client"
	"github.com/jvreagan/shipyard/pkg/config"
	"github.com/jvreagan/shipyard/pkg/credentials"
	"github.com/jvreagan/shipyard/pkg/logging"
	"github.com/jvreagan/shipyard/pkg/origin"
	"github.com/jvreagan/shipyard/pkg/poller"
)

func main() {
	var (
		configFile string
		addr       string
		outputDir  string
	)
	flags := pflag.NewFlagSet("shipyard-ui", pflag.ExitOnError)
	flags.StringVarP(&configFile, "config", "c", "", "Path to shipyard config file")
	flags.StringVar(&addr, "addr", ":5001", "Listen address")
	flags.StringVar(&outputDir, "output-dir", "generated-configs", "Directory for configs written by POST /api/config")
	flags.Parse(os.Args[1:])

	cfg, err := config.Resolve(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logging.SetLogger(logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := credentials.NewSource(ctx, cfg.Credentials)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring credentials: %v\n", err)
		os.Exit(1)
	}
	c, err := client.New(cfg.API.URL, source, client.WithUserAgent("shipyard-ui"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring client: %v\n", err)
		os.Exit(1)
	}

	srv := newServer(ctx, serverOptions{
		newPoller: func() *poller.Poller {
			return poller.New(c, poller.WithInterval(cfg.Poll.Interval), poller.WithLogger(logging.GetLogger()))
		},
		projects:  c,
		resolver:  origin.New(cfg.ReverseProxy.Host),
		outputDir: outputDir,
	})
	defer srv.close()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logging.Info("starting shipyard-ui", "addr", addr, "api", c.BaseURL())
	fmt.Printf("Starting shipyard-ui server on http://localhost%s\n", addr)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error("server failed", "error", err)
		os.Exit(1)
	}
}
