package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/tinyproxy/config"
	"github.com/angeloszaimis/tinyproxy/internal/handler"
	"github.com/angeloszaimis/tinyproxy/internal/httpserver"
	"github.com/angeloszaimis/tinyproxy/internal/metrics"
	"github.com/angeloszaimis/tinyproxy/internal/reverse"
	"github.com/angeloszaimis/tinyproxy/internal/sock"
	"github.com/angeloszaimis/tinyproxy/pkg/logger"
)

const metricsBufferSize = 1000

func main() {
	flags := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to the configuration file")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("tinyproxy stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	registry := buildRegistry(cfg.Reverse.Paths, log)
	engine := reverse.NewEngine(registry, reverse.Options{
		ReverseOnly: cfg.Reverse.Only,
		MagicCookie: cfg.Reverse.Magic,
		CookieName:  cfg.Reverse.CookieName,
	}, log)

	establisher := sock.New(sock.Config{
		BindAddress: cfg.Server.Bind,
		ListenIP:    cfg.Server.Listen,
		Logger:      log,
	})

	ln, err := listen(establisher, cfg.Server.Port)
	if err != nil {
		return fmt.Errorf("unable to create listening socket: %w", err)
	}

	collector := metrics.NewCollector(metricsBufferSize, log)
	proxyHandler := handler.NewProxyHandler(log, engine, establisher, collector)

	proxySrv, err := httpserver.NewWithListener(ln, proxyHandler)
	if err != nil {
		ln.Close()
		return err
	}
	proxySrv.SetConnState(proxyHandler.ConnState)

	servers := []*httpserver.Server{proxySrv}

	if cfg.Admin.Address != "" {
		router, err := setupRouter(collector)
		if err != nil {
			ln.Close()
			return err
		}
		adminSrv, err := httpserver.New(cfg.Admin.Address, router)
		if err != nil {
			ln.Close()
			return err
		}
		servers = append(servers, adminSrv)
	}

	g, gctx := errgroup.WithContext(ctx)
	collector.Start(gctx)

	for _, srv := range servers {
		log.Info("Listening", slog.String("addr", srv.Addr()))
		g.Go(srv.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(context.Background()); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func buildRegistry(paths []config.ReversePathConfig, log *slog.Logger) *reverse.Registry {
	registry := reverse.NewRegistry(log)
	for _, p := range paths {
		registry.Add(p.Path, p.URL)
	}
	return registry
}

func listen(establisher *sock.Establisher, port int) (net.Listener, error) {
	fd, _, err := establisher.ListenSocket(port)
	if err != nil {
		return nil, err
	}
	return sock.FileListener(fd)
}
