package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/graphlayout/core"
	"github.com/signalsfoundry/graphlayout/internal/logging"
	"github.com/signalsfoundry/graphlayout/internal/observability"
	"github.com/signalsfoundry/graphlayout/protocol"
	"github.com/signalsfoundry/graphlayout/session"
)

func main() {
	httpAddr := flag.String("http-addr", ":8080", "TCP address the layout HTTP API listens on")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	scenarioPath := flag.String("scenario", "", "optional JSON graph scenario loaded at startup")
	tickInterval := flag.Duration("tick-interval", 16*time.Millisecond, "iteration cadence of the paced simulation loop")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewLayoutCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	sess := session.New(session.Options{
		Mode:         session.Paced,
		TickInterval: *tickInterval,
		Logger:       log,
		Metrics:      collector,
	})
	sess.Start(ctx)

	srv := newServer(sess, collector, log)
	go srv.broadcast(ctx)

	if *scenarioPath != "" {
		loadScenario(ctx, *scenarioPath, sess, srv, log)
	}

	httpSrv := &http.Server{
		Addr:    *httpAddr,
		Handler: srv.routes(),
	}

	log.Info(ctx, "starting layout HTTP server", logging.String("addr", *httpAddr))
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "HTTP server exited", logging.Err(err))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down layout server")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	<-sess.Done()
}

func loadScenario(ctx context.Context, path string, sess *session.Session, srv *server, log logging.Logger) {
	f, err := os.Open(path)
	if err != nil {
		log.Error(ctx, "failed to open scenario", logging.String("path", path), logging.Err(err))
		os.Exit(1)
	}
	defer f.Close()

	scenario, err := core.LoadGraphScenario(f)
	if err != nil {
		log.Error(ctx, "failed to load scenario", logging.String("path", path), logging.Err(err))
		os.Exit(1)
	}
	srv.setGraph(scenario)
	sess.Post(protocol.InitCommand{Nodes: scenario.Nodes, Links: scenario.Links, Config: scenario.Overrides})
	log.Info(ctx, "scenario loaded",
		logging.String("path", path),
		logging.Int("nodes", len(scenario.Nodes)),
		logging.Int("links", len(scenario.Links)),
	)
}

func serveMetrics(addr string, collector *observability.LayoutCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		log.Info(context.Background(), "serving metrics", logging.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()
	return srv
}
