package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/MarcinM22/rtk-monitor/internal/config"
	"github.com/MarcinM22/rtk-monitor/internal/web"
)

const statusInterval = time.Second

func main() {
	var configPath string
	var summaryDir string
	flag.StringVar(&configPath, "config", "./config.yaml", "Path to YAML config")
	flag.StringVar(&summaryDir, "summary", "", "Print a summary of the project in this directory and exit")
	flag.Parse()

	if summaryDir != "" {
		if err := printProjectSummary(os.Stdout, summaryDir); err != nil {
			log.Fatalf("summary failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(cfg.Log.BufferLines)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(lvl)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	log.Infof("rtk-monitor starting config=%s", configPath)
	rt, err := newLiveRuntime(ctx, cfg, reg)
	if err != nil {
		log.Fatalf("runtime init failed: %v", err)
	}
	defer rt.Close()

	deps := rt.deps()
	deps.Settings = web.SettingsStore{ConfigPath: configPath, Apply: rt.Apply}
	deps.Logs = logs
	deps.Broadcaster = web.NewStatusBroadcaster()
	deps.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	status := web.NewStatus(deps)
	go deps.Broadcaster.Run(ctx, status, statusInterval)

	log.Infof("web listen=%s", cfg.Web.Listen)
	if err := web.Serve(ctx, cfg.Web.Listen, web.Handler(status, deps)); err != nil && ctx.Err() == nil {
		log.Errorf("web server stopped: %v", err)
		cancel()
	}
	<-ctx.Done()
	log.Infof("rtk-monitor stopping")
}
