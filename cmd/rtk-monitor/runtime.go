package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/MarcinM22/rtk-monitor/internal/config"
	"github.com/MarcinM22/rtk-monitor/internal/geodesy"
	"github.com/MarcinM22/rtk-monitor/internal/gps"
	"github.com/MarcinM22/rtk-monitor/internal/ntrip"
	"github.com/MarcinM22/rtk-monitor/internal/project"
	"github.com/MarcinM22/rtk-monitor/internal/survey"
	"github.com/MarcinM22/rtk-monitor/internal/telemetry"
	"github.com/MarcinM22/rtk-monitor/internal/web"
)

// liveRuntime owns the running components. Only the NTRIP section can be
// changed without a restart.
type liveRuntime struct {
	ctx context.Context

	mu  sync.Mutex
	cfg config.Config

	gpsSvc   *gps.Service
	ntrip    *ntrip.Client
	conv     *geodesy.Converter
	store    *project.Store
	session  *survey.Session
	stakeout *survey.Stakeout
	mqtt     *telemetry.Publisher

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func ntripConfig(c config.NTRIPConfig) ntrip.Config {
	return ntrip.Config{
		Enabled:         c.Enabled,
		Host:            c.Host,
		Port:            c.Port,
		Mountpoint:      c.Mountpoint,
		Username:        c.Username,
		Password:        c.Password,
		SendGGA:         c.GGAEnabled(),
		GGAInterval:     c.GGAInterval,
		ConnectTimeout:  c.ConnectTimeout,
		ResponseTimeout: c.ResponseTimeout,
		ReadTimeout:     c.ReadTimeout,
		ReconnectDelay:  c.ReconnectDelay,
	}
}

func newConverter(c config.GeodesyConfig) (*geodesy.Converter, error) {
	proj, err := geodesy.PL2000(c.Zone)
	if err != nil {
		return nil, err
	}
	if c.GeoidGrid == "" {
		return geodesy.NewConverter(&proj, nil), nil
	}
	grid, err := geodesy.LoadGrid(c.GeoidGrid)
	if err != nil {
		return nil, fmt.Errorf("geodesy.geoid_grid: %w", err)
	}
	return geodesy.NewConverter(&proj, grid), nil
}

func newLiveRuntime(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*liveRuntime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}

	conv, err := newConverter(c.Geodesy)
	if err != nil {
		return nil, err
	}
	store, err := project.NewStore(c.Survey.ProjectsDir, project.ReportInfo{
		Horizontal:   conv.Projection().Name,
		HeightMethod: conv.Method(),
	})
	if err != nil {
		return nil, err
	}

	gpsSvc := gps.New(gps.Config{
		Device:          c.Serial.Device,
		Baud:            c.Serial.Baud,
		StartupCommands: c.Serial.StartupCommands,
		Metrics:         gps.NewMetrics(reg),
	})

	client := ntrip.NewClient(ntripConfig(c.NTRIP), gpsSvc, gpsSvc, ntrip.NewMetrics(reg))
	if c.NTRIP.Enabled {
		if err := client.Start(ctx); err != nil {
			log.Errorf("ntrip start failed: %v", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &liveRuntime{
		ctx:      ctx,
		cfg:      c,
		gpsSvc:   gpsSvc,
		ntrip:    client,
		conv:     conv,
		store:    store,
		stakeout: survey.NewStakeout(conv),
		cancel:   cancel,
	}
	r.session = survey.NewSession(survey.Config{
		RequiredSamples: c.Survey.RequiredSamples,
		MinFixQuality:   gps.FixQuality(c.Survey.MinFixQuality),
		SampleInterval:  c.Survey.SampleInterval,
	}, gpsSvc, store, conv, survey.NewMetrics(reg))

	if c.MQTT.Enable {
		pub, err := telemetry.New(telemetry.Config{
			Broker:      c.MQTT.Broker,
			ClientID:    c.MQTT.ClientID,
			TopicPrefix: c.MQTT.TopicPrefix,
			Interval:    c.MQTT.Interval,
		}, gpsSvc, client)
		if err != nil {
			log.Errorf("mqtt init failed: %v", err)
		} else {
			pub.Start(runCtx)
			r.mqtt = pub
			r.session.OnRecord = pub.PublishRecord
		}
	}

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.session.Run(runCtx)
	}()
	go func() {
		defer r.wg.Done()
		startGPS(runCtx, gpsSvc, gpsRetryDelay)
	}()

	log.Infof("survey ready projects=%s samples=%d min_fix=%s height=%s",
		c.Survey.ProjectsDir, c.Survey.RequiredSamples, gps.FixQuality(c.Survey.MinFixQuality), conv.Method())
	return r, nil
}

// deps exposes the components to the web layer.
func (r *liveRuntime) deps() web.Deps {
	return web.Deps{
		GPS:      r.gpsSvc,
		NTRIP:    r.ntrip,
		Projects: r.store,
		Survey:   r.session,
		Stakeout: r.stakeout,
	}
}

func (r *liveRuntime) Config() config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Apply makes next effective. Sections other than ntrip must match the
// running config.
func (r *liveRuntime) Apply(next config.Config) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	c := next
	if err := config.DefaultAndValidate(&c); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.cfg

	if strings.TrimSpace(c.Serial.Device) != strings.TrimSpace(cur.Serial.Device) || c.Serial.Baud != cur.Serial.Baud {
		return fmt.Errorf("serial settings require restart")
	}
	if c.Web.Listen != cur.Web.Listen {
		return fmt.Errorf("web.listen requires restart")
	}
	if c.Survey.ProjectsDir != cur.Survey.ProjectsDir || c.Survey.RequiredSamples != cur.Survey.RequiredSamples ||
		c.Survey.MinFixQuality != cur.Survey.MinFixQuality || c.Survey.SampleInterval != cur.Survey.SampleInterval {
		return fmt.Errorf("survey settings require restart")
	}
	if c.Geodesy != cur.Geodesy {
		return fmt.Errorf("geodesy settings require restart")
	}
	if c.MQTT != cur.MQTT {
		return fmt.Errorf("mqtt settings require restart")
	}

	if ntripConfig(c.NTRIP) != ntripConfig(cur.NTRIP) || (c.NTRIP.Enabled && !r.ntrip.Running()) {
		err := r.ntrip.Reconfigure(r.ctx, ntripConfig(c.NTRIP))
		switch {
		case errors.Is(err, ntrip.ErrMissingCredentials):
			// Saved anyway; the status shows the client error.
			log.Warnf("ntrip not started: %v", err)
		case err != nil:
			return err
		}
	}
	r.cfg = c
	return nil
}

const gpsRetryDelay = 5 * time.Second

// startGPS keeps trying to open the receiver until it succeeds or ctx ends.
// The web UI stays up meanwhile so the operator can see the error.
func startGPS(ctx context.Context, svc *gps.Service, retry time.Duration) {
	for {
		err := svc.Start(ctx)
		if err == nil {
			return
		}
		log.Errorf("gps init failed: %v (retry in %s)", err, retry)
		t := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// Close stops the corrections before the receiver they are written to.
func (r *liveRuntime) Close() {
	if r == nil {
		return
	}
	if r.mqtt != nil {
		r.mqtt.Close()
		r.mqtt = nil
	}
	if r.ntrip != nil {
		r.ntrip.Stop()
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	if r.gpsSvc != nil {
		r.gpsSvc.Close()
	}
}
