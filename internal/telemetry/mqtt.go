// Package telemetry publishes the receiver state to an MQTT broker.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/MarcinM22/rtk-monitor/internal/gps"
	"github.com/MarcinM22/rtk-monitor/internal/ntrip"
	"github.com/MarcinM22/rtk-monitor/internal/project"
)

type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Interval    time.Duration
	// PublishTimeout bounds each token wait.
	PublishTimeout time.Duration
}

// Client is the subset of mqtt.Client used here.
type Client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type FixSource interface {
	Snapshot() gps.PositionFix
}

type StatsSource interface {
	Stats() ntrip.Stats
}

type fixMessage struct {
	gps.PositionFix
	FixLabel string `json:"fix_label"`
	Time     string `json:"time"`
}

// Publisher sends retained fix and correction snapshots every Interval and
// each saved point as it arrives.
type Publisher struct {
	cfg    Config
	client Client
	fix    FixSource
	stats  StatsSource

	records chan project.Record

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, fix FixSource, stats StatsSource) (*Publisher, error) {
	cfg = withDefaults(cfg)
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, fmt.Errorf("mqtt.broker is required")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warnf("mqtt connection lost broker=%s: %v", cfg.Broker, err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Infof("mqtt connected broker=%s", cfg.Broker)
		})
	return newPublisher(cfg, mqtt.NewClient(opts), fix, stats), nil
}

func newPublisher(cfg Config, client Client, fix FixSource, stats StatsSource) *Publisher {
	return &Publisher{
		cfg:     withDefaults(cfg),
		client:  client,
		fix:     fix,
		stats:   stats,
		records: make(chan project.Record, 16),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.ClientID == "" {
		cfg.ClientID = "rtk-monitor"
	}
	cfg.TopicPrefix = strings.Trim(cfg.TopicPrefix, "/")
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "rtk-monitor"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	return cfg
}

func (p *Publisher) topic(name string) string {
	return p.cfg.TopicPrefix + "/" + name
}

// Start connects in the background and launches the publish loop. A broker
// that is down is retried by the client library; nothing here is fatal.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		tok := p.client.Connect()
		if tok.WaitTimeout(p.cfg.PublishTimeout) && tok.Error() != nil {
			log.Warnf("mqtt connect failed broker=%s: %v", p.cfg.Broker, tok.Error())
		}
		p.loop(ctx)
	}()
}

// PublishRecord queues a saved point. It never blocks; when the queue is
// full the point is dropped and logged.
func (p *Publisher) PublishRecord(r project.Record) {
	if p == nil {
		return
	}
	select {
	case p.records <- r:
	default:
		log.Warnf("mqtt point queue full, dropping point id=%d", r.ID)
	}
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.client.Disconnect(250)
	log.Infof("mqtt publisher stopped")
}

func (p *Publisher) loop(ctx context.Context) {
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-p.records:
			p.publish(p.topic("points"), false, r)
		case <-t.C:
			p.publishSnapshot(time.Now().UTC())
		}
	}
}

func (p *Publisher) publishSnapshot(now time.Time) {
	if p.fix != nil {
		fix := p.fix.Snapshot()
		p.publish(p.topic("fix"), true, fixMessage{
			PositionFix: fix,
			FixLabel:    fix.Quality.String(),
			Time:        now.Format(time.RFC3339),
		})
	}
	if p.stats != nil {
		p.publish(p.topic("ntrip"), true, p.stats.Stats())
	}
}

func (p *Publisher) publish(topic string, retained bool, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Errorf("mqtt marshal failed topic=%s: %v", topic, err)
		return
	}
	tok := p.client.Publish(topic, 0, retained, payload)
	if !tok.WaitTimeout(p.cfg.PublishTimeout) {
		log.Debugf("mqtt publish pending topic=%s", topic)
		return
	}
	if err := tok.Error(); err != nil {
		log.Debugf("mqtt publish failed topic=%s: %v", topic, err)
	}
}
