// Package telemetry publishes RowerMetrics/StrokeEvent snapshots to an
// MQTT broker. It only ever reads the pipeline through its snapshot
// surface, so it can be dropped or replaced (e.g. by a BLE radio) without
// touching the core.
package telemetry

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"ergomonitor/internal/metrics"
	"ergomonitor/internal/stroke"
)

// Config holds the broker connection parameters for MQTTPublisher.
type Config struct {
	Broker          string
	Port            int
	Topic           string
	ClientID        string
	Username        string
	Password        string
	UseTLS          bool
	InsecureSkipTLS bool
	PublishInterval time.Duration
}

// DefaultConfig returns a Config pointed at a local unencrypted broker,
// publishing once a second.
func DefaultConfig() Config {
	return Config{
		Broker:          "localhost",
		Port:            1883,
		Topic:           "ergomonitor/metrics",
		ClientID:        fmt.Sprintf("ergomonitor-%d", time.Now().Unix()),
		PublishInterval: time.Second,
	}
}

// snapshotSource is the narrow read-only surface MQTTPublisher polls;
// *pipeline.Pipeline satisfies it without telemetry importing pipeline.
type snapshotSource interface {
	Snapshot() metrics.RowerMetrics
	LastEvent() *stroke.Event
}

// MQTTPublisher polls a snapshotSource on an interval and publishes each
// snapshot as JSON to an MQTT topic.
type MQTTPublisher struct {
	cfg    Config
	client mqtt.Client
	done   chan struct{}
}

// NewMQTTPublisher constructs a publisher that has not yet connected.
func NewMQTTPublisher(cfg Config) *MQTTPublisher {
	return &MQTTPublisher{cfg: cfg, done: make(chan struct{})}
}

type wireMetrics struct {
	Metrics metrics.RowerMetrics `json:"metrics"`
	Event   *stroke.Event        `json:"lastEvent,omitempty"`
}

// Start connects to the broker and begins publishing snapshots from src
// on cfg.PublishInterval until Stop is called.
func (p *MQTTPublisher) Start(src snapshotSource) error {
	log.Printf("[mqtt] connecting broker=%s:%d topic=%s", p.cfg.Broker, p.cfg.Port, p.cfg.Topic)

	protocol := "tcp"
	if p.cfg.UseTLS {
		protocol = "tls"
	}
	brokerURL := fmt.Sprintf("%s://%s:%d", protocol, p.cfg.Broker, p.cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(p.cfg.ClientID)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	if p.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: p.cfg.InsecureSkipTLS})
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) { log.Printf("[mqtt] connected") }
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("[mqtt] connection lost: %v (auto-reconnecting)", err)
	}

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt: connect timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("mqtt: connect failed: %w", token.Error())
	}

	go p.publishLoop(src)
	return nil
}

func (p *MQTTPublisher) publishLoop(src snapshotSource) {
	ticker := time.NewTicker(p.cfg.PublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.publishOnce(src)
		}
	}
}

func (p *MQTTPublisher) publishOnce(src snapshotSource) {
	payload := wireMetrics{Metrics: src.Snapshot(), Event: src.LastEvent()}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[mqtt] marshal error: %v", err)
		return
	}
	token := p.client.Publish(p.cfg.Topic, 0, false, data)
	token.Wait()
	if token.Error() != nil {
		log.Printf("[mqtt] publish error: %v", token.Error())
	}
}

// Stop disconnects from the broker and halts the publish loop.
func (p *MQTTPublisher) Stop() {
	close(p.done)
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(1000)
	}
	log.Printf("[mqtt] stopped")
}
