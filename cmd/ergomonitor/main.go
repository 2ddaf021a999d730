// Command ergomonitor assembles the rowing pipeline with its external
// collaborators and runs it against a simulated sensor edge generator:
// construct one Pipeline value, wire it to an MQTT publisher and a
// websocket dashboard, and drive it from a simulated sensor goroutine
// that calls OnEdge, Drain and Tick in turn on every tick until
// interrupted.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ergomonitor/internal/config"
	"ergomonitor/internal/dashboard"
	"ergomonitor/internal/pipeline"
	"ergomonitor/internal/settings"
	"ergomonitor/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "KEY=VALUE settings file (default: built-in Default())")
	settingsPath := flag.String("settings", "ergomonitor-settings.json", "persisted profile store path")
	mqttBroker := flag.String("mqtt-broker", "", "MQTT broker host (empty disables telemetry publishing)")
	mqttPort := flag.Int("mqtt-port", 1883, "MQTT broker port")
	dashboardAddr := flag.String("dashboard-addr", ":8080", "dashboard HTTP listen address")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("[ergo] failed to load config: %v", err)
		}
		cfg = loaded
	}

	store, err := settings.Open(*settingsPath)
	if err != nil {
		log.Fatalf("[ergo] failed to open settings store: %v", err)
	}
	if _, err := store.Save("active", cfg); err != nil {
		log.Printf("[ergo] failed to persist active profile: %v", err)
	}

	p := pipeline.New(cfg)

	dash := dashboard.New(p, 500*time.Millisecond)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", dash.Handler)
	srv := &http.Server{Addr: *dashboardAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Printf("[dashboard] listening on %s/ws", *dashboardAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		dashStop := make(chan struct{})
		go func() {
			<-gctx.Done()
			close(dashStop)
		}()
		dash.Run(dashStop)
		return nil
	})

	var publisher *telemetry.MQTTPublisher
	if *mqttBroker != "" {
		mqttCfg := telemetry.DefaultConfig()
		mqttCfg.Broker = *mqttBroker
		mqttCfg.Port = *mqttPort
		publisher = telemetry.NewMQTTPublisher(mqttCfg)
		if err := publisher.Start(p); err != nil {
			log.Printf("[ergo] telemetry publisher disabled: %v", err)
			publisher = nil
		}
	}

	group.Go(func() error {
		runSimulatedSensor(gctx, p)
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if publisher != nil {
			publisher.Stop()
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("[ergo] exited with error: %v", err)
	}
	log.Printf("[ergo] shutdown complete")
}

// runSimulatedSensor stands in for the real flywheel sensor ISR: it
// generates falling-edge timestamps at a jittered cadence and feeds them
// to the pipeline's OnEdge/Drain/Tick. A real deployment replaces only
// this function; the collaborator boundary is OnEdge itself.
func runSimulatedSensor(ctx context.Context, p *pipeline.Pipeline) {
	rng := rand.New(rand.NewSource(1))
	var nowUs float64
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			nowUs += 20_000 + rng.Float64()*2_000
			p.OnEdge(nowUs)
			p.Drain()
			p.Tick(nowUs)
		}
	}
}
