// Package telemetry publishes DecodeCoordinator snapshots and per-codec
// completion events to an MQTT broker (SPEC_FULL.md §4.8). It is
// purely observational: publish failures are logged, never propagated
// into the decode pipeline.
package telemetry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/orion-imagecodec/internal/config"
	"github.com/e7canasta/orion-imagecodec/internal/coordinator"
)

// SnapshotSource is the subset of DecodeCoordinator this package
// consumes, kept as an interface so tests never need a real coordinator.
type SnapshotSource interface {
	Snapshot() coordinator.Snapshot
}

// Emitter publishes coordinator snapshots on a ticker and per-request
// completion events on demand, mirroring the teacher's MQTTEmitter
// connect/publish/disconnect lifecycle and per-topic published-count
// bookkeeping.
type Emitter struct {
	cfg    config.TelemetryConfig
	instID string
	client mqtt.Client
	log    *slog.Logger

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	connected bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewEmitter constructs an Emitter. Connect must be called before the
// snapshot loop or PublishCompletion do anything but count an error.
func NewEmitter(cfg config.TelemetryConfig, instanceID string, log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{
		cfg:       cfg,
		instID:    instanceID,
		log:       log,
		published: make(map[string]uint64),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Connect establishes the MQTT connection with auto-reconnect enabled.
func (e *Emitter) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Broker)
	opts.SetClientID(e.instID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		e.log.Info("telemetry: mqtt connection established", "broker", e.cfg.Broker, "client_id", e.instID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		e.log.Warn("telemetry: mqtt connection lost, auto-reconnecting", "error", err)
	}

	e.client = mqtt.NewClient(opts)

	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("telemetry: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return nil
}

// RunSnapshotLoop publishes source.Snapshot() every
// cfg.PublishInterval() until Stop is called. Intended to run in its
// own goroutine.
func (e *Emitter) RunSnapshotLoop(source SnapshotSource) {
	defer close(e.done)
	interval := e.cfg.PublishInterval()
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.publishSnapshot(source.Snapshot())
		}
	}
}

func (e *Emitter) publishSnapshot(snap coordinator.Snapshot) {
	topic := fmt.Sprintf("imagecodec/%s/coordinator", e.instID)
	payload := fmt.Sprintf(
		`{"in_flight_memory":%d,"in_flight_count":%d,"queue_depth":%d,"admitted":%d,"enqueued":%d,"finished":%d}`,
		snap.InFlightMemory, snap.InFlightCount, snap.QueueDepth, snap.Admitted, snap.Enqueued, snap.Finished,
	)
	e.publish(topic, 0, []byte(payload))
}

// PublishCompletion publishes a single codec completion event.
// requestID is spec.md §6's process-wide RequestId, correlating a wire
// event to a specific fetch/decode/upload cycle.
func (e *Emitter) PublishCompletion(requestID uint32, ok bool) {
	topic := fmt.Sprintf("imagecodec/%s/completion", e.instID)
	payload := fmt.Sprintf(`{"request_id":%d,"ok":%t}`, requestID, ok)
	e.publish(topic, 0, []byte(payload))
}

func (e *Emitter) publish(topic string, qos byte, payload []byte) {
	if !e.isConnected() {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return
	}

	token := e.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		e.log.Warn("telemetry: publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		e.log.Warn("telemetry: publish failed", "topic", topic, "error", err)
		return
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

// Stop halts RunSnapshotLoop and blocks until it has exited. Idempotent.
func (e *Emitter) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	<-e.done
}

// Disconnect closes the MQTT connection.
func (e *Emitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
	}
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
}

// Stats reports publish bookkeeping for diagnostics/tests.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Stats returns a snapshot of publish bookkeeping.
func (e *Emitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Connected: e.connected, Published: published, Errors: e.errors}
}
