package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-conga/internal/infrastructure/mqtt"
)

// defaultHealthInterval is used when no interval is configured.
const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// healthSnapshot is the bridge state a health message reports.
type healthSnapshot struct {
	status   HealthStatus
	reason   string
	accounts int
	devices  int
	stats    BridgeStatistics
}

// HealthReporter publishes the bridge's health at regular intervals.
type HealthReporter struct {
	bridgeID   string
	version    string
	instanceID string
	startTime  time.Time
	interval   time.Duration
	publisher  HealthPublisher
	source     func() healthSnapshot
	topic      string

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// newHealthReporter creates a reporter. source is called for every message.
func newHealthReporter(bridgeID, version string, interval time.Duration, publisher HealthPublisher, source func() healthSnapshot, logger Logger) *HealthReporter {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		bridgeID:   bridgeID,
		version:    version,
		instanceID: uuid.NewString(),
		startTime:  time.Now(),
		interval:   interval,
		publisher:  publisher,
		source:     source,
		topic:      mqtt.Topics{Protocol: mqtt.ProtocolConga}.Health(),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Start begins periodic health reporting until ctx is cancelled or Stop
// is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publish(HealthStopping, "bridge stopping")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	snap := h.source()
	return h.publishSnapshot(snap)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Warn("failed to publish health", "error", err)
			}
		}
	}
}

// publish sends status with the current counters.
func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	snap := h.source()
	snap.status = status
	snap.reason = reason
	return h.publishSnapshot(snap)
}

func (h *HealthReporter) publishSnapshot(snap healthSnapshot) error {
	if h.publisher == nil {
		return nil
	}
	if !h.publisher.IsConnected() {
		return mqtt.ErrNotConnected
	}

	payload, err := json.Marshal(h.message(snap))
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}

// message builds the health message for snap.
func (h *HealthReporter) message(snap healthSnapshot) HealthMessage {
	stats := snap.stats
	return HealthMessage{
		Bridge:         h.bridgeID,
		InstanceID:     h.instanceID,
		Timestamp:      time.Now().UTC(),
		Status:         snap.status,
		Version:        h.version,
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
		Accounts:       snap.accounts,
		DevicesManaged: snap.devices,
		Statistics:     &stats,
		Reason:         snap.reason,
	}
}
