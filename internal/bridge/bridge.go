package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-conga/internal/conga"
	"github.com/nerrad567/gray-logic-conga/internal/history"
	"github.com/nerrad567/gray-logic-conga/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-conga/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	defaultPollInterval    = 60 * time.Second
	defaultPollConcurrency = 4

	// pollTimeout bounds one status read.
	pollTimeout = 20 * time.Second

	// commandTimeout bounds one command, including credential renewal.
	commandTimeout = 30 * time.Second

	// pruneInterval is how often history retention is enforced.
	pruneInterval = time.Hour

	// qosAtLeastOnce is used for every bridge publish and subscription.
	qosAtLeastOnce = 1
)

// Logger is the logging interface used by the bridge.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Facade is the per-account vacuum cloud client.
// It is satisfied by *conga.DeviceFacade.
type Facade interface {
	ListDevices(ctx context.Context) ([]conga.Device, error)
	GetStatus(ctx context.Context, serial string) (conga.Status, error)
	Issue(ctx context.Context, serial string, cmd conga.Command) error
	RefreshPlans(ctx context.Context, serial string) []conga.Plan
	PlanNames() []string
}

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Telemetry records vacuum time-series. Satisfied by *influxdb.Client.
// Optional.
type Telemetry interface {
	WriteVacuumStatus(sample influxdb.VacuumSample, at time.Time)
	WriteVacuumCommand(serial, command, status string, latency time.Duration, at time.Time)
}

// History keeps the local audit trail. Satisfied by *history.Repository.
// Optional.
type History interface {
	RecordStatus(ctx context.Context, serial string, status conga.Status) error
	RecordCommand(ctx context.Context, entry history.CommandEntry) error
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Session is one cloud account served by the bridge.
type Session struct {
	// ID names the account in logs, discovery and health.
	ID string

	// Facade talks to the account's cloud.
	Facade Facade
}

// Options holds configuration for creating a bridge.
type Options struct {
	// ID identifies the bridge in health and discovery messages.
	ID string

	// Version is reported in health messages.
	Version string

	// Sessions lists the accounts to serve. At least one is required.
	Sessions []Session

	// MQTT is the connected broker client. Required.
	MQTT MQTTClient

	// Telemetry and History are optional sinks.
	Telemetry Telemetry
	History   History

	// Logger is optional structured logger.
	Logger Logger

	// PollInterval is the status poll period (default 60s).
	PollInterval time.Duration

	// PollConcurrency bounds concurrent status reads (default 4).
	PollConcurrency int

	// HealthInterval is the health publish period (default 30s).
	HealthInterval time.Duration

	// PlanRefresh is the plan cache refresh period. Zero refreshes only
	// at start and on the refresh command.
	PlanRefresh time.Duration

	// HistoryRetention is the age past which history rows are pruned.
	// Zero keeps everything.
	HistoryRetention time.Duration
}

// session is the bridge's runtime view of one account.
type session struct {
	id     string
	facade Facade

	mu        sync.RWMutex
	planNames []string
	lastErr   error

	// planSerial is the vacuum whose plans the session caches: the first
	// one it owns in listing order.
	planSerial string
}

func (s *session) setPlanSerial(serial string) {
	s.mu.Lock()
	s.planSerial = serial
	s.mu.Unlock()
}

func (s *session) planSource() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.planSerial
}

func (s *session) setPlans(names []string) {
	s.mu.Lock()
	s.planNames = names
	s.mu.Unlock()
}

func (s *session) plans() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.planNames...)
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *session) err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// vacuum is a device known to the bridge.
type vacuum struct {
	device  conga.Device
	session *session

	// fanLevel is the last reported fan level, used by start.
	fanLevel *int
}

type bridgeStats struct {
	polls            atomic.Uint64
	pollErrors       atomic.Uint64
	commandsAccepted atomic.Uint64
	commandsFailed   atomic.Uint64
}

// Bridge connects Gray Logic Core to Conga vacuum cloud accounts over MQTT.
// It handles:
//   - Polling vacuum status and publishing retained state on change
//   - Receiving commands and acknowledging them
//   - Discovery, health reporting, telemetry and history
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	opts     Options
	topics   mqtt.Topics
	sessions []*session
	health   *HealthReporter
	logger   Logger

	vacuums   map[string]*vacuum
	vacuumsMu sync.RWMutex

	// stateCache holds the last published view per serial, encoded for
	// change detection and decoded for queries.
	stateCache   map[string][]byte
	views        map[string]StateMessage
	stateCacheMu sync.Mutex

	stats bridgeStats

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	// stopped guards wg.Add against a concurrent Stop.
	stopped   bool
	stoppedMu sync.Mutex

	now func() time.Time
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if len(opts.Sessions) == 0 {
		return nil, fmt.Errorf("at least one session is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PollConcurrency <= 0 {
		opts.PollConcurrency = defaultPollConcurrency
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	seen := make(map[string]bool, len(opts.Sessions))
	sessions := make([]*session, 0, len(opts.Sessions))
	for _, s := range opts.Sessions {
		if s.ID == "" || s.Facade == nil {
			return nil, fmt.Errorf("session requires an id and a facade")
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate session %q", s.ID)
		}
		seen[s.ID] = true
		sessions = append(sessions, &session{id: s.ID, facade: s.Facade})
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		opts:       opts,
		topics:     mqtt.Topics{Protocol: mqtt.ProtocolConga},
		sessions:   sessions,
		logger:     logger,
		vacuums:    make(map[string]*vacuum),
		stateCache: make(map[string][]byte),
		views:      make(map[string]StateMessage),
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
	b.health = newHealthReporter(opts.ID, opts.Version, opts.HealthInterval, opts.MQTT, b.healthSnapshot, logger)

	return b, nil
}

// Start discovers every account's vacuums, subscribes to commands and
// starts the poll, health, plan refresh and prune loops.
//
// A session whose device listing fails fails Start: bad credentials are a
// setup error, not something to retry in the background.
func (b *Bridge) Start(ctx context.Context) error {
	context.AfterFunc(ctx, b.cancel)

	if err := b.health.PublishStarting(); err != nil {
		b.logger.Warn("failed to publish starting status", "error", err)
	}

	for _, s := range b.sessions {
		if err := b.discover(ctx, s); err != nil {
			return fmt.Errorf("session %s: %w", s.id, err)
		}
	}
	b.publishDiscovery()

	if err := b.opts.MQTT.Subscribe(b.topics.AllCommands(), qosAtLeastOnce, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", b.topics.AllCommands())

	b.health.Start(b.ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logger.Warn("failed to publish health", "error", err)
	}

	b.goLoop(b.opts.PollInterval, true, b.pollAll)
	if b.opts.PlanRefresh > 0 {
		b.goLoop(b.opts.PlanRefresh, false, b.refreshPlans)
	}
	if b.opts.History != nil && b.opts.HistoryRetention > 0 {
		b.goLoop(pruneInterval, true, b.prune)
	}

	b.logger.Info("bridge started",
		"bridge_id", b.opts.ID,
		"accounts", len(b.sessions),
		"devices", b.deviceCount())
	return nil
}

// Stop cancels all loops and in-flight commands, waits for them, and
// publishes a final "stopping" status.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stoppedMu.Lock()
		b.stopped = true
		b.stoppedMu.Unlock()

		b.cancel()
		b.wg.Wait()
		b.health.Stop()
		b.logger.Info("bridge stopped")
	})
}

// goLoop runs fn every interval until the bridge stops.
func (b *Bridge) goLoop(interval time.Duration, immediate bool, fn func(ctx context.Context)) {
	if !b.track() {
		return
	}
	go func() {
		defer b.wg.Done()

		if immediate {
			fn(b.ctx)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-b.ctx.Done():
				return
			case <-ticker.C:
				fn(b.ctx)
			}
		}
	}()
}

// discover lists a session's vacuums and loads plans for the first one it
// owns. Vacuums already known to the session keep their last fan level.
func (b *Bridge) discover(ctx context.Context, s *session) error {
	devices, err := s.facade.ListDevices(ctx)
	if err != nil {
		s.setErr(err)
		return fmt.Errorf("listing devices: %w", err)
	}
	s.setErr(nil)

	planSerial := ""
	b.vacuumsMu.Lock()
	previous := make(map[string]*vacuum)
	for serial, v := range b.vacuums {
		if v.session == s {
			previous[serial] = v
			delete(b.vacuums, serial)
		}
	}
	for _, d := range devices {
		if existing, ok := b.vacuums[d.SerialNumber]; ok {
			b.logger.Warn("vacuum listed by two accounts; keeping first",
				"serial", d.SerialNumber,
				"kept", existing.session.id,
				"ignored", s.id)
			continue
		}
		v := &vacuum{device: d, session: s}
		if prev, ok := previous[d.SerialNumber]; ok {
			v.fanLevel = prev.fanLevel
		}
		b.vacuums[d.SerialNumber] = v
		if planSerial == "" {
			planSerial = d.SerialNumber
		}
	}
	b.vacuumsMu.Unlock()

	s.setPlanSerial(planSerial)
	b.refreshSessionPlans(ctx, s)

	b.logger.Info("session discovered",
		"session", s.id,
		"devices", len(devices),
		"plans", len(s.plans()))
	return nil
}

// refreshPlans reloads every session's plans and republishes discovery.
func (b *Bridge) refreshPlans(ctx context.Context) {
	for _, s := range b.sessions {
		b.refreshSessionPlans(ctx, s)
	}
	b.publishDiscovery()
}

// refreshSessionPlans reloads the plans of the session's plan source
// vacuum. A session without vacuums keeps whatever the facade caches.
func (b *Bridge) refreshSessionPlans(ctx context.Context, s *session) {
	if serial := s.planSource(); serial != "" {
		s.facade.RefreshPlans(ctx, serial)
	}
	s.setPlans(s.facade.PlanNames())
}

// pollAll reads every vacuum's status with bounded concurrency.
func (b *Bridge) pollAll(ctx context.Context) {
	serials := b.serials()

	var g errgroup.Group
	g.SetLimit(b.opts.PollConcurrency)
	for _, serial := range serials {
		g.Go(func() error {
			b.pollDevice(ctx, serial)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // pollDevice never fails the group
}

// pollDevice reads one vacuum's status and fans it out to MQTT,
// telemetry and history.
func (b *Bridge) pollDevice(ctx context.Context, serial string) {
	v, ok := b.vacuum(serial)
	if !ok {
		return
	}

	pctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	b.stats.polls.Add(1)
	st, err := v.session.facade.GetStatus(pctx, serial)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		b.stats.pollErrors.Add(1)
		if isAuthError(err) {
			v.session.setErr(err)
		}
		b.logger.Warn("status poll failed", "serial", serial, "error", err)
		b.publishState(v, unavailableView(errorCode(err)))
		return
	}
	v.session.setErr(nil)

	if st.FanLevel != nil {
		b.vacuumsMu.Lock()
		level := *st.FanLevel
		v.fanLevel = &level
		b.vacuumsMu.Unlock()
	}

	now := b.now()
	if b.opts.Telemetry != nil {
		b.opts.Telemetry.WriteVacuumStatus(sampleFromStatus(v.device, st), now)
	}

	if !b.publishState(v, viewFromStatus(st)) {
		return
	}
	if b.opts.History != nil {
		if err := b.opts.History.RecordStatus(ctx, serial, st); err != nil {
			b.logger.Warn("failed to record status history", "serial", serial, "error", err)
		}
	}
}

// publishState publishes view when it differs from the last published
// view. It reports whether anything was published.
func (b *Bridge) publishState(v *vacuum, view VacuumView) bool {
	serial := v.device.SerialNumber

	encoded, err := json.Marshal(view)
	if err != nil {
		b.logger.Error("failed to marshal state", "serial", serial, "error", err)
		return false
	}

	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	if prev, ok := b.stateCache[serial]; ok && string(prev) == string(encoded) {
		return false
	}

	msg := StateMessage{
		DeviceID:  serial,
		Timestamp: b.now().UTC(),
		State:     view,
		Device: DeviceInfo{
			Name:         v.device.Name(),
			Manufacturer: manufacturer,
			Model:        model,
			Account:      v.session.id,
		},
		Protocol: mqtt.ProtocolConga,
		Address:  serial,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal state message", "serial", serial, "error", err)
		return false
	}
	if err := b.opts.MQTT.Publish(b.topics.State(serial), payload, qosAtLeastOnce, true); err != nil {
		b.logger.Warn("failed to publish state", "serial", serial, "error", err)
		return false
	}

	b.stateCache[serial] = encoded
	b.views[serial] = msg
	b.logger.Debug("state published", "serial", serial, "state", view.State)
	return true
}

// publishDiscovery publishes the retained list of vacuums and plans.
func (b *Bridge) publishDiscovery() {
	b.vacuumsMu.RLock()
	devices := make([]DiscoveredDevice, 0, len(b.vacuums))
	for _, v := range b.vacuums {
		devices = append(devices, discovered(v))
	}
	b.vacuumsMu.RUnlock()
	sortDevices(devices)

	payload, err := json.Marshal(DiscoveryMessage{
		Timestamp: b.now().UTC(),
		Bridge:    b.opts.ID,
		Devices:   devices,
	})
	if err != nil {
		b.logger.Error("failed to marshal discovery", "error", err)
		return
	}
	if err := b.opts.MQTT.Publish(b.topics.Discovery(), payload, qosAtLeastOnce, true); err != nil {
		b.logger.Warn("failed to publish discovery", "error", err)
	}
}

// handleCommand processes one command message. Every parseable command is
// acknowledged on the device's ack topic.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	serial := mqtt.AddressFromTopic(topic)

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.publishAck(newAckError(CommandMessage{DeviceID: serial}, ErrCodeInvalidCommand,
			"malformed command payload", b.now()))
		return fmt.Errorf("parsing command: %w", err)
	}
	msg.DeviceID = serial
	b.Submit(msg)
	return nil
}

// Submit executes msg, publishes its acknowledgement on the device's ack
// topic and returns it. msg.DeviceID must name the vacuum; an empty msg.ID
// is replaced with a UUID. Used for commands arriving over MQTT and from
// the HTTP API.
func (b *Bridge) Submit(msg CommandMessage) AckMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	b.logger.Info("received command",
		"command_id", msg.ID,
		"device_id", msg.DeviceID,
		"command", msg.Command,
		"source", msg.Source)

	started := b.now()
	err := b.execute(msg)
	latency := b.now().Sub(started)

	if err != nil {
		b.stats.commandsFailed.Add(1)
		code := errorCode(err)
		ack := newAckError(msg, code, err.Error(), b.now())
		b.publishAck(ack)
		b.recordCommand(msg, AckFailed, code, err.Error(), latency)
		b.logger.Warn("command failed",
			"command_id", msg.ID,
			"device_id", msg.DeviceID,
			"code", code,
			"error", err)
		return ack
	}

	b.stats.commandsAccepted.Add(1)
	ack := newAck(msg, AckAccepted, b.now())
	b.publishAck(ack)
	b.recordCommand(msg, AckAccepted, "", "", latency)
	b.schedulePoll(msg.DeviceID)
	return ack
}

// execute runs msg against its vacuum's account.
func (b *Bridge) execute(msg CommandMessage) error {
	if b.ctx.Err() != nil {
		return fmt.Errorf("bridge stopping: %w", b.ctx.Err())
	}

	v, ok := b.vacuum(msg.DeviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, msg.DeviceID)
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if msg.Command == CommandRefresh {
		b.refreshSessionPlans(ctx, v.session)
		b.publishDiscovery()
		return nil
	}

	b.vacuumsMu.RLock()
	lastFan := v.fanLevel
	b.vacuumsMu.RUnlock()

	cmd, err := toCommand(msg, lastFan)
	if err != nil {
		return err
	}

	err = v.session.facade.Issue(ctx, msg.DeviceID, cmd)
	if isAuthError(err) {
		v.session.setErr(err)
	}
	return err
}

// track registers a background goroutine. It returns false once Stop has
// begun.
func (b *Bridge) track() bool {
	b.stoppedMu.Lock()
	defer b.stoppedMu.Unlock()
	if b.stopped {
		return false
	}
	b.wg.Add(1)
	return true
}

// schedulePoll reads a vacuum's status once in the background so state
// follows a command without waiting for the next poll.
func (b *Bridge) schedulePoll(serial string) {
	if !b.track() {
		return
	}
	go func() {
		defer b.wg.Done()
		b.pollDevice(b.ctx, serial)
	}()
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "error", err)
		return
	}
	if err := b.opts.MQTT.Publish(b.topics.Ack(ack.Address), payload, qosAtLeastOnce, false); err != nil {
		b.logger.Warn("failed to publish ack", "command_id", ack.CommandID, "error", err)
	}
}

func (b *Bridge) recordCommand(msg CommandMessage, status AckStatus, code, message string, latency time.Duration) {
	at := b.now()
	if b.opts.Telemetry != nil {
		b.opts.Telemetry.WriteVacuumCommand(msg.DeviceID, msg.Command, string(status), latency, at)
	}
	if b.opts.History == nil {
		return
	}
	if _, known := b.vacuum(msg.DeviceID); !known {
		return
	}
	err := b.opts.History.RecordCommand(b.ctx, history.CommandEntry{
		RequestID:    msg.ID,
		Serial:       msg.DeviceID,
		Command:      msg.Command,
		Status:       string(status),
		ErrorCode:    code,
		ErrorMessage: message,
		Latency:      latency,
		CreatedAt:    at,
	})
	if err != nil {
		b.logger.Warn("failed to record command", "command_id", msg.ID, "error", err)
	}
}

func (b *Bridge) prune(ctx context.Context) {
	deleted, err := b.opts.History.Prune(ctx, b.opts.HistoryRetention)
	if err != nil {
		b.logger.Warn("history prune failed", "error", err)
		return
	}
	if deleted > 0 {
		b.logger.Info("history pruned", "rows", deleted)
	}
}

// healthSnapshot evaluates the bridge's current health.
func (b *Bridge) healthSnapshot() healthSnapshot {
	snap := healthSnapshot{
		status:   HealthHealthy,
		accounts: len(b.sessions),
		devices:  b.deviceCount(),
		stats: BridgeStatistics{
			Polls:            b.stats.polls.Load(),
			PollErrors:       b.stats.pollErrors.Load(),
			CommandsAccepted: b.stats.commandsAccepted.Load(),
			CommandsFailed:   b.stats.commandsFailed.Load(),
		},
	}

	if !b.opts.MQTT.IsConnected() {
		snap.status = HealthDegraded
		snap.reason = "MQTT disconnected"
		return snap
	}
	for _, s := range b.sessions {
		if err := s.err(); err != nil {
			snap.status = HealthDegraded
			snap.reason = fmt.Sprintf("account %s: %s", s.id, errorCode(err))
			return snap
		}
	}
	return snap
}

func (b *Bridge) vacuum(serial string) (*vacuum, bool) {
	b.vacuumsMu.RLock()
	defer b.vacuumsMu.RUnlock()
	v, ok := b.vacuums[serial]
	return v, ok
}

func (b *Bridge) serials() []string {
	b.vacuumsMu.RLock()
	defer b.vacuumsMu.RUnlock()
	out := make([]string, 0, len(b.vacuums))
	for serial := range b.vacuums {
		out = append(out, serial)
	}
	sort.Strings(out)
	return out
}

func (b *Bridge) deviceCount() int {
	b.vacuumsMu.RLock()
	defer b.vacuumsMu.RUnlock()
	return len(b.vacuums)
}

func isAuthError(err error) bool {
	return errors.Is(err, conga.ErrAuthentication) ||
		errors.Is(err, conga.ErrFederation) ||
		errors.Is(err, conga.ErrAuthorization)
}

func sampleFromStatus(d conga.Device, st conga.Status) influxdb.VacuumSample {
	return influxdb.VacuumSample{
		Serial:       d.SerialNumber,
		Name:         d.Name(),
		State:        string(st.State),
		Mode:         st.Mode,
		Battery:      st.Battery,
		CleanArea:    st.CleanArea,
		AllArea:      st.AllArea,
		CleanMinutes: st.CleanMinutes,
		AllMinutes:   st.AllMinutes,
		FanLevel:     st.FanLevel,
		WaterLevel:   st.WaterLevel,
		Connected:    st.Connected,
	}
}
