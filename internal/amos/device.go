package amos

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"
)

const (
	powerOnEndpoint     = "openFragrance.do"
	powerOffEndpoint    = "closeFragrance.do"
	statusEndpoint      = "amosFragrance.do"
	timerListEndpoint   = "timerList.do"
	timerUpdateEndpoint = "updateTimer.do"
	liquidResetEndpoint = "resetLiquidLevel.do"
	lockEndpoint        = "/admin/amos/deviceLock.do"
	unlockEndpoint      = "/admin/amos/deviceUnlock.do"

	// minRunSeconds is the device floor for a timer run; the cloud rejects
	// shorter runs.
	minRunSeconds = 5

	// defaultRotationPct is reported before any timer has been fetched.
	defaultRotationPct = 50

	// lowLiquidThreshold is the consumable "needs attention" level.
	lowLiquidThreshold = 10

	// lockRollbackDelay is how long to wait before reverting the local lock
	// flag after a failed lock/unlock call.
	lockRollbackDelay = 500 * time.Millisecond

	// DefaultPollInterval is the period of the state poller.
	DefaultPollInterval = 30 * time.Second
)

// State is the local snapshot of a diffuser, overwritten wholesale on each
// successful poll.
type State struct {
	IsOn        bool
	RunSeconds  int
	LiquidLevel int
	Locked      bool
}

// RotationPct maps the timer run seconds back to the 0-100 scale.
func (s State) RotationPct() int {
	return runSecondsToPct(s.RunSeconds)
}

// Timer is one entry of the device's timer list. It is fetched fresh before
// every intensity update so fields this client does not model (suspend in
// particular) are preserved verbatim in the read-modify-write cycle.
type Timer struct {
	TimerID json.Number `json:"timerId"`
	UID     json.Number `json:"uid"`
	Name    string      `json:"name"`
	Start   string      `json:"start"`
	Stop    string      `json:"stop"`
	Mode    json.Number `json:"mode"`
	Run     int         `json:"run"`
	Suspend int         `json:"suspend"`
}

// StateSink receives the snapshot after every successful poll. Sink errors
// never fail the poll.
type StateSink interface {
	SaveDeviceState(ctx context.Context, nid string, state State) error
}

// Device is one diffuser: the API client plus the local state cache, the
// derived characteristic operations and the polling loop.
type Device struct {
	client *Client
	name   string
	model  string
	sinks  []StateSink
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	timerCache *Timer

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewDevice creates a device around an API client.
func NewDevice(client *Client, name, model string, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		client:   client,
		name:     name,
		model:    model,
		logger:   logger.With("component", "device", "nid", client.Identity().NID),
		stopChan: make(chan struct{}),
	}
}

// AddSink registers a state sink. Must be called before Start.
func (d *Device) AddSink(sink StateSink) {
	d.sinks = append(d.sinks, sink)
}

// NID returns the device's cloud identifier.
func (d *Device) NID() string {
	return d.client.Identity().NID
}

// Name returns the display name.
func (d *Device) Name() string {
	return d.name
}

// Model returns the device model.
func (d *Device) Model() string {
	return d.model
}

// Snapshot returns the current state as a whole value.
func (d *Device) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// On reports the cached power state.
func (d *Device) On() bool {
	return d.Snapshot().IsOn
}

// ConsumableLevel returns the cached liquid level percentage.
func (d *Device) ConsumableLevel() int {
	return d.Snapshot().LiquidLevel
}

// ConsumableLow reports whether the liquid level needs attention.
func (d *Device) ConsumableLow() bool {
	return d.ConsumableLevel() < lowLiquidThreshold
}

// Locked reports the cached lock flag.
func (d *Device) Locked() bool {
	return d.Snapshot().Locked
}

// SetOn turns the diffuser on or off. The local power flag is updated only
// after the cloud confirms the call.
func (d *Device) SetOn(ctx context.Context, on bool) error {
	endpoint := powerOffEndpoint
	if on {
		endpoint = powerOnEndpoint
	}

	if _, err := d.client.Call(ctx, endpoint, nil); err != nil {
		return fmt.Errorf("failed to set power: %w", err)
	}

	d.mu.Lock()
	d.state.IsOn = on
	d.mu.Unlock()

	d.logger.Info("Power state changed", "on", on)
	return nil
}

// SetRotationSpeed maps a 0-100 intensity to the first timer's run seconds.
// Zero is a no-op (mapping "stop" to power-off is the caller's job). The
// timer list is fetched fresh every time so unmodeled fields are preserved.
func (d *Device) SetRotationSpeed(ctx context.Context, pct int) error {
	if pct == 0 {
		return nil
	}

	timer, err := d.fetchTimer(ctx)
	if err != nil {
		return err
	}

	seconds := pct * 3
	if seconds < minRunSeconds {
		seconds = minRunSeconds
	}

	params := map[string]string{
		"timerId": timer.TimerID.String(),
		"uid":     timer.UID.String(),
		"name":    timer.Name,
		"start":   timer.Start,
		"stop":    timer.Stop,
		"mode":    timer.Mode.String(),
		"run":     strconv.Itoa(seconds),
		"suspend": strconv.Itoa(timer.Suspend),
	}

	if _, err := d.client.Call(ctx, timerUpdateEndpoint, params); err != nil {
		return fmt.Errorf("failed to update timer: %w", err)
	}

	d.mu.Lock()
	timer.Run = seconds
	d.timerCache = timer
	d.mu.Unlock()

	d.logger.Info("Rotation speed changed", "percent", pct, "run_seconds", seconds)
	return nil
}

// RotationSpeed reads the intensity from the last-fetched timer. Before any
// timer has been cached it reports a fixed default.
func (d *Device) RotationSpeed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timerCache == nil {
		return defaultRotationPct
	}
	return runSecondsToPct(d.timerCache.Run)
}

// fetchTimer retrieves the device's timer list and caches the first entry.
func (d *Device) fetchTimer(ctx context.Context) (*Timer, error) {
	envelope, err := d.client.Call(ctx, timerListEndpoint, map[string]string{"isBluetooth": "0"})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch timers: %w", err)
	}

	var timers []Timer
	if err := json.Unmarshal(envelope.Data, &timers); err != nil {
		return nil, &InvalidResponseError{Prefix: bodyPrefix(envelope.Data)}
	}
	if len(timers) == 0 {
		return nil, ErrNoTimers
	}

	timer := timers[0]
	d.mu.Lock()
	d.timerCache = &timer
	d.mu.Unlock()

	return &timer, nil
}

// SetLock locks or unlocks the device's physical controls. On failure the
// locally observed flag is reverted shortly afterwards so an optimistic UI
// settles back to reality; the rollback itself cannot fail the operation.
func (d *Device) SetLock(ctx context.Context, locked bool) error {
	d.mu.Lock()
	d.state.Locked = locked
	d.mu.Unlock()

	var err error
	if locked {
		_, err = d.client.Call(ctx, lockEndpoint, nil)
	} else {
		_, err = d.client.Call(ctx, unlockEndpoint, map[string]string{"days": "0", "name": ""})
	}

	if err != nil {
		time.AfterFunc(lockRollbackDelay, func() {
			d.mu.Lock()
			d.state.Locked = !locked
			d.mu.Unlock()
		})
		return fmt.Errorf("failed to set lock: %w", err)
	}

	d.logger.Info("Lock state changed", "locked", locked)
	return nil
}

// ResetConsumable tells the device its reservoir was refilled.
func (d *Device) ResetConsumable(ctx context.Context) error {
	if _, err := d.client.Call(ctx, liquidResetEndpoint, map[string]string{"liquidLevel": "100"}); err != nil {
		return fmt.Errorf("failed to reset liquid level: %w", err)
	}

	d.mu.Lock()
	d.state.LiquidLevel = 100
	d.mu.Unlock()

	d.logger.Info("Consumable level reset")
	return nil
}

// statusPayload is the data object of a status poll. The power field is
// only honored when it is a strict boolean; lockMark follows the cloud's
// loose truthiness.
type statusPayload struct {
	Status      any `json:"status"`
	Run         int `json:"run"`
	LiquidLevel int `json:"liquidLevel"`
	LockMark    any `json:"lockMark"`
}

// Poll performs one status call and replaces the snapshot wholesale. A
// success envelope without a data payload leaves the cache untouched.
func (d *Device) Poll(ctx context.Context) error {
	envelope, err := d.client.Call(ctx, statusEndpoint, map[string]string{"checkPermissions": "0"})
	if err != nil {
		return fmt.Errorf("status poll failed: %w", err)
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}

	var payload statusPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return &InvalidResponseError{Prefix: bodyPrefix(envelope.Data)}
	}

	isOn, _ := payload.Status.(bool)
	state := State{
		IsOn:        isOn,
		RunSeconds:  payload.Run,
		LiquidLevel: payload.LiquidLevel,
		Locked:      truthy(payload.LockMark),
	}

	d.mu.Lock()
	d.state = state
	d.mu.Unlock()

	d.logger.Debug("State polled",
		"on", state.IsOn,
		"run_seconds", state.RunSeconds,
		"liquid_level", state.LiquidLevel,
		"locked", state.Locked)

	for _, sink := range d.sinks {
		if err := sink.SaveDeviceState(ctx, d.NID(), state); err != nil {
			d.logger.Error("State sink failed", "error", err)
		}
	}

	return nil
}

// Start runs the polling loop: one poll immediately, then one per interval
// until Stop. Ticks run sequentially so at most one poll is ever in flight,
// and poll failures are logged and swallowed.
func (d *Device) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	go func() {
		d.pollOnce()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				d.pollOnce()
			case <-d.stopChan:
				d.logger.Info("Poller stopped")
				return
			}
		}
	}()
}

// Stop terminates the polling loop. Safe to call more than once; the
// shutdown path reaches it both directly and via a deferred StopAll.
func (d *Device) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopChan)
	})
}

func (d *Device) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := d.Poll(ctx); err != nil {
		d.logger.Error("Poll failed", "error", err)
	}
}

// runSecondsToPct maps timer run seconds to the 0-100 intensity scale.
func runSecondsToPct(seconds int) int {
	pct := int(math.Round(float64(seconds) / 3))
	if pct > 100 {
		return 100
	}
	return pct
}

// truthy interprets the cloud's loosely typed flag fields.
func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return false
	}
}
