package zone

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Default timings.
const (
	DefaultPowerSettle    = 500 * time.Millisecond
	DefaultVolumeSettle   = 250 * time.Millisecond
	DefaultUICorrection   = 250 * time.Millisecond
	DefaultRemoteDebounce = 2 * time.Second
	DefaultCallTimeout    = 10 * time.Second
	eventQueueSize        = 1024
)

var (
	// ErrZoneNotFound is returned when a zone reference matches nothing.
	ErrZoneNotFound = errors.New("zone not found")
	// ErrEngineStopped is returned once Run has exited.
	ErrEngineStopped = errors.New("zone engine stopped")
	// ErrUnsupported is returned for EQ changes on zones without the capability.
	ErrUnsupported = errors.New("operation not supported by zone")
)

// Options tunes the engine. Zero durations take the defaults.
type Options struct {
	Logger               *log.Logger
	PowerSettle          time.Duration
	VolumeSettle         time.Duration
	UICorrection         time.Duration
	RemoteDebounce       time.Duration
	CallTimeout          time.Duration
	RemoteVolumeOverride bool
	RemoteAutoGroup      bool
	Recorder             CommandRecorder
}

// CommandRecorder receives every accepted command.
type CommandRecorder interface {
	RecordCommand(cmd CommandRecord)
}

// CommandRecord describes one accepted command.
type CommandRecord struct {
	Action   string
	ZoneID   string
	ZoneName string
	Value    any
}

// Clock schedules callbacks. The engine only needs AfterFunc.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Engine owns the zone model and serializes every mutation through a
// single event loop.
type Engine struct {
	device DeviceClient
	logger *log.Logger
	opts   Options
	clock  Clock
	run    func(func())

	// index maps ids and lowercased names to ids. Immutable after NewEngine.
	index map[string]string
	names map[string]string

	events  chan any
	stopped chan struct{}
	once    sync.Once

	// Owned by the event loop.
	model                *Model
	guards               *guards
	syncing              bool
	remoteVolumeOverride bool
	remoteAutoGroup      bool
	zoneListeners        []func(Snapshot)
	globalListeners      []func(GlobalSnapshot)
}

// NewEngine builds the zone model from the descriptors.
func NewEngine(device DeviceClient, zones []Descriptor, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.PowerSettle <= 0 {
		opts.PowerSettle = DefaultPowerSettle
	}
	if opts.VolumeSettle <= 0 {
		opts.VolumeSettle = DefaultVolumeSettle
	}
	if opts.UICorrection <= 0 {
		opts.UICorrection = DefaultUICorrection
	}
	if opts.RemoteDebounce <= 0 {
		opts.RemoteDebounce = DefaultRemoteDebounce
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}

	model := NewModel(zones)
	e := &Engine{
		device:               device,
		logger:               opts.Logger,
		opts:                 opts,
		clock:                realClock{},
		run:                  func(f func()) { go f() },
		index:                make(map[string]string),
		names:                make(map[string]string),
		events:               make(chan any, eventQueueSize),
		stopped:              make(chan struct{}),
		model:                model,
		guards:               newGuards(),
		remoteVolumeOverride: opts.RemoteVolumeOverride,
		remoteAutoGroup:      opts.RemoteAutoGroup,
	}
	for _, z := range model.All() {
		e.index[z.ID] = z.ID
		e.names[z.ID] = z.Name
		if key := strings.ToLower(z.Name); key != "" {
			if _, taken := e.index[key]; !taken {
				e.index[key] = z.ID
			}
		}
	}
	return e
}

// OnSnapshot registers a per-zone snapshot listener. Register before Run.
// Listeners run on the event loop and must not block.
func (e *Engine) OnSnapshot(fn func(Snapshot)) {
	e.zoneListeners = append(e.zoneListeners, fn)
}

// OnGlobal registers an aggregate snapshot listener. Register before Run.
func (e *Engine) OnGlobal(fn func(GlobalSnapshot)) {
	e.globalListeners = append(e.globalListeners, fn)
}

// Resolve maps a zone id or name to its id.
func (e *Engine) Resolve(ref string) (string, error) {
	if id, ok := e.index[ref]; ok {
		return id, nil
	}
	if id, ok := e.index[strings.ToLower(ref)]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", ErrZoneNotFound, ref)
}

// Run processes events until ctx is done. It triggers an initial sync.
func (e *Engine) Run(ctx context.Context) error {
	defer e.once.Do(func() { close(e.stopped) })

	var notes <-chan Notification
	if e.device != nil {
		notes = e.device.Notifications()
	}

	e.logger.Printf("ZONE: engine started with %d zones", len(e.model.order))
	e.requestSync("startup")

	for {
		select {
		case <-ctx.Done():
			e.logger.Printf("ZONE: engine stopping")
			return ctx.Err()
		case ev := <-e.events:
			e.dispatch(ev)
		case n, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			e.dispatch(n)
		}
	}
}

// post queues an event for the loop. It reports false once the engine stopped.
func (e *Engine) post(ev any) bool {
	select {
	case <-e.stopped:
		return false
	default:
	}
	select {
	case e.events <- ev:
		return true
	case <-e.stopped:
		return false
	}
}

// ask runs fn on the event loop and waits for it.
func (e *Engine) ask(ctx context.Context, fn func(m *Model)) error {
	done := make(chan struct{})
	if !e.post(queryEvent{fn: fn, done: done}) {
		return ErrEngineStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrEngineStopped
	}
}

func (e *Engine) record(action, zoneID string, value any) {
	if e.opts.Recorder == nil {
		return
	}
	e.opts.Recorder.RecordCommand(CommandRecord{
		Action:   action,
		ZoneID:   zoneID,
		ZoneName: e.names[zoneID],
		Value:    value,
	})
}

// after schedules fire on the event loop once d elapses.
func (e *Engine) after(d time.Duration, label string, fire func()) {
	e.clock.AfterFunc(d, func() {
		e.post(timerFired{label: label, fire: fire})
	})
}

func (e *Engine) pushZone(z *Zone) {
	snap := SnapshotOf(z)
	for _, fn := range e.zoneListeners {
		fn(snap)
	}
}

func (e *Engine) pushGlobal() {
	snap := e.globalSnapshot()
	for _, fn := range e.globalListeners {
		fn(snap)
	}
}

func (e *Engine) globalSnapshot() GlobalSnapshot {
	snap := GlobalSnapshot{
		RemoteVolumeOverride: e.remoteVolumeOverride,
		RemoteAutoGroup:      e.remoteAutoGroup,
	}
	for _, z := range e.model.All() {
		snap.AnyPowered = snap.AnyPowered || z.Power
		snap.AnyMuted = snap.AnyMuted || z.Mute
	}
	return snap
}
