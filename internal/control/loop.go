// Package control runs the cooperative scheduler that composes the sensor
// filter, safety interlock, command queue, and actuator state machines.
//
// One tick is one pass of: sensor update, interlock re-check, bounded
// command drain, actuator advance. The interlock always runs before any
// queued command is routed, so a stale queued motion command can never act
// on newer sensor state than the interlock has seen.
package control

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/banshee-robotics/rovercore/internal/arm"
	"github.com/banshee-robotics/rovercore/internal/command"
	"github.com/banshee-robotics/rovercore/internal/drive"
	"github.com/banshee-robotics/rovercore/internal/monitoring"
	"github.com/banshee-robotics/rovercore/internal/safety"
	"github.com/banshee-robotics/rovercore/internal/sensor"
	"github.com/banshee-robotics/rovercore/internal/timeutil"
)

// Notifier delivers events to the transport.
type Notifier interface {
	Notify(event string)
}

// Recorder persists executed commands, emergency transitions, and periodic
// status snapshots. A nil Recorder disables persistence.
type Recorder interface {
	RecordCommand(cmd command.Command, outcome command.Outcome) error
	RecordEmergency(active bool, reason string) error
	RecordSnapshot(s Status) error
}

// Status is the aggregate state snapshot formatted for the companion app.
type Status struct {
	Uptime    string          `json:"uptime"`
	Sensors   sensor.Snapshot `json:"sensors"`
	Drive     drive.Snapshot  `json:"drive"`
	Arm       arm.Snapshot    `json:"arm"`
	Interlock safety.Snapshot `json:"interlock"`
	QueueLen  int             `json:"queue_len"`
}

// Loop is the top-level scheduler. It exclusively owns the command queue;
// EnqueueCommand is the only entry point for the transport goroutine and is
// the only cross-goroutine touch point in the core.
type Loop struct {
	filter    *sensor.Filter
	interlock *safety.Interlock
	motors    *drive.Motors
	arm       *arm.Arm
	router    *command.Router
	notify    Notifier
	recorder  Recorder
	clock     timeutil.Clock

	queueMu sync.Mutex
	queue   *command.Queue

	tickInterval  time.Duration
	drainPerTick  int
	snapshotEvery int

	startedAt   time.Time
	tickCount   uint64
	prevStopped bool
}

// Config bundles the Loop's scheduling parameters.
type Config struct {
	TickInterval  time.Duration
	QueueCapacity int
	DrainPerTick  int
	SnapshotEvery int
}

// New wires a Loop to its components and registers the router's status
// callback.
func New(filter *sensor.Filter, interlock *safety.Interlock, motors *drive.Motors,
	a *arm.Arm, router *command.Router, notify Notifier, recorder Recorder,
	clock timeutil.Clock, cfg Config) *Loop {

	l := &Loop{
		filter:        filter,
		interlock:     interlock,
		motors:        motors,
		arm:           a,
		router:        router,
		notify:        notify,
		recorder:      recorder,
		clock:         clock,
		queue:         command.NewQueue(cfg.QueueCapacity),
		tickInterval:  cfg.TickInterval,
		drainPerTick:  cfg.DrainPerTick,
		snapshotEvery: cfg.SnapshotEvery,
		startedAt:     clock.Now(),
	}
	router.StatusEvents = l.statusEvents
	return l
}

// EnqueueCommand parses a raw line and appends it to the command queue.
// Returns false when the queue is full; the command is dropped and the
// transport notified.
func (l *Loop) EnqueueCommand(raw string) bool {
	cmd := command.Parse(raw, l.clock.Now())

	l.queueMu.Lock()
	ok := l.queue.Enqueue(cmd)
	l.queueMu.Unlock()

	if !ok {
		l.notify.Notify("ERROR_QUEUE_FULL")
		monitoring.Warn("command dropped, queue full", "type", cmd.Type)
	}
	return ok
}

// QueueLen returns the number of commands awaiting execution.
func (l *Loop) QueueLen() int {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	return l.queue.Len()
}

// Tick executes one scheduler pass.
func (l *Loop) Tick() {
	l.tickCount++

	l.filter.Update()
	l.interlock.Check()
	l.recordTransition()

	for i := 0; i < l.drainPerTick; i++ {
		l.queueMu.Lock()
		cmd, ok := l.queue.Dequeue()
		l.queueMu.Unlock()
		if !ok {
			break
		}

		outcome := l.router.Route(cmd)
		// Routing a system command may flip the interlock; capture it in
		// the same tick so the transition is not attributed to sensors.
		l.recordTransition()

		if l.recorder != nil {
			if err := l.recorder.RecordCommand(cmd, outcome); err != nil {
				monitoring.Error("record command", "err", err)
			}
		}
	}

	l.motors.Advance()
	l.arm.Advance()

	if l.recorder != nil && l.snapshotEvery > 0 && l.tickCount%uint64(l.snapshotEvery) == 0 {
		if err := l.recorder.RecordSnapshot(l.Snapshot()); err != nil {
			monitoring.Error("record snapshot", "err", err)
		}
	}
}

// recordTransition persists interlock state edges, one record per edge.
func (l *Loop) recordTransition() {
	stopped := l.interlock.EmergencyStopActive()
	if stopped == l.prevStopped {
		return
	}
	l.prevStopped = stopped
	if l.recorder == nil {
		return
	}
	if err := l.recorder.RecordEmergency(stopped, l.interlock.StopReason()); err != nil {
		monitoring.Error("record emergency transition", "err", err)
	}
}

// Run drives Tick at the configured interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.tickInterval)
	defer ticker.Stop()

	monitoring.Info("control loop started", "tick", l.tickInterval)
	for {
		select {
		case <-ctx.Done():
			// Leave the rover in the safest reachable state on shutdown.
			l.motors.EmergencyStop()
			l.arm.StopAll()
			monitoring.Info("control loop stopped")
			return ctx.Err()
		case <-ticker.C():
			l.Tick()
		}
	}
}

// Snapshot returns the aggregate state for status reporting.
func (l *Loop) Snapshot() Status {
	return Status{
		Uptime:    l.clock.Since(l.startedAt).Truncate(time.Second).String(),
		Sensors:   l.filter.Snapshot(),
		Drive:     l.motors.Snapshot(),
		Arm:       l.arm.Snapshot(),
		Interlock: l.interlock.Snapshot(),
		QueueLen:  l.QueueLen(),
	}
}

// statusEvents renders the STATUS command's notification lines.
func (l *Loop) statusEvents() []string {
	s := l.Snapshot()
	payload, err := json.Marshal(s)
	if err != nil {
		monitoring.Error("marshal status", "err", err)
		return []string{"STATUS:ERROR"}
	}
	return []string{"STATUS:" + string(payload)}
}
