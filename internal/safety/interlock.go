// Package safety implements the collision-avoidance interlock.
//
// The interlock sits between command routing and actuation: every motion
// request is checked against the stabilised sensor state before any motor
// target changes, and the interlock can force an emergency stop on its own
// regardless of which command is in flight.
package safety

import (
	"fmt"
	"time"

	"github.com/banshee-robotics/rovercore/internal/monitoring"
	"github.com/banshee-robotics/rovercore/internal/sensor"
	"github.com/banshee-robotics/rovercore/internal/timeutil"
)

// ProximityMonitor is the sensor surface the interlock consumes.
type ProximityMonitor interface {
	CollisionRisk(dir sensor.Direction) bool
	ObstacleDetected(dir sensor.Direction) bool
	Distance(dir sensor.Direction) float64
	SetCollisionDistance(cm float64)
	SetWarningDistance(cm float64)
}

// MotorStopper force-zeroes motor targets on an emergency transition and
// releases the resulting latch when the stop clears.
type MotorStopper interface {
	EmergencyStop()
	StopAll()
}

// Notifier delivers one event to the transport per state transition.
type Notifier interface {
	Notify(event string)
}

// Motion classifies a movement request by the sensor direction it exposes.
type Motion int

const (
	MotionForward Motion = iota
	MotionBackward
	MotionTurn
)

// Aggressiveness selects a named (collision, warning) threshold pair.
type Aggressiveness int

const (
	Conservative Aggressiveness = 1
	Normal       Aggressiveness = 2
	Aggressive   Aggressiveness = 3
)

func (a Aggressiveness) String() string {
	switch a {
	case Conservative:
		return "conservative"
	case Normal:
		return "normal"
	case Aggressive:
		return "aggressive"
	}
	return fmt.Sprintf("aggressiveness(%d)", int(a))
}

// thresholds maps each aggressiveness level to its distance pair.
var thresholds = map[Aggressiveness]struct{ collision, warning float64 }{
	Conservative: {25, 60},
	Normal:       {15, 50},
	Aggressive:   {10, 30},
}

// obstacleSpeedCap bounds the de-rated speed when an obstacle (but not yet a
// collision risk) is in the path.
const obstacleSpeedCap = 30

// Interlock owns the emergency-stop state machine. States are NORMAL and
// EMERGENCY_STOPPED; the zero state is NORMAL with automatic triggering
// enabled.
type Interlock struct {
	sensors ProximityMonitor
	motors  MotorStopper
	notify  Notifier
	clock   timeutil.Clock

	enabled   bool
	stopped   bool
	manual    bool
	stoppedAt time.Time
	reason    string
	level     Aggressiveness
	hold      time.Duration
}

// New constructs an Interlock in the NORMAL state with automatic triggering
// enabled at normal aggressiveness. hold is the minimum time an automatic
// stop stays latched after its trigger.
func New(sensors ProximityMonitor, motors MotorStopper, notify Notifier, clock timeutil.Clock, hold time.Duration) *Interlock {
	return &Interlock{
		sensors: sensors,
		motors:  motors,
		notify:  notify,
		clock:   clock,
		enabled: true,
		level:   Normal,
		hold:    hold,
	}
}

// Check re-evaluates the state machine against current sensor state. Called
// once per scheduler tick, before any queued command is routed.
func (il *Interlock) Check() {
	if !il.enabled {
		return
	}

	frontRisk := il.sensors.CollisionRisk(sensor.Front)
	rearRisk := il.sensors.CollisionRisk(sensor.Rear)

	if frontRisk || rearRisk {
		dir := sensor.Front
		if !frontRisk {
			dir = sensor.Rear
		}
		il.trigger(fmt.Sprintf("collision risk %s at %.1fcm", dir, il.sensors.Distance(dir)), false)
		return
	}

	// Risk has cleared everywhere: auto-clear once the hold elapses.
	// Manual stops never auto-clear.
	if il.stopped && !il.manual && il.clock.Since(il.stoppedAt) >= il.hold {
		il.Clear()
	}
}

// trigger moves to EMERGENCY_STOPPED. Re-entrant triggers are no-ops so the
// transport sees exactly one notification per transition.
func (il *Interlock) trigger(reason string, manual bool) {
	if il.stopped {
		if manual {
			il.manual = true
		}
		return
	}
	il.stopped = true
	il.manual = manual
	il.stoppedAt = il.clock.Now()
	il.reason = reason

	il.motors.EmergencyStop()
	il.notify.Notify("EMERGENCY_STOP:" + reason)
	monitoring.Warn("emergency stop", "reason", reason, "manual", manual)
}

// TriggerManual latches an emergency stop that only Clear releases.
func (il *Interlock) TriggerManual() {
	il.trigger("manual emergency command", true)
}

// Clear returns to NORMAL, releases the motor latch, and emits one
// notification. Safe to call in any state.
func (il *Interlock) Clear() {
	if !il.stopped {
		return
	}
	il.stopped = false
	il.manual = false
	il.reason = ""
	il.motors.StopAll()
	il.notify.Notify("EMERGENCY_CLEARED")
	monitoring.Info("emergency stop cleared")
}

// EmergencyStopActive reports whether the interlock is tripped.
func (il *Interlock) EmergencyStopActive() bool {
	return il.stopped
}

// StopReason returns the reason recorded at the last trigger.
func (il *Interlock) StopReason() string {
	return il.reason
}

// Enable re-arms automatic triggering.
func (il *Interlock) Enable() {
	il.enabled = true
	monitoring.Info("collision avoidance enabled")
}

// Disable forces NORMAL and suppresses automatic triggering until Enable.
func (il *Interlock) Disable() {
	il.enabled = false
	il.Clear()
	monitoring.Warn("collision avoidance disabled")
}

// Enabled reports whether automatic triggering is armed.
func (il *Interlock) Enabled() bool {
	return il.enabled
}

// MovementSafe reports whether a motion in the given direction is
// admissible right now. Forward motion needs a risk-free front, backward a
// risk-free rear; turning in place is blocked only when both directions
// report risk at once. Nothing is admissible while the interlock is
// tripped.
func (il *Interlock) MovementSafe(m Motion) bool {
	if !il.enabled {
		return true
	}
	if il.stopped {
		return false
	}
	switch m {
	case MotionForward:
		return !il.sensors.CollisionRisk(sensor.Front)
	case MotionBackward:
		return !il.sensors.CollisionRisk(sensor.Rear)
	case MotionTurn:
		return !(il.sensors.CollisionRisk(sensor.Front) && il.sensors.CollisionRisk(sensor.Rear))
	}
	return true
}

// AdjustSpeed de-rates a requested speed for the conditions ahead: zero on
// collision risk, at most obstacleSpeedCap when an obstacle is detected,
// otherwise unchanged.
func (il *Interlock) AdjustSpeed(requested int, movingForward bool) int {
	if !il.enabled {
		return requested
	}

	dir := sensor.Front
	if !movingForward {
		dir = sensor.Rear
	}

	if il.sensors.CollisionRisk(dir) {
		return 0
	}
	if il.sensors.ObstacleDetected(dir) {
		half := requested / 2
		if half < 0 {
			half = 0
		}
		if half > obstacleSpeedCap {
			half = obstacleSpeedCap
		}
		return half
	}
	return requested
}

// SetAggressiveness applies a named threshold pair to the sensor filter.
// This is the only path from user-tunable policy to the filter thresholds.
// Out-of-range levels clamp to the nearest valid level.
func (il *Interlock) SetAggressiveness(level Aggressiveness) {
	if level < Conservative {
		level = Conservative
	}
	if level > Aggressive {
		level = Aggressive
	}
	il.level = level

	t := thresholds[level]
	il.sensors.SetCollisionDistance(t.collision)
	il.sensors.SetWarningDistance(t.warning)
	monitoring.Info("aggressiveness set", "level", level.String())
}

// AggressivenessLevel returns the active level.
func (il *Interlock) AggressivenessLevel() Aggressiveness {
	return il.level
}

// Snapshot is a read-only copy of the interlock state for status reporting.
type Snapshot struct {
	Enabled        bool   `json:"enabled"`
	EmergencyStop  bool   `json:"emergency_stop"`
	Manual         bool   `json:"manual"`
	Reason         string `json:"reason,omitempty"`
	Aggressiveness string `json:"aggressiveness"`
}

// Snapshot returns the current interlock state for status reporting.
func (il *Interlock) Snapshot() Snapshot {
	return Snapshot{
		Enabled:        il.enabled,
		EmergencyStop:  il.stopped,
		Manual:         il.manual,
		Reason:         il.reason,
		Aggressiveness: il.level.String(),
	}
}
