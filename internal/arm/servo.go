// Package arm holds the actuator state machine for the six-servo arm.
//
// Writes record targets only; Advance moves each servo toward its target by
// a bounded step per tick, so arm motion never blocks the control loop.
package arm

import (
	"errors"
	"fmt"

	"github.com/banshee-robotics/rovercore/internal/config"
	"github.com/banshee-robotics/rovercore/internal/monitoring"
)

// Channel identifies one servo in the arm chain.
type Channel int

const (
	Base Channel = iota
	Shoulder
	Elbow
	WristRot
	WristTilt
	Gripper

	channelCount = 6
)

func (c Channel) String() string {
	switch c {
	case Base:
		return "base"
	case Shoulder:
		return "shoulder"
	case Elbow:
		return "elbow"
	case WristRot:
		return "wrist-rot"
	case WristTilt:
		return "wrist-tilt"
	case Gripper:
		return "gripper"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// ServoBus writes an angle in degrees to one servo. Fire-and-forget.
type ServoBus interface {
	WriteServo(ch Channel, angleDegrees int)
}

var (
	// ErrArmDisabled rejects writes while the arm is disabled.
	ErrArmDisabled = errors.New("arm disabled")

	// ErrUnsafePose rejects angle combinations that would self-collide.
	ErrUnsafePose = errors.New("unsafe pose rejected")

	// ErrUnknownChannel rejects out-of-range servo indices.
	ErrUnknownChannel = errors.New("unknown servo channel")
)

// Self-collision guard: retracting the elbow under a raised shoulder drives
// the gripper into the chassis.
const (
	minElbowWithRaisedShoulder = 30
	raisedShoulderAngle        = 45
)

type servoState struct {
	current int
	target  int
}

// Arm tracks current and target angle per channel and ramps currents toward
// targets at a tunable degrees-per-tick rate.
type Arm struct {
	bus           ServoBus
	states        [channelCount]servoState
	movementSpeed int
	enabled       bool
}

// defaultAngle is the attach position for every servo.
const defaultAngle = 90

// New constructs an enabled Arm with all servos at the default angle.
func New(bus ServoBus, cfg *config.Tuning) *Arm {
	a := &Arm{
		bus:           bus,
		movementSpeed: cfg.GetServoSpeed(),
		enabled:       true,
	}
	for i := range a.states {
		a.states[i] = servoState{current: defaultAngle, target: defaultAngle}
	}
	return a
}

// SetAngle records a new target for one servo. The angle clamps to [0,180].
// The write is rejected entirely while the arm is disabled, or when the
// resulting target combination violates the self-collision guard.
func (a *Arm) SetAngle(ch Channel, angle int) error {
	if ch < 0 || ch >= channelCount {
		return ErrUnknownChannel
	}
	if !a.enabled {
		return ErrArmDisabled
	}
	angle = clampAngle(angle)

	elbow := a.states[Elbow].target
	shoulder := a.states[Shoulder].target
	switch ch {
	case Elbow:
		elbow = angle
	case Shoulder:
		shoulder = angle
	}
	if err := checkPose(elbow, shoulder); err != nil {
		return err
	}

	a.states[ch].target = angle
	return nil
}

// checkPose rejects elbow/shoulder target combinations that would
// self-collide.
func checkPose(elbow, shoulder int) error {
	if elbow < minElbowWithRaisedShoulder && shoulder > raisedShoulderAngle {
		return fmt.Errorf("%w: elbow %d with shoulder %d", ErrUnsafePose, elbow, shoulder)
	}
	return nil
}

// Advance moves every servo one bounded step toward its target, landing
// exactly on the target once the remaining delta fits in one step.
func (a *Arm) Advance() {
	if !a.enabled {
		return
	}
	for ch := Channel(0); ch < channelCount; ch++ {
		s := &a.states[ch]
		if s.current == s.target {
			continue
		}
		diff := s.target - s.current
		if absInt(diff) <= a.movementSpeed {
			s.current = s.target
		} else if diff > 0 {
			s.current += a.movementSpeed
		} else {
			s.current -= a.movementSpeed
		}
		a.bus.WriteServo(ch, s.current)
	}
}

// Pose is a full six-channel angle assignment.
type Pose [channelCount]int

// Preset poses. Each pose names all six targets so applying one is atomic:
// every channel's target changes in the same tick.
var (
	PoseHome   = Pose{90, 90, 90, 90, 40, 90}
	PosePickup = Pose{90, 60, 60, 90, 40, 180}
	PosePlace  = Pose{90, 90, 90, 90, 40, 90}
	PoseRest   = Pose{90, 150, 150, 90, 40, 90}
)

// ApplyPose sets all six targets in one call. The guard is checked against
// the final angle combination, not the intermediate per-channel assignments,
// so a pose either lands whole or leaves every target untouched.
func (a *Arm) ApplyPose(p Pose) error {
	if !a.enabled {
		return ErrArmDisabled
	}
	for ch := range p {
		p[ch] = clampAngle(p[ch])
	}
	if err := checkPose(p[Elbow], p[Shoulder]); err != nil {
		return err
	}
	for ch := Channel(0); ch < channelCount; ch++ {
		a.states[ch].target = p[ch]
	}
	return nil
}

// MoveToHome targets the home pose.
func (a *Arm) MoveToHome() error {
	return a.ApplyPose(PoseHome)
}

// MoveToPreset targets a numbered preset: 1=pickup, 2=place, 3=rest.
// Unknown presets fall back to home.
func (a *Arm) MoveToPreset(n int) error {
	switch n {
	case 1:
		return a.ApplyPose(PosePickup)
	case 2:
		return a.ApplyPose(PosePlace)
	case 3:
		return a.ApplyPose(PoseRest)
	default:
		return a.MoveToHome()
	}
}

// OpenGripper targets the gripper fully open.
func (a *Arm) OpenGripper() error {
	return a.SetAngle(Gripper, 180)
}

// CloseGripper targets the gripper fully closed.
func (a *Arm) CloseGripper() error {
	return a.SetAngle(Gripper, 0)
}

// SetMovementSpeed sets the per-tick ramp step in degrees, clamped to [1,5].
func (a *Arm) SetMovementSpeed(speed int) {
	if speed < 1 {
		speed = 1
	}
	if speed > 5 {
		speed = 5
	}
	a.movementSpeed = speed
	monitoring.Info("servo speed set", "degrees_per_tick", speed)
}

// MovementSpeed returns the active ramp step in degrees per tick.
func (a *Arm) MovementSpeed() int { return a.movementSpeed }

// Enable re-admits servo writes.
func (a *Arm) Enable() {
	a.enabled = true
	monitoring.Info("arm enabled")
}

// Disable rejects further writes. Currents hold their last value.
func (a *Arm) Disable() {
	a.enabled = false
	monitoring.Info("arm disabled")
}

// Enabled reports whether the arm accepts writes.
func (a *Arm) Enabled() bool { return a.enabled }

// StopAll freezes every target at its current angle, halting motion without
// a positional jump.
func (a *Arm) StopAll() {
	for i := range a.states {
		a.states[i].target = a.states[i].current
	}
}

// EmergencyStop freezes all motion in place and disables further writes
// until Enable.
func (a *Arm) EmergencyStop() {
	a.StopAll()
	a.enabled = false
	monitoring.Warn("arm emergency stop")
}

// Angle returns the current angle of one servo, or -1 for a bad channel.
func (a *Arm) Angle(ch Channel) int {
	if ch < 0 || ch >= channelCount {
		return -1
	}
	return a.states[ch].current
}

// Target returns the target angle of one servo, or -1 for a bad channel.
func (a *Arm) Target(ch Channel) int {
	if ch < 0 || ch >= channelCount {
		return -1
	}
	return a.states[ch].target
}

// Moving reports whether any servo has not yet reached its target.
func (a *Arm) Moving() bool {
	for i := range a.states {
		if a.states[i].current != a.states[i].target {
			return true
		}
	}
	return false
}

// Snapshot is a read-only copy of the arm state for status reporting.
type Snapshot struct {
	Angles  [channelCount]int `json:"angles"`
	Speed   int               `json:"speed"`
	Enabled bool              `json:"enabled"`
	Moving  bool              `json:"moving"`
}

// Snapshot returns the current arm state for status reporting.
func (a *Arm) Snapshot() Snapshot {
	var s Snapshot
	for i := range a.states {
		s.Angles[i] = a.states[i].current
	}
	s.Speed = a.movementSpeed
	s.Enabled = a.enabled
	s.Moving = a.Moving()
	return s
}

func clampAngle(v int) int {
	if v < 0 {
		return 0
	}
	if v > 180 {
		return 180
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
