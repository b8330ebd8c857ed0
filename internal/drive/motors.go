// Package drive holds the actuator state machine for the four wheel motors.
//
// Targets are stored in the robot frame (positive = wheel drives the robot
// forward); the per-motor wiring correction sign is applied only at the
// hardware write. Motors have no modelled inertia, so Advance converges
// current to target in a single tick.
package drive

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-robotics/rovercore/internal/config"
	"github.com/banshee-robotics/rovercore/internal/monitoring"
	"github.com/banshee-robotics/rovercore/internal/timeutil"
)

// Motor identifies one of the four drive motors.
type Motor int

const (
	FrontLeft Motor = iota
	RearLeft
	FrontRight
	RearRight

	motorCount = 4
)

func (m Motor) String() string {
	switch m {
	case FrontLeft:
		return "front-left"
	case RearLeft:
		return "rear-left"
	case FrontRight:
		return "front-right"
	case RearRight:
		return "rear-right"
	}
	return fmt.Sprintf("motor(%d)", int(m))
}

// directionCorrection normalises wiring asymmetries: the right-side motors
// are mounted mirrored, so a positive robot-frame speed needs a negative
// PWM sign there.
var directionCorrection = [motorCount]int{1, 1, -1, -1}

// MotorBus writes a signed PWM percentage to one motor. Calls are
// fire-and-forget; the bus owns pin-level concerns.
type MotorBus interface {
	WriteMotor(m Motor, signedSpeed int)
}

// ErrSafetyStopped rejects motion while the latched emergency stop holds.
var ErrSafetyStopped = errors.New("motors latched by emergency stop")

// Motors tracks current and target speed per motor and owns the command-age
// watchdog and the latched emergency-stop flag.
type Motors struct {
	bus   MotorBus
	clock timeutil.Clock

	current [motorCount]int
	target  [motorCount]int

	multiplier   int
	minThreshold int

	timeout     time.Duration
	lastCommand time.Time

	safetyStop      bool
	watchdogTripped bool
}

// New constructs a Motors state machine with all targets zero.
func New(bus MotorBus, clock timeutil.Clock, cfg *config.Tuning) *Motors {
	return &Motors{
		bus:          bus,
		clock:        clock,
		multiplier:   cfg.GetSpeedMultiplier(),
		minThreshold: cfg.GetMinSpeedThreshold(),
		timeout:      cfg.GetCommandTimeout(),
		lastCommand:  clock.Now(),
	}
}

// scale clamps a robot-frame speed to [-100,100], applies the global
// multiplier, then snaps non-zero magnitudes below the stall threshold up
// to it. Motors stall below a minimum duty cycle; silently dropping small
// requests would be worse than enforcing the floor.
func (m *Motors) scale(speed int) int {
	speed = clampInt(speed, -100, 100)
	adjusted := speed * m.multiplier / 100

	if adjusted > 0 && adjusted < m.minThreshold {
		adjusted = m.minThreshold
	} else if adjusted < 0 && adjusted > -m.minThreshold {
		adjusted = -m.minThreshold
	}
	return adjusted
}

// setTarget records a scaled robot-frame target for one motor.
func (m *Motors) setTarget(idx Motor, speed int) {
	m.target[idx] = m.scale(speed)
}

// refresh marks a motion command as received, feeding the watchdog.
func (m *Motors) refresh() {
	m.lastCommand = m.clock.Now()
	m.watchdogTripped = false
}

// checkLatched rejects motion while the emergency latch holds.
func (m *Motors) checkLatched() error {
	if m.safetyStop {
		return ErrSafetyStopped
	}
	return nil
}

// MoveForward targets all wheels forward at the given speed percentage.
func (m *Motors) MoveForward(speed int) error {
	if err := m.checkLatched(); err != nil {
		return err
	}
	speed = clampInt(speed, 0, 100)
	for i := Motor(0); i < motorCount; i++ {
		m.setTarget(i, speed)
	}
	m.refresh()
	return nil
}

// MoveBackward targets all wheels in reverse at the given speed percentage.
func (m *Motors) MoveBackward(speed int) error {
	if err := m.checkLatched(); err != nil {
		return err
	}
	speed = clampInt(speed, 0, 100)
	for i := Motor(0); i < motorCount; i++ {
		m.setTarget(i, -speed)
	}
	m.refresh()
	return nil
}

// TurnLeft spins in place: left side reverse, right side forward.
func (m *Motors) TurnLeft(speed int) error {
	if err := m.checkLatched(); err != nil {
		return err
	}
	speed = clampInt(speed, 0, 100)
	m.setTarget(FrontLeft, -speed)
	m.setTarget(RearLeft, -speed)
	m.setTarget(FrontRight, speed)
	m.setTarget(RearRight, speed)
	m.refresh()
	return nil
}

// TurnRight spins in place: left side forward, right side reverse.
func (m *Motors) TurnRight(speed int) error {
	if err := m.checkLatched(); err != nil {
		return err
	}
	speed = clampInt(speed, 0, 100)
	m.setTarget(FrontLeft, speed)
	m.setTarget(RearLeft, speed)
	m.setTarget(FrontRight, -speed)
	m.setTarget(RearRight, -speed)
	m.refresh()
	return nil
}

// TankDrive drives the two sides independently with signed speeds.
func (m *Motors) TankDrive(left, right int) error {
	if err := m.checkLatched(); err != nil {
		return err
	}
	m.setTarget(FrontLeft, left)
	m.setTarget(RearLeft, left)
	m.setTarget(FrontRight, right)
	m.setTarget(RearRight, right)
	m.refresh()
	return nil
}

// StopAll zeroes every target and releases the emergency latch.
func (m *Motors) StopAll() {
	for i := range m.target {
		m.target[i] = 0
	}
	m.safetyStop = false
	m.refresh()
}

// EmergencyStop zeroes targets and currents, writes zeros to the bus
// immediately rather than waiting for the next Advance, and latches the
// safety-stop flag that only StopAll releases.
func (m *Motors) EmergencyStop() {
	for i := Motor(0); i < motorCount; i++ {
		m.target[i] = 0
		m.current[i] = 0
		m.bus.WriteMotor(i, 0)
	}
	m.safetyStop = true
}

// Advance runs the watchdog and converges current speeds to targets,
// writing any change to the bus with the wiring correction applied.
func (m *Motors) Advance() {
	if m.clock.Since(m.lastCommand) > m.timeout && !m.watchdogTripped {
		m.watchdogTripped = true
		if m.anyTargetSet() {
			monitoring.Warn("command watchdog expired, stopping motors", "timeout", m.timeout)
		}
		for i := range m.target {
			m.target[i] = 0
		}
	}

	for i := Motor(0); i < motorCount; i++ {
		if m.current[i] == m.target[i] {
			continue
		}
		m.current[i] = m.target[i]
		m.bus.WriteMotor(i, m.current[i]*directionCorrection[i])
	}
}

func (m *Motors) anyTargetSet() bool {
	for _, t := range m.target {
		if t != 0 {
			return true
		}
	}
	return false
}

// SetGlobalSpeed sets the global speed multiplier, clamped to [20,100].
func (m *Motors) SetGlobalSpeed(v int) {
	m.multiplier = clampInt(v, 20, 100)
	monitoring.Info("global speed set", "multiplier", m.multiplier)
}

// GlobalSpeed returns the active speed multiplier.
func (m *Motors) GlobalSpeed() int { return m.multiplier }

// Target returns the robot-frame target speed for one motor.
func (m *Motors) Target(idx Motor) int {
	if idx < 0 || idx >= motorCount {
		return 0
	}
	return m.target[idx]
}

// Current returns the robot-frame applied speed for one motor.
func (m *Motors) Current(idx Motor) int {
	if idx < 0 || idx >= motorCount {
		return 0
	}
	return m.current[idx]
}

// AnyRunning reports whether any motor has a non-zero applied speed.
func (m *Motors) AnyRunning() bool {
	for _, c := range m.current {
		if c != 0 {
			return true
		}
	}
	return false
}

// SafetyStopActive reports whether the emergency latch holds.
func (m *Motors) SafetyStopActive() bool { return m.safetyStop }

// Snapshot is a read-only copy of the drive state for status reporting.
type Snapshot struct {
	Speeds     [motorCount]int `json:"speeds"`
	Multiplier int             `json:"multiplier"`
	SafetyStop bool            `json:"safety_stop"`
}

// Snapshot returns the current drive state for status reporting.
func (m *Motors) Snapshot() Snapshot {
	return Snapshot{
		Speeds:     m.current,
		Multiplier: m.multiplier,
		SafetyStop: m.safetyStop,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
