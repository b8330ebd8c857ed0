package command

import (
	"fmt"

	"github.com/banshee-robotics/rovercore/internal/arm"
	"github.com/banshee-robotics/rovercore/internal/drive"
	"github.com/banshee-robotics/rovercore/internal/monitoring"
	"github.com/banshee-robotics/rovercore/internal/safety"
	"github.com/banshee-robotics/rovercore/internal/sensor"
)

// Notifier delivers acknowledgements and events to the transport.
type Notifier interface {
	Notify(event string)
}

// Interlock is the safety surface the router consults before any motion
// command touches an actuator.
type Interlock interface {
	MovementSafe(m safety.Motion) bool
	AdjustSpeed(requested int, movingForward bool) int
	TriggerManual()
	Clear()
	Enable()
	Disable()
	SetAggressiveness(level safety.Aggressiveness)
}

// Sensors is the filter surface reachable from system commands.
type Sensors interface {
	Enable()
	Disable()
	SetCollisionDistance(cm float64)
	Calibrate(burst int) ([]sensor.CalibrationReport, error)
}

// Outcome summarises how a routed command ended, for acknowledgements and
// the telemetry log.
type Outcome int

const (
	// OutcomeOK means the command executed.
	OutcomeOK Outcome = iota
	// OutcomeBlocked means the interlock vetoed a well-formed motion
	// command. Expected steady-state behaviour, not a fault.
	OutcomeBlocked
	// OutcomeRejected means the addressed actuator refused the command.
	OutcomeRejected
	// OutcomeUnknown means the type token matched nothing.
	OutcomeUnknown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeRejected:
		return "rejected"
	case OutcomeUnknown:
		return "unknown"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// calibrationBurst is the sample count per direction for CALIBRATE_SENSORS.
const calibrationBurst = 10

// Router dispatches parsed commands to the actuators and the interlock.
// The ordering invariant: for motion commands the interlock is always
// consulted before any actuator state changes.
type Router struct {
	interlock Interlock
	motors    *drive.Motors
	arm       *arm.Arm
	sensors   Sensors
	notify    Notifier

	// StatusEvents supplies the lines STATUS emits. Set by the control
	// loop after construction.
	StatusEvents func() []string
}

// NewRouter wires a Router to its collaborators.
func NewRouter(interlock Interlock, motors *drive.Motors, a *arm.Arm, sensors Sensors, notify Notifier) *Router {
	return &Router{
		interlock: interlock,
		motors:    motors,
		arm:       a,
		sensors:   sensors,
		notify:    notify,
	}
}

// Route executes one command and emits exactly one acknowledgement:
// OK:<TYPE>, ERR:<TYPE>, or BLOCKED:<TYPE>.
func (r *Router) Route(cmd Command) Outcome {
	var out Outcome
	switch cmd.Op.Kind() {
	case KindMotion:
		out = r.routeMotion(cmd)
	case KindArm:
		out = r.routeArm(cmd)
	case KindSystem:
		out = r.routeSystem(cmd)
	default:
		r.notify.Notify("ERROR_UNKNOWN_COMMAND:" + cmd.Type)
		return OutcomeUnknown
	}

	switch out {
	case OutcomeOK:
		r.notify.Notify("OK:" + cmd.Type)
	case OutcomeBlocked:
		r.notify.Notify("BLOCKED:" + cmd.Type)
	case OutcomeRejected:
		r.notify.Notify("ERR:" + cmd.Type)
	}
	return out
}

func (r *Router) routeMotion(cmd Command) Outcome {
	switch cmd.Op {
	case OpStop:
		r.motors.StopAll()
		return OutcomeOK

	case OpForward:
		if !r.interlock.MovementSafe(safety.MotionForward) {
			return OutcomeBlocked
		}
		speed := r.interlock.AdjustSpeed(clampInt(cmd.Value1, 0, 100), true)
		if err := r.motors.MoveForward(speed); err != nil {
			return OutcomeRejected
		}
		return OutcomeOK

	case OpBackward:
		if !r.interlock.MovementSafe(safety.MotionBackward) {
			return OutcomeBlocked
		}
		speed := r.interlock.AdjustSpeed(clampInt(cmd.Value1, 0, 100), false)
		if err := r.motors.MoveBackward(speed); err != nil {
			return OutcomeRejected
		}
		return OutcomeOK

	case OpLeft:
		if !r.interlock.MovementSafe(safety.MotionTurn) {
			return OutcomeBlocked
		}
		if err := r.motors.TurnLeft(clampInt(cmd.Value1, 0, 100)); err != nil {
			return OutcomeRejected
		}
		return OutcomeOK

	case OpRight:
		if !r.interlock.MovementSafe(safety.MotionTurn) {
			return OutcomeBlocked
		}
		if err := r.motors.TurnRight(clampInt(cmd.Value1, 0, 100)); err != nil {
			return OutcomeRejected
		}
		return OutcomeOK

	case OpTank:
		left := clampInt(cmd.Value1, -100, 100)
		right := clampInt(cmd.Value2, -100, 100)
		// Each side exposes the sensor on the side it drives toward.
		if (left > 0 || right > 0) && !r.interlock.MovementSafe(safety.MotionForward) {
			return OutcomeBlocked
		}
		if (left < 0 || right < 0) && !r.interlock.MovementSafe(safety.MotionBackward) {
			return OutcomeBlocked
		}
		if err := r.motors.TankDrive(left, right); err != nil {
			return OutcomeRejected
		}
		return OutcomeOK
	}
	return OutcomeUnknown
}

func (r *Router) routeArm(cmd Command) Outcome {
	var err error
	switch cmd.Op {
	case OpArmHome:
		err = r.arm.MoveToHome()
	case OpArmPreset:
		err = r.arm.MoveToPreset(clampInt(cmd.Value1, 1, 5))
	case OpServo:
		err = r.arm.SetAngle(cmd.Servo, cmd.Value1)
	case OpGripperOpen:
		err = r.arm.OpenGripper()
	case OpGripperClose:
		err = r.arm.CloseGripper()
	case OpArmEnable:
		r.arm.Enable()
	case OpArmDisable:
		r.arm.Disable()
	case OpServoSpeed:
		r.arm.SetMovementSpeed(cmd.Value1)
	}
	if err != nil {
		monitoring.Debug("arm command rejected", "type", cmd.Type, "err", err)
		return OutcomeRejected
	}
	return OutcomeOK
}

func (r *Router) routeSystem(cmd Command) Outcome {
	switch cmd.Op {
	case OpEmergency:
		// TriggerManual stops the motors and emits the transition event;
		// the arm freezes in place separately.
		r.interlock.TriggerManual()
		r.arm.EmergencyStop()
		return OutcomeOK

	case OpSensorsEnable:
		r.sensors.Enable()
		r.interlock.Enable()
		return OutcomeOK

	case OpSensorsDisable:
		r.sensors.Disable()
		r.interlock.Disable()
		return OutcomeOK

	case OpCollisionDist:
		r.sensors.SetCollisionDistance(float64(cmd.Value1))
		return OutcomeOK

	case OpAggressiveness:
		r.interlock.SetAggressiveness(safety.Aggressiveness(clampInt(cmd.Value1, 1, 3)))
		return OutcomeOK

	case OpSpeed:
		r.motors.SetGlobalSpeed(cmd.Value1)
		return OutcomeOK

	case OpPing:
		r.notify.Notify("PONG")
		return OutcomeOK

	case OpStatus:
		if r.StatusEvents != nil {
			for _, ev := range r.StatusEvents() {
				r.notify.Notify(ev)
			}
		}
		return OutcomeOK

	case OpCalibrateSensors:
		reports, err := r.sensors.Calibrate(calibrationBurst)
		if err != nil {
			return OutcomeRejected
		}
		for _, rep := range reports {
			r.notify.Notify(fmt.Sprintf("CALIBRATED:%s,%.1f,%.1f", rep.Direction, rep.MeanCm, rep.StdDevCm))
		}
		return OutcomeOK

	case OpReset:
		r.motors.StopAll()
		r.interlock.Clear()
		r.interlock.Enable()
		r.arm.Enable()
		return OutcomeOK
	}
	return OutcomeUnknown
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
