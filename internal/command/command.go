// Package command parses, queues, and routes the rover's text protocol.
//
// Wire format: TYPE[:param[,param2]]. Parsing never fails: malformed numeric
// text degrades to zero and unrecognised types carry an unknown tag, so the
// queue never rejects input on content. Classification happens once at parse
// time and dispatch matches the resulting tag exhaustively.
package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/banshee-robotics/rovercore/internal/arm"
)

// Op tags a parsed command with its operation.
type Op int

const (
	OpUnknown Op = iota

	// Motion
	OpForward
	OpBackward
	OpLeft
	OpRight
	OpTank
	OpStop

	// Arm
	OpArmHome
	OpArmPreset
	OpServo
	OpGripperOpen
	OpGripperClose
	OpArmEnable
	OpArmDisable
	OpServoSpeed

	// System
	OpEmergency
	OpSensorsEnable
	OpSensorsDisable
	OpCollisionDist
	OpAggressiveness
	OpSpeed
	OpPing
	OpStatus
	OpCalibrateSensors
	OpReset
)

// Kind groups operations by the subsystem they address.
type Kind int

const (
	KindUnknown Kind = iota
	KindMotion
	KindArm
	KindSystem
)

// Kind returns the subsystem group for an operation.
func (op Op) Kind() Kind {
	switch op {
	case OpForward, OpBackward, OpLeft, OpRight, OpTank, OpStop:
		return KindMotion
	case OpArmHome, OpArmPreset, OpServo, OpGripperOpen, OpGripperClose,
		OpArmEnable, OpArmDisable, OpServoSpeed:
		return KindArm
	case OpEmergency, OpSensorsEnable, OpSensorsDisable, OpCollisionDist,
		OpAggressiveness, OpSpeed, OpPing, OpStatus, OpCalibrateSensors, OpReset:
		return KindSystem
	}
	return KindUnknown
}

// Command is an immutable parsed command. Produced by Parse, consumed
// exactly once by Router.Route.
type Command struct {
	Op        Op
	Type      string // upper-cased type token, used in acknowledgements
	Parameter string
	Value1    int
	Value2    int
	Servo     arm.Channel // valid when Op == OpServo
	Timestamp time.Time
}

// opTable maps exact type tokens to operations. SERVO<n> channels are
// handled separately in Parse.
var opTable = map[string]Op{
	"FORWARD":                  OpForward,
	"BACKWARD":                 OpBackward,
	"LEFT":                     OpLeft,
	"RIGHT":                    OpRight,
	"TANK":                     OpTank,
	"STOP":                     OpStop,
	"ARM_HOME":                 OpArmHome,
	"ARM_PRESET":               OpArmPreset,
	"GRIPPER_OPEN":             OpGripperOpen,
	"GRIPPER_CLOSE":            OpGripperClose,
	"ARM_ENABLE":               OpArmEnable,
	"ARM_DISABLE":              OpArmDisable,
	"SERVO_SPEED":              OpServoSpeed,
	"EMERGENCY":                OpEmergency,
	"SENSORS_ENABLE":           OpSensorsEnable,
	"SENSORS_DISABLE":          OpSensorsDisable,
	"COLLISION_DIST":           OpCollisionDist,
	"COLLISION_AGGRESSIVENESS": OpAggressiveness,
	"SPEED":                    OpSpeed,
	"PING":                     OpPing,
	"STATUS":                   OpStatus,
	"CALIBRATE_SENSORS":        OpCalibrateSensors,
	"RESET":                    OpReset,
}

// servoChannels maps servo type tokens to channels. Both numeric and named
// forms are accepted on the wire.
var servoChannels = map[string]arm.Channel{
	"SERVO1": arm.Base, "SERVO_BASE": arm.Base,
	"SERVO2": arm.Shoulder, "SERVO_SHOULDER": arm.Shoulder,
	"SERVO3": arm.Elbow, "SERVO_ELBOW": arm.Elbow,
	"SERVO4": arm.WristRot, "SERVO_WRIST_ROT": arm.WristRot,
	"SERVO5": arm.WristTilt, "SERVO_WRIST_TILT": arm.WristTilt,
	"SERVO6": arm.Gripper, "SERVO_GRIPPER": arm.Gripper,
}

// Parse converts one line of input into a Command. The input is upper-cased,
// split on the first ':' into type and parameter, and the parameter on the
// first ',' into two integer values. Missing or non-numeric values are zero.
func Parse(raw string, now time.Time) Command {
	line := strings.ToUpper(strings.TrimSpace(raw))

	cmd := Command{Timestamp: now}

	typ, param, hasParam := strings.Cut(line, ":")
	cmd.Type = strings.TrimSpace(typ)
	if hasParam {
		cmd.Parameter = strings.TrimSpace(param)
		first, second, hasSecond := strings.Cut(cmd.Parameter, ",")
		cmd.Value1 = atoi(first)
		if hasSecond {
			cmd.Value2 = atoi(second)
		}
	}

	if op, ok := opTable[cmd.Type]; ok {
		cmd.Op = op
	} else if ch, ok := servoChannels[cmd.Type]; ok {
		cmd.Op = OpServo
		cmd.Servo = ch
	}
	return cmd
}

// atoi parses a decimal integer, degrading to zero on malformed text.
func atoi(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}
