package command

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/banshee-robotics/rovercore/internal/arm"
	"github.com/banshee-robotics/rovercore/internal/config"
	"github.com/banshee-robotics/rovercore/internal/drive"
	"github.com/banshee-robotics/rovercore/internal/monitoring"
	"github.com/banshee-robotics/rovercore/internal/safety"
	"github.com/banshee-robotics/rovercore/internal/sensor"
	"github.com/banshee-robotics/rovercore/internal/testutil"
	"github.com/banshee-robotics/rovercore/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

// fakeInterlock is a scriptable safety surface.
type fakeInterlock struct {
	forwardSafe  bool
	backwardSafe bool
	turnSafe     bool
	adjusted     int
	adjustActive bool

	manualTriggers int
	clears         int
	level          safety.Aggressiveness
}

func newFakeInterlock() *fakeInterlock {
	return &fakeInterlock{forwardSafe: true, backwardSafe: true, turnSafe: true}
}

func (f *fakeInterlock) MovementSafe(m safety.Motion) bool {
	switch m {
	case safety.MotionForward:
		return f.forwardSafe
	case safety.MotionBackward:
		return f.backwardSafe
	}
	return f.turnSafe
}

func (f *fakeInterlock) AdjustSpeed(requested int, movingForward bool) int {
	if f.adjustActive {
		return f.adjusted
	}
	return requested
}

func (f *fakeInterlock) TriggerManual()                            { f.manualTriggers++ }
func (f *fakeInterlock) Clear()                                    { f.clears++ }
func (f *fakeInterlock) Enable()                                   {}
func (f *fakeInterlock) Disable()                                  {}
func (f *fakeInterlock) SetAggressiveness(l safety.Aggressiveness) { f.level = l }

// fakeFilterSurface is a scriptable sensor surface.
type fakeFilterSurface struct {
	enabled      bool
	collisionSet float64
	reports      []sensor.CalibrationReport
	calErr       error
}

func (f *fakeFilterSurface) Enable()                       { f.enabled = true }
func (f *fakeFilterSurface) Disable()                      { f.enabled = false }
func (f *fakeFilterSurface) SetCollisionDistance(c float64) { f.collisionSet = c }
func (f *fakeFilterSurface) Calibrate(burst int) ([]sensor.CalibrationReport, error) {
	return f.reports, f.calErr
}

type recordNotifier struct {
	events []string
}

func (r *recordNotifier) Notify(event string) { r.events = append(r.events, event) }

func (r *recordNotifier) has(event string) bool {
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

type motorBusStub struct{}

func (motorBusStub) WriteMotor(drive.Motor, int) {}

type servoBusStub struct{}

func (servoBusStub) WriteServo(arm.Channel, int) {}

type routerFixture struct {
	router    *Router
	interlock *fakeInterlock
	motors    *drive.Motors
	arm       *arm.Arm
	sensors   *fakeFilterSurface
	notify    *recordNotifier
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	fx := &routerFixture{
		interlock: newFakeInterlock(),
		motors:    drive.New(motorBusStub{}, clock, config.EmptyTuning()),
		arm:       arm.New(servoBusStub{}, config.EmptyTuning()),
		sensors:   &fakeFilterSurface{enabled: true},
		notify:    &recordNotifier{},
	}
	fx.router = NewRouter(fx.interlock, fx.motors, fx.arm, fx.sensors, fx.notify)
	return fx
}

func (fx *routerFixture) route(t *testing.T, raw string) Outcome {
	t.Helper()
	return fx.router.Route(Parse(raw, time.Unix(1000, 0)))
}

func TestForwardAcknowledged(t *testing.T) {
	fx := newRouterFixture(t)

	out := fx.route(t, "FORWARD:80")
	testutil.AssertEqual(t, out, OutcomeOK)
	testutil.AssertEqual(t, fx.notify.has("OK:FORWARD"), true)
	testutil.AssertEqual(t, fx.motors.Target(drive.FrontLeft), 48)
}

func TestForwardBlockedBeforeActuation(t *testing.T) {
	fx := newRouterFixture(t)
	fx.interlock.forwardSafe = false

	out := fx.route(t, "FORWARD:80")
	testutil.AssertEqual(t, out, OutcomeBlocked)
	testutil.AssertEqual(t, fx.notify.has("BLOCKED:FORWARD"), true)
	testutil.AssertEqual(t, fx.motors.Target(drive.FrontLeft), 0)
}

func TestForwardSpeedDerated(t *testing.T) {
	fx := newRouterFixture(t)
	fx.interlock.adjustActive = true
	fx.interlock.adjusted = 30

	fx.route(t, "FORWARD:80")
	// 30 through the 60% multiplier is 18, snapped to the 20 stall floor.
	testutil.AssertEqual(t, fx.motors.Target(drive.FrontLeft), 20)
}

func TestBackwardChecksRearOnly(t *testing.T) {
	fx := newRouterFixture(t)
	fx.interlock.forwardSafe = false

	out := fx.route(t, "BACKWARD:50")
	testutil.AssertEqual(t, out, OutcomeOK)
	testutil.AssertEqual(t, fx.motors.Target(drive.FrontLeft), -30)
}

func TestTurnsBlockedOnlyWhenBoxedIn(t *testing.T) {
	fx := newRouterFixture(t)
	fx.interlock.forwardSafe = false

	testutil.AssertEqual(t, fx.route(t, "LEFT:50"), OutcomeOK)

	fx.interlock.turnSafe = false
	testutil.AssertEqual(t, fx.route(t, "RIGHT:50"), OutcomeBlocked)
}

func TestTankPerSideChecks(t *testing.T) {
	fx := newRouterFixture(t)
	fx.interlock.forwardSafe = false

	// Any side driving forward exposes the front sensor.
	testutil.AssertEqual(t, fx.route(t, "TANK:50,-50"), OutcomeBlocked)

	// Both sides in reverse only needs a clear rear.
	testutil.AssertEqual(t, fx.route(t, "TANK:-50,-50"), OutcomeOK)
	testutil.AssertEqual(t, fx.motors.Target(drive.FrontLeft), -30)
	testutil.AssertEqual(t, fx.motors.Target(drive.FrontRight), -30)
}

func TestStopAlwaysExecutes(t *testing.T) {
	fx := newRouterFixture(t)
	fx.interlock.forwardSafe = false
	fx.interlock.backwardSafe = false
	fx.interlock.turnSafe = false

	fx.route(t, "STOP")
	testutil.AssertEqual(t, fx.notify.has("OK:STOP"), true)
}

func TestUnknownCommand(t *testing.T) {
	fx := newRouterFixture(t)

	out := fx.route(t, "JUMP:3")
	testutil.AssertEqual(t, out, OutcomeUnknown)
	testutil.AssertEqual(t, fx.notify.has("ERROR_UNKNOWN_COMMAND:JUMP"), true)
}

func TestServoCommandRoutesToChannel(t *testing.T) {
	fx := newRouterFixture(t)

	fx.route(t, "SERVO1:120")
	testutil.AssertEqual(t, fx.arm.Target(arm.Base), 120)
	testutil.AssertEqual(t, fx.notify.has("OK:SERVO1"), true)
}

func TestUnsafeServoCommandRejected(t *testing.T) {
	fx := newRouterFixture(t)

	out := fx.route(t, "SERVO3:10")
	testutil.AssertEqual(t, out, OutcomeRejected)
	testutil.AssertEqual(t, fx.notify.has("ERR:SERVO3"), true)
}

func TestEmergencyCommandStopsEverything(t *testing.T) {
	fx := newRouterFixture(t)

	out := fx.route(t, "EMERGENCY")
	testutil.AssertEqual(t, out, OutcomeOK)
	testutil.AssertEqual(t, fx.interlock.manualTriggers, 1)
	testutil.AssertEqual(t, fx.arm.Enabled(), false)
}

func TestSensorsDisableSuppressesBoth(t *testing.T) {
	fx := newRouterFixture(t)

	fx.route(t, "SENSORS_DISABLE")
	testutil.AssertEqual(t, fx.sensors.enabled, false)

	fx.route(t, "SENSORS_ENABLE")
	testutil.AssertEqual(t, fx.sensors.enabled, true)
}

func TestCollisionDistCommand(t *testing.T) {
	fx := newRouterFixture(t)

	fx.route(t, "COLLISION_DIST:25")
	testutil.AssertEqual(t, fx.sensors.collisionSet, 25.0)
}

func TestAggressivenessClamped(t *testing.T) {
	fx := newRouterFixture(t)

	fx.route(t, "COLLISION_AGGRESSIVENESS:9")
	testutil.AssertEqual(t, fx.interlock.level, safety.Aggressive)
}

func TestPing(t *testing.T) {
	fx := newRouterFixture(t)

	fx.route(t, "PING")
	testutil.AssertEqual(t, fx.notify.has("PONG"), true)
	testutil.AssertEqual(t, fx.notify.has("OK:PING"), true)
}

func TestStatusEmitsCallbackLines(t *testing.T) {
	fx := newRouterFixture(t)
	fx.router.StatusEvents = func() []string {
		return []string{"STATUS:{}"}
	}

	fx.route(t, "STATUS")
	testutil.AssertEqual(t, fx.notify.has("STATUS:{}"), true)
}

func TestCalibrateNotifiesPerDirection(t *testing.T) {
	fx := newRouterFixture(t)
	fx.sensors.reports = []sensor.CalibrationReport{
		{Direction: sensor.Front, MeanCm: 42.5, StdDevCm: 1.2},
		{Direction: sensor.Rear, MeanCm: 80, StdDevCm: 0.4},
	}

	fx.route(t, "CALIBRATE_SENSORS")
	testutil.AssertEqual(t, fx.notify.has("CALIBRATED:front,42.5,1.2"), true)
	testutil.AssertEqual(t, fx.notify.has("CALIBRATED:rear,80.0,0.4"), true)
}

func TestCalibrateFailureRejected(t *testing.T) {
	fx := newRouterFixture(t)
	fx.sensors.calErr = errors.New("no valid readings")

	out := fx.route(t, "CALIBRATE_SENSORS")
	testutil.AssertEqual(t, out, OutcomeRejected)
	testutil.AssertEqual(t, fx.notify.has("ERR:CALIBRATE_SENSORS"), true)
}

func TestResetRestoresOperation(t *testing.T) {
	fx := newRouterFixture(t)

	fx.motors.EmergencyStop()
	fx.arm.Disable()

	fx.route(t, "RESET")
	testutil.AssertEqual(t, fx.interlock.clears, 1)
	testutil.AssertEqual(t, fx.motors.SafetyStopActive(), false)
	testutil.AssertEqual(t, fx.arm.Enabled(), true)
}

func TestEveryOutcomeEmitsExactlyOneAck(t *testing.T) {
	fx := newRouterFixture(t)

	fx.route(t, "FORWARD:50")
	acks := 0
	for _, e := range fx.notify.events {
		if strings.HasPrefix(e, "OK:") || strings.HasPrefix(e, "ERR:") || strings.HasPrefix(e, "BLOCKED:") {
			acks++
		}
	}
	testutil.AssertEqual(t, acks, 1)
}
