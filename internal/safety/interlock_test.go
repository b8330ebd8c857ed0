package safety

import (
	"strings"
	"testing"
	"time"

	"github.com/banshee-robotics/rovercore/internal/monitoring"
	"github.com/banshee-robotics/rovercore/internal/sensor"
	"github.com/banshee-robotics/rovercore/internal/testutil"
	"github.com/banshee-robotics/rovercore/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

// fakeSensors is a scriptable ProximityMonitor.
type fakeSensors struct {
	risk     map[sensor.Direction]bool
	obstacle map[sensor.Direction]bool
	distance map[sensor.Direction]float64

	collisionSet float64
	warningSet   float64
}

func newFakeSensors() *fakeSensors {
	return &fakeSensors{
		risk:     make(map[sensor.Direction]bool),
		obstacle: make(map[sensor.Direction]bool),
		distance: make(map[sensor.Direction]float64),
	}
}

func (f *fakeSensors) CollisionRisk(dir sensor.Direction) bool    { return f.risk[dir] }
func (f *fakeSensors) ObstacleDetected(dir sensor.Direction) bool { return f.obstacle[dir] }
func (f *fakeSensors) Distance(dir sensor.Direction) float64      { return f.distance[dir] }
func (f *fakeSensors) SetCollisionDistance(cm float64)            { f.collisionSet = cm }
func (f *fakeSensors) SetWarningDistance(cm float64)              { f.warningSet = cm }

// fakeMotors counts emergency stops and latch releases.
type fakeMotors struct {
	stops    int
	releases int
}

func (f *fakeMotors) EmergencyStop() { f.stops++ }
func (f *fakeMotors) StopAll()       { f.releases++ }

// recordNotifier captures emitted events.
type recordNotifier struct {
	events []string
}

func (r *recordNotifier) Notify(event string) { r.events = append(r.events, event) }

func (r *recordNotifier) count(prefix string) int {
	n := 0
	for _, e := range r.events {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

func newTestInterlock(t *testing.T) (*Interlock, *fakeSensors, *fakeMotors, *recordNotifier, *timeutil.MockClock) {
	t.Helper()
	sensors := newFakeSensors()
	motors := &fakeMotors{}
	notify := &recordNotifier{}
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	il := New(sensors, motors, notify, clock, time.Second)
	return il, sensors, motors, notify, clock
}

func TestTriggerStopsMotorsAndNotifiesOnce(t *testing.T) {
	il, sensors, motors, notify, _ := newTestInterlock(t)

	sensors.risk[sensor.Front] = true
	sensors.distance[sensor.Front] = 10

	il.Check()
	il.Check()
	il.Check()

	testutil.AssertEqual(t, il.EmergencyStopActive(), true)
	testutil.AssertEqual(t, motors.stops, 1)
	testutil.AssertEqual(t, notify.count("EMERGENCY_STOP:"), 1)
	testutil.AssertEqual(t, il.StopReason(), "collision risk front at 10.0cm")
}

func TestAutoClearAfterHold(t *testing.T) {
	il, sensors, _, notify, clock := newTestInterlock(t)

	sensors.risk[sensor.Rear] = true
	il.Check()
	testutil.AssertEqual(t, il.EmergencyStopActive(), true)

	sensors.risk[sensor.Rear] = false
	clock.Advance(999 * time.Millisecond)
	il.Check()
	testutil.AssertEqual(t, il.EmergencyStopActive(), true)

	clock.Advance(time.Millisecond)
	il.Check()
	testutil.AssertEqual(t, il.EmergencyStopActive(), false)
	testutil.AssertEqual(t, notify.count("EMERGENCY_CLEARED"), 1)
}

func TestClearReleasesMotorLatch(t *testing.T) {
	il, sensors, motors, _, clock := newTestInterlock(t)

	sensors.risk[sensor.Front] = true
	il.Check()
	testutil.AssertEqual(t, motors.stops, 1)
	testutil.AssertEqual(t, motors.releases, 0)

	// Once the stop auto-clears the motors must accept motion again, so the
	// latch is released in the same transition.
	sensors.risk[sensor.Front] = false
	clock.Advance(time.Second)
	il.Check()
	testutil.AssertEqual(t, motors.releases, 1)
}

func TestHoldPersistsWhileRiskRemains(t *testing.T) {
	il, sensors, _, _, clock := newTestInterlock(t)

	sensors.risk[sensor.Front] = true
	il.Check()

	clock.Advance(5 * time.Second)
	il.Check()
	testutil.AssertEqual(t, il.EmergencyStopActive(), true)
}

func TestManualStopNeverAutoClears(t *testing.T) {
	il, _, _, notify, clock := newTestInterlock(t)

	il.TriggerManual()
	clock.Advance(time.Minute)
	il.Check()
	testutil.AssertEqual(t, il.EmergencyStopActive(), true)

	il.Clear()
	testutil.AssertEqual(t, il.EmergencyStopActive(), false)
	testutil.AssertEqual(t, notify.count("EMERGENCY_CLEARED"), 1)
}

func TestManualUpgradeBlocksAutoClear(t *testing.T) {
	il, sensors, _, _, clock := newTestInterlock(t)

	sensors.risk[sensor.Front] = true
	il.Check()
	il.TriggerManual()

	sensors.risk[sensor.Front] = false
	clock.Advance(time.Minute)
	il.Check()
	testutil.AssertEqual(t, il.EmergencyStopActive(), true)
}

func TestMovementSafeDirectionality(t *testing.T) {
	il, sensors, _, _, _ := newTestInterlock(t)

	sensors.risk[sensor.Front] = true

	testutil.AssertEqual(t, il.MovementSafe(MotionForward), false)
	testutil.AssertEqual(t, il.MovementSafe(MotionBackward), true)
	testutil.AssertEqual(t, il.MovementSafe(MotionTurn), true)

	sensors.risk[sensor.Rear] = true
	testutil.AssertEqual(t, il.MovementSafe(MotionTurn), false)
}

func TestNothingSafeWhileStopped(t *testing.T) {
	il, _, _, _, _ := newTestInterlock(t)

	il.TriggerManual()
	testutil.AssertEqual(t, il.MovementSafe(MotionForward), false)
	testutil.AssertEqual(t, il.MovementSafe(MotionBackward), false)
	testutil.AssertEqual(t, il.MovementSafe(MotionTurn), false)
}

func TestAdjustSpeed(t *testing.T) {
	il, sensors, _, _, _ := newTestInterlock(t)

	testutil.AssertEqual(t, il.AdjustSpeed(80, true), 80)

	sensors.obstacle[sensor.Front] = true
	testutil.AssertEqual(t, il.AdjustSpeed(80, true), 30)
	testutil.AssertEqual(t, il.AdjustSpeed(40, true), 20)

	sensors.risk[sensor.Front] = true
	testutil.AssertEqual(t, il.AdjustSpeed(80, true), 0)

	// Rear conditions do not affect forward motion.
	testutil.AssertEqual(t, il.AdjustSpeed(80, false), 80)
}

func TestSetAggressivenessForwardsThresholds(t *testing.T) {
	il, sensors, _, _, _ := newTestInterlock(t)

	il.SetAggressiveness(Aggressive)
	testutil.AssertEqual(t, sensors.collisionSet, 10.0)
	testutil.AssertEqual(t, sensors.warningSet, 30.0)

	il.SetAggressiveness(Aggressiveness(7))
	testutil.AssertEqual(t, il.AggressivenessLevel(), Aggressive)

	il.SetAggressiveness(Aggressiveness(0))
	testutil.AssertEqual(t, il.AggressivenessLevel(), Conservative)
	testutil.AssertEqual(t, sensors.collisionSet, 25.0)
	testutil.AssertEqual(t, sensors.warningSet, 60.0)
}

func TestDisableForcesClearAndPermitsEverything(t *testing.T) {
	il, sensors, _, _, _ := newTestInterlock(t)

	sensors.risk[sensor.Front] = true
	il.Check()
	testutil.AssertEqual(t, il.EmergencyStopActive(), true)

	il.Disable()
	testutil.AssertEqual(t, il.EmergencyStopActive(), false)
	testutil.AssertEqual(t, il.MovementSafe(MotionForward), true)
	testutil.AssertEqual(t, il.AdjustSpeed(80, true), 80)

	// No automatic triggering while disabled.
	il.Check()
	testutil.AssertEqual(t, il.EmergencyStopActive(), false)
}
