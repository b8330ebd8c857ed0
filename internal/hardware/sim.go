// Package hardware provides backends for the actuator and sensor bus
// interfaces. The simulated backend stands in for the real chassis in dev
// mode and in tests.
package hardware

import (
	"sync"

	"github.com/banshee-robotics/rovercore/internal/arm"
	"github.com/banshee-robotics/rovercore/internal/drive"
	"github.com/banshee-robotics/rovercore/internal/monitoring"
	"github.com/banshee-robotics/rovercore/internal/sensor"
)

// simClearDistanceCm is the distance reported when nothing has been placed
// in front of a simulated range finder.
const simClearDistanceCm = 150

// Sim implements drive.MotorBus, arm.ServoBus, and sensor.RangeFinder with
// in-memory state. Distances are settable so tests and the dev-mode REPL can
// stage obstacles.
type Sim struct {
	mu        sync.Mutex
	motors    map[drive.Motor]int
	servos    map[arm.Channel]int
	distances map[sensor.Direction]float64
	faulty    map[sensor.Direction]bool
}

// NewSim returns a simulated chassis with clear paths in both directions.
func NewSim() *Sim {
	s := &Sim{
		motors:    make(map[drive.Motor]int),
		servos:    make(map[arm.Channel]int),
		distances: make(map[sensor.Direction]float64),
		faulty:    make(map[sensor.Direction]bool),
	}
	for _, dir := range sensor.Directions {
		s.distances[dir] = simClearDistanceCm
	}
	return s
}

// WriteMotor records a signed wheel speed as the chassis would apply it.
func (s *Sim) WriteMotor(m drive.Motor, signedSpeed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motors[m] = signedSpeed
	monitoring.Debug("sim motor write", "motor", m.String(), "speed", signedSpeed)
}

// WriteServo records a servo angle.
func (s *Sim) WriteServo(ch arm.Channel, angleDegrees int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servos[ch] = angleDegrees
	monitoring.Debug("sim servo write", "channel", ch.String(), "angle", angleDegrees)
}

// ReadDistance returns the staged distance for dir. A faulted direction
// reports not-ok, as a disconnected sensor would.
func (s *Sim) ReadDistance(dir sensor.Direction) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faulty[dir] {
		return 0, false
	}
	return s.distances[dir], true
}

// SetDistance stages an obstacle at the given distance.
func (s *Sim) SetDistance(dir sensor.Direction, cm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distances[dir] = cm
}

// SetFaulty marks a direction's sensor as disconnected.
func (s *Sim) SetFaulty(dir sensor.Direction, faulty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faulty[dir] = faulty
}

// MotorSpeed returns the last speed written for m.
func (s *Sim) MotorSpeed(m drive.Motor) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motors[m]
}

// ServoAngle returns the last angle written for ch.
func (s *Sim) ServoAngle(ch arm.Channel) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.servos[ch]
}
