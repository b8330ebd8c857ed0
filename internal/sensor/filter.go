// Package sensor stabilises raw proximity samples into trusted distances.
//
// Ultrasonic rangefinders are noisy near threshold boundaries. The filter
// requires consecutive consistent samples before it publishes a new stable
// distance, which prevents chattering obstacle and collision-risk flags.
package sensor

import (
	"fmt"
	"time"

	"github.com/banshee-robotics/rovercore/internal/config"
	"github.com/banshee-robotics/rovercore/internal/monitoring"
	"github.com/banshee-robotics/rovercore/internal/timeutil"
)

// Direction identifies a proximity sensor by the side it faces.
type Direction int

const (
	Front Direction = iota
	Rear

	directionCount = 2
)

// Directions lists every sensed direction in index order.
var Directions = [directionCount]Direction{Front, Rear}

func (d Direction) String() string {
	switch d {
	case Front:
		return "front"
	case Rear:
		return "rear"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// RangeFinder supplies raw distance samples in centimetres. Implementations
// must return within the hardware echo timeout (~30ms); a timed-out or
// otherwise failed read reports ok=false and is treated as an invalid
// sample, not an error.
type RangeFinder interface {
	ReadDistance(dir Direction) (cm float64, ok bool)
}

// Reading is the filter state for one direction. StableDistance is the only
// distance other components may consume; CurrentDistance is filter-internal.
type Reading struct {
	CurrentDistance float64
	StableDistance  float64
	StableCount     int
	Obstacle        bool
	CollisionRisk   bool
	LastUpdate      time.Time
	Active          bool
}

// stabilityToleranceCm is the maximum jump between consecutive samples that
// still counts as a consistent reading.
const stabilityToleranceCm = 5.0

// livenessWindow is how stale a direction may go before Healthy degrades.
const livenessWindow = 2 * time.Second

// Filter owns the per-direction readings and derives the obstacle and
// collision-risk predicates from them.
type Filter struct {
	rf    RangeFinder
	clock timeutil.Clock

	enabled  bool
	readings [directionCount]Reading

	collisionDistance float64
	warningDistance   float64
	maxDistance       float64
	stabilizeCount    int
}

// New constructs a Filter with thresholds from cfg. Sensors start enabled.
func New(rf RangeFinder, clock timeutil.Clock, cfg *config.Tuning) *Filter {
	return &Filter{
		rf:                rf,
		clock:             clock,
		enabled:           true,
		collisionDistance: cfg.GetCollisionDistanceCm(),
		warningDistance:   cfg.GetWarningDistanceCm(),
		maxDistance:       cfg.GetMaxSensorDistanceCm(),
		stabilizeCount:    cfg.GetStabilizeCount(),
	}
}

// Update acquires one sample per direction and advances the filter state.
// Invalid samples mark the direction inactive and mutate nothing else.
func (f *Filter) Update() {
	if !f.enabled {
		return
	}
	for _, dir := range Directions {
		f.updateDirection(dir)
	}
}

func (f *Filter) updateDirection(dir Direction) {
	r := &f.readings[dir]

	distance, ok := f.rf.ReadDistance(dir)
	if !ok || !f.validReading(distance) {
		r.Active = false
		return
	}

	f.stabilize(r, distance)

	r.Obstacle = r.StableDistance > 0 && r.StableDistance <= f.warningDistance
	r.CollisionRisk = r.StableDistance > 0 && r.StableDistance <= f.collisionDistance
	r.LastUpdate = f.clock.Now()
	r.Active = true

	if r.CollisionRisk {
		monitoring.Debug("collision risk", "direction", dir.String(), "distance_cm", r.StableDistance)
	}
}

func (f *Filter) validReading(distance float64) bool {
	return distance > 0 && distance <= f.maxDistance
}

func (f *Filter) stabilize(r *Reading, newReading float64) {
	if abs(newReading-r.CurrentDistance) < stabilityToleranceCm {
		r.StableCount++
	} else {
		r.StableCount = 0
	}

	r.CurrentDistance = newReading

	if r.StableCount >= f.stabilizeCount {
		r.StableDistance = newReading
	}
}

// Enable re-activates sample acquisition.
func (f *Filter) Enable() {
	f.enabled = true
	monitoring.Info("sensors enabled")
}

// Disable stops acquisition and clears the obstacle and risk flags so a
// stale reading cannot hold the interlock tripped.
func (f *Filter) Disable() {
	f.enabled = false
	for i := range f.readings {
		f.readings[i].Obstacle = false
		f.readings[i].CollisionRisk = false
	}
	monitoring.Info("sensors disabled")
}

// Enabled reports whether acquisition is active.
func (f *Filter) Enabled() bool {
	return f.enabled
}

// Distance returns the last stable distance for dir in centimetres.
func (f *Filter) Distance(dir Direction) float64 {
	if dir < 0 || dir >= directionCount {
		return -1
	}
	return f.readings[dir].StableDistance
}

// ObstacleDetected reports whether the stable distance for dir is at or
// below the warning threshold.
func (f *Filter) ObstacleDetected(dir Direction) bool {
	if dir < 0 || dir >= directionCount {
		return false
	}
	return f.enabled && f.readings[dir].Obstacle
}

// CollisionRisk reports whether the stable distance for dir is at or below
// the collision threshold. CollisionRisk implies ObstacleDetected.
func (f *Filter) CollisionRisk(dir Direction) bool {
	if dir < 0 || dir >= directionCount {
		return false
	}
	return f.enabled && f.readings[dir].CollisionRisk
}

// SetCollisionDistance clamps cm to [5,100] and applies it. The warning
// threshold is lifted if needed so collision <= warning always holds.
func (f *Filter) SetCollisionDistance(cm float64) {
	f.collisionDistance = clamp(cm, 5, 100)
	if f.warningDistance < f.collisionDistance {
		f.warningDistance = f.collisionDistance
	}
	monitoring.Info("collision distance set", "cm", f.collisionDistance)
}

// SetWarningDistance clamps cm to [10,200] and applies it, flooring at the
// collision threshold.
func (f *Filter) SetWarningDistance(cm float64) {
	f.warningDistance = clamp(cm, 10, 200)
	if f.warningDistance < f.collisionDistance {
		f.warningDistance = f.collisionDistance
	}
	monitoring.Info("warning distance set", "cm", f.warningDistance)
}

// CollisionDistance returns the active collision threshold in centimetres.
func (f *Filter) CollisionDistance() float64 { return f.collisionDistance }

// WarningDistance returns the active warning threshold in centimetres.
func (f *Filter) WarningDistance() float64 { return f.warningDistance }

// Healthy reports whether every active direction updated within the
// liveness window. Disabled sensors are considered healthy: absence of data
// by choice is not a fault.
func (f *Filter) Healthy() bool {
	if !f.enabled {
		return true
	}
	for i := range f.readings {
		r := &f.readings[i]
		if !r.Active || f.clock.Since(r.LastUpdate) > livenessWindow {
			return false
		}
	}
	return true
}

// Snapshot is a read-only copy of the filter state for status reporting.
type Snapshot struct {
	FrontDistance      float64 `json:"front_distance_cm"`
	RearDistance       float64 `json:"rear_distance_cm"`
	FrontObstacle      bool    `json:"front_obstacle"`
	RearObstacle       bool    `json:"rear_obstacle"`
	FrontCollisionRisk bool    `json:"front_collision_risk"`
	RearCollisionRisk  bool    `json:"rear_collision_risk"`
	Enabled            bool    `json:"enabled"`
	Healthy            bool    `json:"healthy"`
}

// Snapshot returns the current sensor state for status reporting.
func (f *Filter) Snapshot() Snapshot {
	return Snapshot{
		FrontDistance:      f.readings[Front].StableDistance,
		RearDistance:       f.readings[Rear].StableDistance,
		FrontObstacle:      f.ObstacleDetected(Front),
		RearObstacle:       f.ObstacleDetected(Rear),
		FrontCollisionRisk: f.CollisionRisk(Front),
		RearCollisionRisk:  f.CollisionRisk(Rear),
		Enabled:            f.enabled,
		Healthy:            f.Healthy(),
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
