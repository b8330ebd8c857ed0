package sensor

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-robotics/rovercore/internal/monitoring"
)

// CalibrationReport summarises one calibration burst for a direction.
type CalibrationReport struct {
	Direction Direction
	MeanCm    float64
	StdDevCm  float64
	Samples   int
	Discarded int
}

// Calibrate takes a burst of samples per direction, discards invalid ones,
// and seeds the stable distance with the mean so the filter starts from a
// trusted baseline instead of waiting for stabilisation. Returns one report
// per direction, or an error if a direction yields no valid samples.
func (f *Filter) Calibrate(burst int) ([]CalibrationReport, error) {
	if burst < 2 {
		return nil, fmt.Errorf("calibration burst must be >= 2 samples, got %d", burst)
	}

	reports := make([]CalibrationReport, 0, directionCount)
	for _, dir := range Directions {
		valid := make([]float64, 0, burst)
		discarded := 0
		for i := 0; i < burst; i++ {
			d, ok := f.rf.ReadDistance(dir)
			if !ok || !f.validReading(d) {
				discarded++
				continue
			}
			valid = append(valid, d)
		}
		if len(valid) == 0 {
			return nil, fmt.Errorf("calibration failed: no valid %s readings in %d samples", dir, burst)
		}

		mean := stat.Mean(valid, nil)
		stddev := 0.0
		if len(valid) > 1 {
			stddev = stat.StdDev(valid, nil)
		}

		r := &f.readings[dir]
		r.CurrentDistance = mean
		r.StableDistance = mean
		r.StableCount = f.stabilizeCount
		r.Obstacle = mean <= f.warningDistance
		r.CollisionRisk = mean <= f.collisionDistance
		r.LastUpdate = f.clock.Now()
		r.Active = true

		reports = append(reports, CalibrationReport{
			Direction: dir,
			MeanCm:    mean,
			StdDevCm:  stddev,
			Samples:   len(valid),
			Discarded: discarded,
		})
		monitoring.Info("sensor calibrated",
			"direction", dir.String(), "mean_cm", mean, "stddev_cm", stddev, "discarded", discarded)
	}
	return reports, nil
}
