package hardware

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-robotics/rovercore/internal/arm"
	"github.com/banshee-robotics/rovercore/internal/drive"
	"github.com/banshee-robotics/rovercore/internal/monitoring"
	"github.com/banshee-robotics/rovercore/internal/sensor"
	"github.com/banshee-robotics/rovercore/internal/timeutil"
	"github.com/banshee-robotics/rovercore/internal/transport"
)

// distanceStaleness bounds how old a streamed distance sample may be before
// ReadDistance reports the sensor as silent.
const distanceStaleness = 500 * time.Millisecond

// Chassis drives the real rover over a serial link to the chassis
// microcontroller. Actuator writes go out as one line per change
// ("M0:50", "S2:90"); the microcontroller streams distance samples back
// ("D:FRONT,42.0").
//
// Implements drive.MotorBus, arm.ServoBus, and sensor.RangeFinder.
type Chassis struct {
	port  transport.SerialPorter
	clock timeutil.Clock

	writeMu sync.Mutex

	mu       sync.Mutex
	distance map[sensor.Direction]float64
	seenAt   map[sensor.Direction]time.Time
}

// NewChassis wraps an open serial port to the chassis microcontroller.
func NewChassis(port transport.SerialPorter, clock timeutil.Clock) *Chassis {
	return &Chassis{
		port:     port,
		clock:    clock,
		distance: make(map[sensor.Direction]float64),
		seenAt:   make(map[sensor.Direction]time.Time),
	}
}

// WriteMotor sends one motor frame. Errors are logged; the control loop
// retries naturally on the next change.
func (c *Chassis) WriteMotor(m drive.Motor, signedSpeed int) {
	c.writeFrame(fmt.Sprintf("M%d:%d", int(m), signedSpeed))
}

// WriteServo sends one servo frame.
func (c *Chassis) WriteServo(ch arm.Channel, angleDegrees int) {
	c.writeFrame(fmt.Sprintf("S%d:%d", int(ch), angleDegrees))
}

func (c *Chassis) writeFrame(frame string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.port.Write([]byte(frame + "\n")); err != nil {
		monitoring.Error("chassis write failed", "frame", frame, "err", err)
	}
}

// ReadDistance returns the most recent streamed sample for dir. Samples
// older than the staleness window report not-ok, as a disconnected sensor
// would.
func (c *Chassis) ReadDistance(dir sensor.Direction) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.seenAt[dir]
	if !ok || c.clock.Since(at) > distanceStaleness {
		return 0, false
	}
	return c.distance[dir], true
}

// Monitor reads streamed lines from the chassis until ctx is cancelled.
// Unrecognised lines are logged and skipped.
func (c *Chassis) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(c.port)

	lineChan := make(chan string)
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lineChan:
			if !ok {
				return scan.Err()
			}
			c.handleLine(line)
		}
	}
}

func (c *Chassis) handleLine(line string) {
	line = strings.TrimSpace(line)
	payload, ok := strings.CutPrefix(line, "D:")
	if !ok {
		if line != "" {
			monitoring.Debug("chassis line ignored", "line", line)
		}
		return
	}

	name, value, ok := strings.Cut(payload, ",")
	if !ok {
		monitoring.Warn("malformed distance line", "line", line)
		return
	}

	var dir sensor.Direction
	switch strings.ToUpper(name) {
	case "FRONT":
		dir = sensor.Front
	case "REAR":
		dir = sensor.Rear
	default:
		monitoring.Warn("unknown distance direction", "line", line)
		return
	}

	cm, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		monitoring.Warn("malformed distance value", "line", line, "err", err)
		return
	}

	c.mu.Lock()
	c.distance[dir] = cm
	c.seenAt[dir] = c.clock.Now()
	c.mu.Unlock()
}
