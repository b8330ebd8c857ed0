// Package config loads rover tuning parameters and runtime settings.
//
// Tuning values ship in a JSON defaults file so field engineers can adjust
// safety thresholds without rebuilding. Fields omitted from the JSON retain
// their hard-coded defaults, so partial configs are safe. Deployment-varying
// settings (serial path, database path) come from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Tuning represents the tunable control-core parameters. All fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// accessors supply defaults for the rest.
type Tuning struct {
	// Sensor filter params
	CollisionDistanceCm *float64 `json:"collision_distance_cm,omitempty"`
	WarningDistanceCm   *float64 `json:"warning_distance_cm,omitempty"`
	MaxSensorDistanceCm *float64 `json:"max_sensor_distance_cm,omitempty"`
	StabilizeCount      *int     `json:"stabilize_count,omitempty"`

	// Drive params
	SpeedMultiplier   *int    `json:"speed_multiplier,omitempty"`
	CommandTimeout    *string `json:"command_timeout,omitempty"` // duration string like "5s"
	MinSpeedThreshold *int    `json:"min_speed_threshold,omitempty"`

	// Arm params
	ServoSpeed *int `json:"servo_speed,omitempty"`

	// Scheduler params
	TickInterval    *string `json:"tick_interval,omitempty"` // duration string like "50ms"
	QueueCapacity   *int    `json:"queue_capacity,omitempty"`
	DrainPerTick    *int    `json:"drain_per_tick,omitempty"`
	SnapshotEvery   *int    `json:"snapshot_every,omitempty"` // ticks between telemetry snapshots
	EmergencyHoldMs *int    `json:"emergency_hold_ms,omitempty"`
}

// Runtime holds deployment-specific settings sourced from the environment.
type Runtime struct {
	SerialPath  string `env:"ROVER_SERIAL_PATH" envDefault:"/dev/rfcomm0"`
	SerialBaud  int    `env:"ROVER_SERIAL_BAUD" envDefault:"9600"`
	ChassisPath string `env:"ROVER_CHASSIS_PATH" envDefault:"/dev/ttyUSB0"`
	ChassisBaud int    `env:"ROVER_CHASSIS_BAUD" envDefault:"115200"`
	DBPath      string `env:"ROVER_DB_PATH" envDefault:"rover_events.db"`
	LogLevel    string `env:"ROVER_LOG_LEVEL" envDefault:"info"`
	LogJSON     bool   `env:"ROVER_LOG_JSON" envDefault:"false"`
}

// LoadRuntime parses Runtime settings from environment variables.
func LoadRuntime() (*Runtime, error) {
	rt := &Runtime{}
	if err := env.Parse(rt); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return rt, nil
}

// EmptyTuning returns a Tuning with all fields set to nil.
func EmptyTuning() *Tuning {
	return &Tuning{}
}

// LoadTuning loads a Tuning from a JSON file. The file must have a .json
// extension and stay under the max file size.
func LoadTuning(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuning()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints on whatever fields are present.
func (c *Tuning) Validate() error {
	if c.CollisionDistanceCm != nil && (*c.CollisionDistanceCm < 5 || *c.CollisionDistanceCm > 100) {
		return fmt.Errorf("collision_distance_cm %v outside [5,100]", *c.CollisionDistanceCm)
	}
	if c.WarningDistanceCm != nil && (*c.WarningDistanceCm < 10 || *c.WarningDistanceCm > 200) {
		return fmt.Errorf("warning_distance_cm %v outside [10,200]", *c.WarningDistanceCm)
	}
	if c.CollisionDistanceCm != nil && c.WarningDistanceCm != nil &&
		*c.CollisionDistanceCm > *c.WarningDistanceCm {
		return fmt.Errorf("collision_distance_cm %v exceeds warning_distance_cm %v",
			*c.CollisionDistanceCm, *c.WarningDistanceCm)
	}
	if c.StabilizeCount != nil && *c.StabilizeCount < 1 {
		return fmt.Errorf("stabilize_count must be >= 1, got %d", *c.StabilizeCount)
	}
	if c.SpeedMultiplier != nil && (*c.SpeedMultiplier < 20 || *c.SpeedMultiplier > 100) {
		return fmt.Errorf("speed_multiplier %d outside [20,100]", *c.SpeedMultiplier)
	}
	if c.ServoSpeed != nil && (*c.ServoSpeed < 1 || *c.ServoSpeed > 5) {
		return fmt.Errorf("servo_speed %d outside [1,5]", *c.ServoSpeed)
	}
	if c.QueueCapacity != nil && *c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be >= 1, got %d", *c.QueueCapacity)
	}
	if c.DrainPerTick != nil && *c.DrainPerTick < 1 {
		return fmt.Errorf("drain_per_tick must be >= 1, got %d", *c.DrainPerTick)
	}
	if c.CommandTimeout != nil {
		if _, err := time.ParseDuration(*c.CommandTimeout); err != nil {
			return fmt.Errorf("invalid command_timeout: %w", err)
		}
	}
	if c.TickInterval != nil {
		if _, err := time.ParseDuration(*c.TickInterval); err != nil {
			return fmt.Errorf("invalid tick_interval: %w", err)
		}
	}
	return nil
}

// Accessors with hard defaults. These are the canonical values; the shipped
// defaults file restates them for field reference.

func (c *Tuning) GetCollisionDistanceCm() float64 {
	if c != nil && c.CollisionDistanceCm != nil {
		return *c.CollisionDistanceCm
	}
	return 15
}

func (c *Tuning) GetWarningDistanceCm() float64 {
	if c != nil && c.WarningDistanceCm != nil {
		return *c.WarningDistanceCm
	}
	return 50
}

func (c *Tuning) GetMaxSensorDistanceCm() float64 {
	if c != nil && c.MaxSensorDistanceCm != nil {
		return *c.MaxSensorDistanceCm
	}
	return 200
}

func (c *Tuning) GetStabilizeCount() int {
	if c != nil && c.StabilizeCount != nil {
		return *c.StabilizeCount
	}
	return 2
}

func (c *Tuning) GetSpeedMultiplier() int {
	if c != nil && c.SpeedMultiplier != nil {
		return *c.SpeedMultiplier
	}
	return 60
}

func (c *Tuning) GetCommandTimeout() time.Duration {
	if c != nil && c.CommandTimeout != nil {
		if d, err := time.ParseDuration(*c.CommandTimeout); err == nil {
			return d
		}
	}
	return 5 * time.Second
}

func (c *Tuning) GetMinSpeedThreshold() int {
	if c != nil && c.MinSpeedThreshold != nil {
		return *c.MinSpeedThreshold
	}
	return 20
}

func (c *Tuning) GetServoSpeed() int {
	if c != nil && c.ServoSpeed != nil {
		return *c.ServoSpeed
	}
	return 3
}

func (c *Tuning) GetTickInterval() time.Duration {
	if c != nil && c.TickInterval != nil {
		if d, err := time.ParseDuration(*c.TickInterval); err == nil {
			return d
		}
	}
	return 50 * time.Millisecond
}

func (c *Tuning) GetQueueCapacity() int {
	if c != nil && c.QueueCapacity != nil {
		return *c.QueueCapacity
	}
	return 8
}

func (c *Tuning) GetDrainPerTick() int {
	if c != nil && c.DrainPerTick != nil {
		return *c.DrainPerTick
	}
	return 2
}

func (c *Tuning) GetSnapshotEvery() int {
	if c != nil && c.SnapshotEvery != nil {
		return *c.SnapshotEvery
	}
	return 20
}

func (c *Tuning) GetEmergencyHold() time.Duration {
	if c != nil && c.EmergencyHoldMs != nil {
		return time.Duration(*c.EmergencyHoldMs) * time.Millisecond
	}
	return time.Second
}
