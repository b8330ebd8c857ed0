package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTuningPartialOverride(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
		"collision_distance_cm": 25,
		"speed_multiplier": 80,
		"tick_interval": "20ms"
	}`)

	cfg, err := LoadTuning(path)
	require.NoError(t, err)

	assert.Equal(t, 25.0, cfg.GetCollisionDistanceCm())
	assert.Equal(t, 80, cfg.GetSpeedMultiplier())
	assert.Equal(t, 20*time.Millisecond, cfg.GetTickInterval())

	// Unset fields keep their defaults.
	assert.Equal(t, 50.0, cfg.GetWarningDistanceCm())
	assert.Equal(t, 2, cfg.GetStabilizeCount())
	assert.Equal(t, 5*time.Second, cfg.GetCommandTimeout())
}

func TestLoadTuningRejectsNonJSONExtension(t *testing.T) {
	path := writeConfig(t, "tuning.yaml", `{}`)
	_, err := LoadTuning(path)
	assert.Error(t, err)
}

func TestLoadTuningMissingFile(t *testing.T) {
	_, err := LoadTuning(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadTuningMalformedJSON(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{"speed_multiplier": `)
	_, err := LoadTuning(path)
	assert.Error(t, err)
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"collision too low", `{"collision_distance_cm": 2}`},
		{"collision too high", `{"collision_distance_cm": 150}`},
		{"warning too high", `{"warning_distance_cm": 300}`},
		{"collision above warning", `{"collision_distance_cm": 60, "warning_distance_cm": 40}`},
		{"zero stabilize", `{"stabilize_count": 0}`},
		{"multiplier too low", `{"speed_multiplier": 10}`},
		{"servo speed too high", `{"servo_speed": 9}`},
		{"zero queue", `{"queue_capacity": 0}`},
		{"zero drain", `{"drain_per_tick": 0}`},
		{"bad timeout", `{"command_timeout": "fast"}`},
		{"bad tick", `{"tick_interval": "sometimes"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "tuning.json", tt.content)
			_, err := LoadTuning(path)
			assert.Error(t, err)
		})
	}
}

func TestEmptyTuningDefaults(t *testing.T) {
	cfg := EmptyTuning()

	assert.Equal(t, 15.0, cfg.GetCollisionDistanceCm())
	assert.Equal(t, 50.0, cfg.GetWarningDistanceCm())
	assert.Equal(t, 200.0, cfg.GetMaxSensorDistanceCm())
	assert.Equal(t, 2, cfg.GetStabilizeCount())
	assert.Equal(t, 60, cfg.GetSpeedMultiplier())
	assert.Equal(t, 20, cfg.GetMinSpeedThreshold())
	assert.Equal(t, 3, cfg.GetServoSpeed())
	assert.Equal(t, 50*time.Millisecond, cfg.GetTickInterval())
	assert.Equal(t, 8, cfg.GetQueueCapacity())
	assert.Equal(t, 2, cfg.GetDrainPerTick())
	assert.Equal(t, 20, cfg.GetSnapshotEvery())
	assert.Equal(t, time.Second, cfg.GetEmergencyHold())
}

func TestNilTuningIsSafe(t *testing.T) {
	var cfg *Tuning
	assert.Equal(t, 15.0, cfg.GetCollisionDistanceCm())
	assert.Equal(t, 5*time.Second, cfg.GetCommandTimeout())
}

func TestDefaultsFileMatchesHardDefaults(t *testing.T) {
	// The shipped defaults file must agree with the compiled-in values.
	path := filepath.Join("..", "..", "config", "tuning.defaults.json")
	cfg, err := LoadTuning(path)
	require.NoError(t, err)

	empty := EmptyTuning()
	assert.Equal(t, empty.GetCollisionDistanceCm(), cfg.GetCollisionDistanceCm())
	assert.Equal(t, empty.GetWarningDistanceCm(), cfg.GetWarningDistanceCm())
	assert.Equal(t, empty.GetSpeedMultiplier(), cfg.GetSpeedMultiplier())
	assert.Equal(t, empty.GetTickInterval(), cfg.GetTickInterval())
	assert.Equal(t, empty.GetQueueCapacity(), cfg.GetQueueCapacity())
}

func TestLoadRuntimeDefaults(t *testing.T) {
	rt, err := LoadRuntime()
	require.NoError(t, err)
	assert.Equal(t, "/dev/rfcomm0", rt.SerialPath)
	assert.Equal(t, 9600, rt.SerialBaud)
	assert.Equal(t, "rover_events.db", rt.DBPath)
}

func TestLoadRuntimeEnvOverride(t *testing.T) {
	t.Setenv("ROVER_SERIAL_PATH", "/dev/ttyS9")
	t.Setenv("ROVER_SERIAL_BAUD", "115200")
	t.Setenv("ROVER_LOG_JSON", "true")

	rt, err := LoadRuntime()
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS9", rt.SerialPath)
	assert.Equal(t, 115200, rt.SerialBaud)
	assert.True(t, rt.LogJSON)
}
