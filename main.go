// Command rovercore runs the rover control core: it bridges the companion
// app's serial command protocol to the chassis, enforcing the
// collision-avoidance interlock between the two.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-robotics/rovercore/internal/arm"
	"github.com/banshee-robotics/rovercore/internal/command"
	"github.com/banshee-robotics/rovercore/internal/config"
	"github.com/banshee-robotics/rovercore/internal/control"
	"github.com/banshee-robotics/rovercore/internal/drive"
	"github.com/banshee-robotics/rovercore/internal/hardware"
	"github.com/banshee-robotics/rovercore/internal/monitoring"
	"github.com/banshee-robotics/rovercore/internal/safety"
	"github.com/banshee-robotics/rovercore/internal/sensor"
	"github.com/banshee-robotics/rovercore/internal/telemetry"
	"github.com/banshee-robotics/rovercore/internal/timeutil"
	"github.com/banshee-robotics/rovercore/internal/transport"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode (stdio commands, simulated chassis)")
	configPath = flag.String("config", config.DefaultConfigPath, "Path to tuning config JSON")
)

// stdioPort adapts stdin/stdout to the serial port interface for dev mode.
type stdioPort struct{}

func (stdioPort) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioPort) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioPort) Close() error                { return nil }

func main() {
	flag.Parse()

	rt, err := config.LoadRuntime()
	if err != nil {
		log.Fatalf("failed to load runtime settings: %v", err)
	}
	monitoring.Init(rt.LogLevel, rt.LogJSON)

	tuning, err := config.LoadTuning(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		monitoring.Warn("tuning config not found, using defaults", "path", *configPath)
		tuning = config.EmptyTuning()
	}

	clock := timeutil.RealClock{}

	// Hardware backends: real chassis over a second serial port, or the
	// in-memory simulation in dev mode.
	var (
		motorBus drive.MotorBus
		servoBus arm.ServoBus
		rf       sensor.RangeFinder
		chassis  *hardware.Chassis
	)
	if *devMode {
		sim := hardware.NewSim()
		motorBus, servoBus, rf = sim, sim, sim
	} else {
		chassisPort, err := transport.OpenPort(rt.ChassisPath, transport.PortOptions{BaudRate: rt.ChassisBaud})
		if err != nil {
			log.Fatalf("failed to open chassis port: %v", err)
		}
		chassis = hardware.NewChassis(chassisPort, clock)
		motorBus, servoBus, rf = chassis, chassis, chassis
	}

	// Command link to the companion app.
	var port transport.SerialPorter
	if *devMode {
		port = stdioPort{}
	} else {
		port, err = transport.OpenPort(rt.SerialPath, transport.PortOptions{BaudRate: rt.SerialBaud})
		if err != nil {
			log.Fatalf("failed to open command port: %v", err)
		}
	}
	link := transport.NewLink(port)
	defer link.Close()

	store, err := telemetry.Open(rt.DBPath)
	if err != nil {
		log.Fatalf("failed to open telemetry store: %v", err)
	}
	defer store.Close()

	// Control core.
	filter := sensor.New(rf, clock, tuning)
	motors := drive.New(motorBus, clock, tuning)
	robotArm := arm.New(servoBus, tuning)
	interlock := safety.New(filter, motors, link, clock, tuning.GetEmergencyHold())
	router := command.NewRouter(interlock, motors, robotArm, filter, link)
	loop := control.New(filter, interlock, motors, robotArm, router, link, store, clock, control.Config{
		TickInterval:  tuning.GetTickInterval(),
		QueueCapacity: tuning.GetQueueCapacity(),
		DrainPerTick:  tuning.GetDrainPerTick(),
		SnapshotEvery: tuning.GetSnapshotEvery(),
	})
	link.AttachSink(loop)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Error("command link monitor failed", "err", err)
		}
		stop()
	}()

	if chassis != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := chassis.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				monitoring.Error("chassis monitor failed", "err", err)
			}
			stop()
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Error("control loop failed", "err", err)
		}
		stop()
	}()

	<-ctx.Done()
	monitoring.Info("shutting down")
	link.Close()
	wg.Wait()
}
