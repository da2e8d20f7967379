package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gr-butler/weatherlog/archive"
	"github.com/gr-butler/weatherlog/batch"
	"github.com/gr-butler/weatherlog/calibration"
	"github.com/gr-butler/weatherlog/counter"
	"github.com/gr-butler/weatherlog/env"
	"github.com/gr-butler/weatherlog/led"
	"github.com/gr-butler/weatherlog/pipeline"
	"github.com/gr-butler/weatherlog/publish"
	"github.com/gr-butler/weatherlog/sensors"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const version = "GRB-WeatherLog-2.0.0"

func main() {
	args := env.ParseArgs()
	if *args.Verbose {
		logger.SetLevel(logger.DebugLevel)
	}
	logger.Infof("Starting weather station [%v]", version)
	if *args.Test {
		logger.Info("TEST MODE")
	}

	cfg, err := env.Load()
	if err != nil {
		logger.Fatalf("Invalid configuration [%v]", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reducer := archive.NewReducer(cfg.Paths, openStore(ctx, cfg.DatabaseURL))
	if *args.Reduce {
		if sum := reducer.ReducePending(ctx); !sum.OK() {
			logger.Errorf("Reduction left [%d] batches pending", len(sum.Failed))
			logger.Exit(1)
		}
		return
	}

	logger.Infof("%v: Initialize sensors...", time.Now().Format(time.RFC822))
	if _, err := host.Init(); err != nil {
		logger.Fatalf("Failed to initialize periph [%v]", err)
	}
	bus, err := i2creg.Open(*args.Bus)
	if err != nil {
		logger.Fatalf("Failed to open I²C [%v]", err)
	}
	defer bus.Close()

	atm, err := sensors.NewAtmosphere(bus)
	if err != nil {
		logger.Fatalf("Failed to initialise sensors!! [%v]", err)
	}
	hiRes, err := sensors.NewHiResThermometer(bus)
	if err != nil {
		logger.Fatalf("Failed to initialise sensors!! [%v]", err)
	}
	refPin, sensePin := gpioreg.ByName(env.VaneRefPin), gpioreg.ByName(env.VaneSensePin)
	if refPin == nil || sensePin == nil {
		logger.Fatalf("Failed to find vane pins [%v] [%v]", env.VaneRefPin, env.VaneSensePin)
	}
	vane := sensors.NewVane(refPin, sensePin, cfg.Sampling.VaneTimeout)
	table, err := sensors.ParseDirectionTable(cfg.Sampling.VaneTable)
	if err != nil {
		logger.Fatalf("Invalid VANE_TABLE [%v]", err)
	}

	rainLed := led.ByName("rain", env.RainTipLed)
	defer rainLed.Close()
	heartbeat := led.ByName("heartbeat", env.HeartbeatLed)
	defer heartbeat.Close()
	// flicker to show it's working
	heartbeat.Flicker(3)

	rain, wind := counter.New("rain"), counter.New("wind")
	edges := sensors.NewGPIOEdges()
	defer func() { _ = edges.Halt() }()
	if err := edges.RegisterEdgeHandler(env.RainSensorIn, env.RainDebounce, func() {
		rain.Increment()
		rainLed.Flash()
	}); err != nil {
		logger.Fatalf("Failed to watch rain gauge [%v]", err)
	}
	logger.Infof("Counting [%v] pulses on [%v]", rain.Name(), env.RainSensorIn)
	if err := edges.RegisterEdgeHandler(env.WindSensorIn, env.WindDebounce, wind.Increment); err != nil {
		logger.Fatalf("Failed to watch anemometer [%v]", err)
	}
	logger.Infof("Counting [%v] pulses on [%v]", wind.Name(), env.WindSensorIn)

	status := &latestSample{}
	fanout := buildPublishers(cfg, args, table, status)
	defer func() {
		if err := fanout.Close(); err != nil {
			logger.Warnf("Closing publishers [%v]", err)
		}
	}()

	cutoff, err := batch.ParseCutoff(cfg.Sampling.RotateAt)
	if err != nil {
		logger.Fatalf("Invalid ROTATE_AT [%v]", err)
	}
	writer, err := batch.NewWriter(batch.Config{
		LiveDir:     cfg.Paths.Live,
		PendingDir:  cfg.Paths.Pending,
		Interval:    cfg.Sampling.Interval,
		Cutoff:      cutoff,
		MaxRows:     cfg.Sampling.MaxRows,
		VaneTimeout: cfg.Sampling.VaneTimeout,
	}, batch.Sensors{
		Primary:   atm,
		Secondary: hiRes,
		Baro:      atm,
		Hygro:     atm,
		Vane:      vane,
		Rain:      rain,
		Wind:      wind,
	}, fanout)
	if err != nil {
		logger.Fatalf("Failed to create batch writer [%v]", err)
	}
	writer.OnTick(heartbeat.Flash)

	startWebservice(cfg, args, status)

	driver := pipeline.NewDriver(func(ctx context.Context) (calibration.State, error) {
		return calibration.Calibrate(ctx, atm, hiRes, atm, cfg.Sampling.Elevation)
	}, writer, reducer)
	if err := driver.Run(ctx); err != nil {
		logger.Errorf("Pipeline failed [%v]", err)
		logger.Exit(1)
	}
	logger.Info("Exiting...")
}

// openStore connects the minute store when a database is configured. The
// station keeps running on files alone if postgres is unavailable.
func openStore(ctx context.Context, url string) archive.MinuteStore {
	if url == "" {
		return nil
	}
	store, err := archive.OpenPostgres(ctx, url)
	if err != nil {
		logger.Errorf("Minute store unavailable, archiving to files only [%v]", err)
		return nil
	}
	return store
}

func buildPublishers(cfg *env.Config, args env.Args, table sensors.DirectionTable, status *latestSample) *publish.Fanout {
	fanout := publish.NewFanout()
	fanout.Add("metrics", publish.MetricsPublisher{})
	fanout.Add("status", status)

	if len(cfg.Kafka.Brokers) > 0 {
		fanout.Add("kafka", publish.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.StationID))
	}
	if cfg.MQTT.Broker != "" {
		m, err := publish.NewMQTTPublisher(cfg.MQTT)
		if err != nil {
			logger.Errorf("MQTT disabled [%v]", err)
		} else {
			fanout.Add("mqtt", m)
		}
	}

	switch {
	case *args.Test || *args.NoWow:
		logger.Info("Met office reporting disabled")
	case cfg.WOW.SiteID == "" || cfg.WOW.Pin == "":
		logger.Error("Failed to read WOWSITEID/WOWPIN, not reporting to the met office")
	default:
		fanout.Add("wow", publish.NewWOWReporter(cfg.WOW, version, cfg.Sampling.Elevation, cfg.Sampling.Interval, table))
	}
	return fanout
}
