// Package main implements sa-miner, the Stratum-speaking coordinator that
// drives one or more sa-solver GPU processes against a Zcash mining pool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/silentarmy/stratum-miner/internal/config"
	"github.com/silentarmy/stratum-miner/internal/coordinator"
	"github.com/silentarmy/stratum-miner/internal/solver"
	"github.com/silentarmy/stratum-miner/internal/stratum"
	"github.com/silentarmy/stratum-miner/internal/telemetry"
	"github.com/silentarmy/stratum-miner/pkg/log"
)

const (
	serviceName    = "sa-miner"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.List {
		execList(cfg)
		return
	}

	logLevel := "info"
	if cfg.Debug || cfg.Verbose > 0 {
		logLevel = "debug"
	}
	logger := log.New(serviceName, serviceVersion, logLevel, "text")
	logger.Info("starting sa-miner",
		"version", serviceVersion,
		"pool_host", cfg.Host,
		"pool_port", cfg.Port,
		"user", cfg.User,
		"devices", cfg.Use,
		"instances_per_device", cfg.InstancesPerID,
	)

	sinks := buildSinks(cfg, logger)

	client := stratum.NewClient(stratum.ClientConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		User:         cfg.User,
		Pwd:          cfg.Pwd,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)

	devIDs := cfg.DevIDs()
	if len(devIDs) > 0 {
		if _, err := exec.LookPath(cfg.SolverBinary); err != nil {
			logger.WithError(err).WithFields("binary", cfg.SolverBinary).Error("sa-solver binary not found")
			os.Exit(1)
		}
	}

	supervisor := solver.New(solver.Config{
		BinaryPath: cfg.SolverBinary,
		DevIDs:     devIDs,
	}, logger)

	coordSinks := make([]coordinator.Sink, 0, len(sinks))
	for _, s := range sinks {
		coordSinks = append(coordSinks, s)
	}
	coord := coordinator.New(client, supervisor, logger, coordSinks...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.Run(ctx)
	go supervisor.Run(ctx)
	go coord.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	// Spec mandates immediate exit without clean solver teardown; the only
	// thing worth waiting on is letting a last telemetry sample flush.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer drainCancel()
	for _, s := range sinks {
		s.Close(drainCtx)
	}

	os.Exit(0)
}

// buildSinks constructs every telemetry sink whose config fields were set,
// logging and skipping any that fail to connect rather than aborting startup.
func buildSinks(cfg *config.Config, logger *log.Logger) []*telemetry.AsyncSink {
	var sinks []*telemetry.AsyncSink

	if cfg.RedisAddr != "" {
		sink, err := telemetry.NewRedisSink(cfg.RedisAddr, logger)
		if err != nil {
			logger.WithError(err).Warn("telemetry: redis sink disabled")
		} else {
			sinks = append(sinks, sink)
		}
	}

	if cfg.InfluxURL != "" {
		sink, err := telemetry.NewInfluxSink(telemetry.InfluxConfig{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("telemetry: influx sink disabled")
		} else {
			sinks = append(sinks, sink)
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, telemetry.NewKafkaSink(cfg.KafkaBrokers, logger))
	}

	return sinks
}

// execList replaces the current process with "sa-solver --list" so the
// user sees exactly the solver's own device listing, falling back to a
// spawn-and-forward-exit-code strategy on platforms without exec(2).
func execList(cfg *config.Config) {
	args := []string{cfg.SolverBinary, "--list"}

	if runtime.GOOS != "windows" {
		binPath, err := exec.LookPath(cfg.SolverBinary)
		if err == nil {
			env := os.Environ()
			if err := syscall.Exec(binPath, args, env); err == nil {
				return // unreachable on success
			}
		}
	}

	spawnAndForward(cfg.SolverBinary)
}

func spawnAndForward(binaryPath string) {
	cmd := exec.Command(binaryPath, "--list")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "failed to run %s --list: %v\n", binaryPath, err)
		os.Exit(1)
	}
}
