package telemetry

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/silentarmy/stratum-miner/pkg/errors"
	"github.com/silentarmy/stratum-miner/pkg/log"
	"github.com/silentarmy/stratum-miner/pkg/retry"
)

// InfluxConfig holds the InfluxDB connection details for the stats sink.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewInfluxSink writes every stats sample as a point, so throughput history
// survives past the coordinator's in-memory 30-sample ring.
func NewInfluxSink(cfg InfluxConfig, logger *log.Logger) (*AsyncSink, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	healthStatus := ""
	healthErr := retry.Do(ctx, retry.NetworkConfig(), func() error {
		h, err := client.Health(ctx)
		if err != nil {
			return err
		}
		healthStatus = string(h.Status)
		return nil
	})
	if healthErr != nil {
		return nil, errors.Wrap(healthErr, errors.ErrorTypeTelemetry, "influx_connect", "failed to reach InfluxDB").
			WithContext("url", cfg.URL)
	}
	if healthStatus != "pass" {
		return nil, errors.New(errors.ErrorTypeTelemetry, "influx_connect", "InfluxDB health check did not pass").
			WithContext("url", cfg.URL)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.WithComponent("telemetry_influx").WithError(err).Warn("influx write error")
		}
	}()

	sink := newAsyncSink("influx", logger, func(_ context.Context, line string) error {
		point := write.NewPoint("sa_miner_stats", map[string]string{}, map[string]any{"line": line}, time.Now())
		writeAPI.WritePoint(point)
		return nil
	})
	return sink, nil
}
