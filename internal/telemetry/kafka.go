package telemetry

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/silentarmy/stratum-miner/pkg/errors"
	"github.com/silentarmy/stratum-miner/pkg/log"
)

const kafkaStatsTopic = "sa-miner-stats"

// NewKafkaSink streams each stats line as a message, for downstream
// consumption by anything else watching the fleet.
func NewKafkaSink(brokers []string, logger *log.Logger) *AsyncSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        kafkaStatsTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}

	return newAsyncSink("kafka", logger, func(ctx context.Context, line string) error {
		err := writer.WriteMessages(ctx, kafka.Message{Value: []byte(line), Time: time.Now()})
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeTelemetry, "kafka_publish", "failed to publish stats to Kafka")
		}
		return nil
	})
}
