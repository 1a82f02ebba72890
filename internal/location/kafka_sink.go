package location

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes persisted samples to a telemetry topic, keyed by
// driver id so one driver's trail stays ordered within a partition.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaSink{writer: w}
}

func (k *KafkaSink) Publish(ctx context.Context, u Update) error {
	b, err := json.Marshal(map[string]any{
		"driverId":  u.DriverID,
		"lat":       u.Sample.Coord.Lat,
		"lng":       u.Sample.Coord.Lng,
		"status":    u.Status,
		"rideId":    u.RideID,
		"timestamp": u.Sample.Time.UnixMilli(),
	})
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(u.DriverID), Value: b})
}

func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
