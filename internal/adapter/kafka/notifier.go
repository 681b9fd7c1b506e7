package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/hearthdata/market-engine/internal/domain"
)

// Notifier publishes dataset refresh events to a Kafka topic so downstream
// consumers (cache warmers, report builders) learn about new snapshot
// generations without polling. It implements dataset.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the refresh topic.
func NewNotifier(brokers []string, topic string, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// refreshEvent is the wire form of one snapshot publication.
type refreshEvent struct {
	Family       domain.Family `json:"family"`
	LoadedAt     time.Time     `json:"loaded_at"`
	DownloadedAt time.Time     `json:"downloaded_at"`
	ZipRegions   int           `json:"zip_regions"`
	MetroRegions int           `json:"metro_regions"`
}

// NotifyRefresh serializes and publishes one refresh event, keyed by family
// so per-family ordering is preserved within a partition.
func (n *Notifier) NotifyRefresh(ctx context.Context, snap *domain.DatasetSnapshot) error {
	msg, err := serializeToMessage(snap)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, msg)
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a snapshot's metadata into a Kafka message.
func serializeToMessage(snap *domain.DatasetSnapshot) (kafkago.Message, error) {
	event := refreshEvent{
		Family:       snap.Family,
		LoadedAt:     snap.LoadedAt,
		DownloadedAt: snap.DownloadedAt,
		ZipRegions:   len(snap.ZipIndex),
		MetroRegions: len(snap.MetroIndex),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize refresh event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(snap.Family),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "refreshed_at", Value: []byte(snap.LoadedAt.Format(time.RFC3339))},
		},
	}, nil
}
