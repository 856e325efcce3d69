package kafka

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"

	"github.com/route-beacon/bird-collector/internal/collector"
	"github.com/route-beacon/bird-collector/internal/metrics"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"
)

// Producer publishes peer state-change events, one record per event keyed
// by "<instance id>/<peer name>" so a session's events stay on one partition.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger
}

func NewProducer(brokers []string, clientID, topic string, tlsCfg *tls.Config, mech sasl.Mechanism, logger *zap.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if tlsCfg != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}
	if mech != nil {
		opts = append(opts, kgo.SASL(mech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return &Producer{client: client, topic: topic, logger: logger}, nil
}

func buildRecords(topic string, events []collector.PeerEvent) ([]*kgo.Record, error) {
	records := make([]*kgo.Record, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("marshal event for %s: %w", ev.Peer, err)
		}
		records = append(records, &kgo.Record{
			Topic:     topic,
			Key:       []byte(ev.InstanceID + "/" + ev.Peer),
			Value:     value,
			Timestamp: ev.At,
		})
	}
	return records, nil
}

// Publish produces the events synchronously.
func (p *Producer) Publish(ctx context.Context, events []collector.PeerEvent) error {
	if len(events) == 0 {
		return nil
	}
	records, err := buildRecords(p.topic, events)
	if err != nil {
		return err
	}

	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues("error").Add(float64(len(records)))
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}

	metrics.EventsPublishedTotal.WithLabelValues("ok").Add(float64(len(records)))
	p.logger.Debug("peer events published", zap.String("topic", p.topic), zap.Int("count", len(records)))
	return nil
}

// Ping checks that at least one broker is reachable.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Producer) Close() {
	p.client.Close()
}
