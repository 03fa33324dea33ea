// Package kafka provides the producer used to mirror outbound registry events
// onto a topic for downstream consumers.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer publishes records synchronously to one topic.
type Producer struct {
	client *kgo.Client
	topic  string
}

// Options tunes topic provisioning.
type Options struct {
	Partitions        int32
	ReplicationFactor int16
}

// NewProducer connects to brokers and makes sure topic exists.
func NewProducer(ctx context.Context, brokers []string, topic string, opts Options) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if opts.Partitions <= 0 {
		opts.Partitions = 6
	}
	if opts.ReplicationFactor <= 0 {
		opts.ReplicationFactor = 1
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping: %w", err)
	}
	if err := ensureTopic(ctx, kadm.NewClient(client), topic, opts); err != nil {
		client.Close()
		return nil, err
	}
	return &Producer{client: client, topic: topic}, nil
}

func ensureTopic(ctx context.Context, adm *kadm.Client, topic string, opts Options) error {
	resp, err := adm.CreateTopics(ctx, opts.Partitions, opts.ReplicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("kafka create topic: %w", err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("kafka create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Publish writes one record and waits for the broker acknowledgement.
func (p *Producer) Publish(ctx context.Context, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: p.topic, Key: key, Value: value}
	for k, v := range headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("kafka produce: %w", err)
	}
	return nil
}

// Topic returns the destination topic.
func (p *Producer) Topic() string { return p.topic }

// Close flushes and closes the client.
func (p *Producer) Close() {
	p.client.Close()
}
