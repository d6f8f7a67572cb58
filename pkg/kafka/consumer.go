package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Message represents a generic Kafka message
type Message struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Handler is a function that processes a Kafka message
type Handler func(ctx context.Context, msg Message) error

// DLQSink receives messages that exhausted their delivery attempts.
// *Producer satisfies this.
type DLQSink interface {
	PublishDLQ(msg Message, cause error) error
}

type recordRef struct {
	topic     string
	partition int32
	offset    int64
}

// Consumer routes Kafka messages to per-topic handlers with manual
// commits. A failed message blocks its partition so offsets past it are
// never committed; after maxAttempts deliveries the message is parked in
// the topic's dead-letter queue and the partition unblocks.
type Consumer struct {
	client      *kgo.Client
	logger      *logrus.Logger
	groupID     string
	dlq         DLQSink
	maxAttempts int

	mu       sync.RWMutex
	handlers map[string]Handler
	failures map[recordRef]int
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, groupID string, clientID string, logger *logrus.Logger) (*Consumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ClientID(clientID),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Consumer{
		client:      client,
		logger:      logger,
		groupID:     groupID,
		maxAttempts: 5,
		handlers:    make(map[string]Handler),
		failures:    make(map[recordRef]int),
	}, nil
}

// SetDLQ routes messages that exhaust delivery attempts to a dead-letter
// sink instead of blocking their partition forever.
func (c *Consumer) SetDLQ(sink DLQSink) {
	c.dlq = sink
}

// AddHandler registers a handler for a specific topic and subscribes to it
func (c *Consumer) AddHandler(topic string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[topic] = handler
	c.client.AddConsumeTopics(topic)
}

// Close closes the underlying client
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}

// Start polls until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			fetches := c.client.PollFetches(ctx)
			if errs := fetches.Errors(); len(errs) > 0 {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Errorf("errors while polling: %v", errs)
				continue
			}

			var records []*kgo.Record
			iter := fetches.RecordIter()
			for !iter.Done() {
				records = append(records, iter.Next())
			}

			commits := c.processRecords(ctx, records)
			if len(commits) > 0 {
				if err := c.client.CommitRecords(ctx, commits...); err != nil {
					c.logger.WithError(err).Error("failed to commit records")
				}
			}
		}
	}
}

// processRecords dispatches a poll batch and returns the records whose
// offsets are safe to commit, one per topic/partition.
func (c *Consumer) processRecords(ctx context.Context, records []*kgo.Record) []*kgo.Record {
	type topicPartition struct {
		topic     string
		partition int32
	}
	blocked := make(map[topicPartition]bool)
	lastSuccess := make(map[topicPartition]*kgo.Record)

	for _, record := range records {
		tp := topicPartition{topic: record.Topic, partition: record.Partition}
		if blocked[tp] {
			// An earlier offset in this partition failed; committing past
			// it would lose the failed message on restart.
			continue
		}

		c.mu.RLock()
		handler, exists := c.handlers[record.Topic]
		c.mu.RUnlock()

		if !exists {
			// No handler registered - still commit to avoid reprocessing
			c.logger.WithField("topic", record.Topic).Warn("No handler registered for topic")
			lastSuccess[tp] = record
			continue
		}

		msg := recordToMessage(record)
		ref := recordRef{topic: record.Topic, partition: record.Partition, offset: record.Offset}

		if err := handler(ctx, msg); err != nil {
			if c.noteFailure(ref) {
				c.parkInDLQ(msg, err)
				lastSuccess[tp] = record
				continue
			}

			c.logger.WithError(err).WithFields(logrus.Fields{
				"topic":     record.Topic,
				"partition": record.Partition,
				"offset":    record.Offset,
			}).Error("Failed to handle message - will retry on restart")
			blocked[tp] = true
			continue
		}

		c.clearFailure(ref)
		lastSuccess[tp] = record
	}

	if len(lastSuccess) == 0 {
		return nil
	}

	commits := make([]*kgo.Record, 0, len(lastSuccess))
	for _, record := range lastSuccess {
		commits = append(commits, record)
	}
	return commits
}

// noteFailure counts a delivery failure and reports whether the message
// has exhausted its attempts and a DLQ sink is available.
func (c *Consumer) noteFailure(ref recordRef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures[ref]++
	if c.dlq == nil || c.failures[ref] < c.maxAttempts {
		return false
	}
	delete(c.failures, ref)
	return true
}

func (c *Consumer) clearFailure(ref recordRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failures, ref)
}

func (c *Consumer) parkInDLQ(msg Message, cause error) {
	log := c.logger.WithFields(logrus.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})
	if err := c.dlq.PublishDLQ(msg, cause); err != nil {
		// The message is committed regardless; losing it here is the
		// price of unblocking the partition.
		log.WithError(err).Error("Failed to park message in DLQ")
		return
	}
	log.WithError(cause).Warn("Message exhausted delivery attempts, parked in DLQ")
}

func recordToMessage(record *kgo.Record) Message {
	hdrs := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		hdrs[h.Key] = string(h.Value)
	}
	return Message{
		Key:       record.Key,
		Value:     record.Value,
		Headers:   hdrs,
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Timestamp: record.Timestamp,
	}
}

// HealthCheck pings the broker
func (c *Consumer) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}

func (c *Consumer) GetClient() *kgo.Client {
	return c.client
}

func (c *Consumer) GetMetrics() (map[string]interface{}, error) {
	return map[string]interface{}{
		"group_id": c.groupID,
	}, nil
}
