package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/lifeinbox/intake/internal/dump"
	"github.com/lifeinbox/intake/pkg/kafka"
	"github.com/lifeinbox/intake/pkg/logging"
	"github.com/lifeinbox/intake/pkg/redis"
)

// Store is the persistence surface the dispatcher needs.
type Store interface {
	GetByID(ctx context.Context, id string) (*dump.Dump, error)
	InsertSuggestion(ctx context.Context, sg *dump.Suggestion) error
}

// Publisher emits suggestion.created events.
type Publisher interface {
	PublishContentEvent(event *kafka.ContentEvent) error
}

// Notification is pushed over Redis pub/sub so connected clients learn about
// new suggestions without polling.
type Notification struct {
	SuggestionID string     `json:"suggestion_id"`
	DumpID       string     `json:"dump_id"`
	OwnerID      string     `json:"owner_id"`
	Type         string     `json:"type"`
	RemindAt     *time.Time `json:"remind_at,omitempty"`
}

// Notifier publishes notifications to a channel.
type Notifier interface {
	Publish(ctx context.Context, channel string, msg Notification) error
}

// Dispatcher reacts to persisted dumps. Handlers run asynchronously, are
// isolated from each other, and never propagate failures to the producer.
type Dispatcher struct {
	logger   logging.Logger
	store    Store
	producer Publisher
	notifier Notifier
	source   string
	timeout  time.Duration
	clock    func() time.Time

	wg sync.WaitGroup
}

// Config wires the dispatcher. Producer and Notifier may be nil.
type Config struct {
	Logger   logging.Logger
	Store    Store
	Producer Publisher
	Notifier Notifier
	Source   string
	Timeout  time.Duration
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Source == "" {
		cfg.Source = "curator"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Dispatcher{
		logger:   cfg.Logger,
		store:    cfg.Store,
		producer: cfg.Producer,
		notifier: cfg.Notifier,
		source:   cfg.Source,
		timeout:  cfg.Timeout,
		clock:    time.Now,
	}
}

// ContentCreated schedules detection for a freshly persisted dump and returns
// immediately. The caller never waits for, or learns about, handler failures.
func (d *Dispatcher) ContentCreated(item *dump.Dump) {
	if item == nil {
		return
	}
	copied := *item
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.recoverPanic(copied.ID)

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.run(ctx, &copied)
	}()
}

// HandleContentEvent processes a content.created event from Kafka. Detection
// failures are logged, never returned, so the consumer always commits.
func (d *Dispatcher) HandleContentEvent(ctx context.Context, event kafka.ContentEvent) error {
	if event.EventType != kafka.EventContentCreated || event.DumpID == "" {
		return nil
	}
	defer d.recoverPanic(event.DumpID)

	item, err := d.store.GetByID(ctx, event.DumpID)
	if err != nil {
		d.logger.WithError(err).WithField("dump_id", event.DumpID).Warn("Cannot load dump for detection")
		return nil
	}
	d.run(ctx, item)
	return nil
}

// Wait blocks until all in-flight handlers finish. Used for shutdown and tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, item *dump.Dump) {
	log := logging.WithComponent(d.logger, "hooks").WithField("dump_id", item.ID)

	suggestions := Detect(item, d.clock())
	for i := range suggestions {
		sg := &suggestions[i]
		if err := d.store.InsertSuggestion(ctx, sg); err != nil {
			// Non-fatal and not retried: a failed detection just means no
			// suggestion for this item.
			log.WithError(err).WithField("type", sg.Type).Warn("Failed to store suggestion")
			continue
		}
		d.announce(ctx, sg, log)
	}

	if len(suggestions) > 0 {
		log.WithField("suggestions", len(suggestions)).Info("Detection produced suggestions")
	}
}

func (d *Dispatcher) announce(ctx context.Context, sg *dump.Suggestion, log logging.Entry) {
	if d.producer != nil {
		event := kafka.NewContentEvent(kafka.EventSuggestionCreated, d.source, sg.OwnerID, sg.DumpID)
		event.Data = map[string]interface{}{
			"suggestion_id": sg.ID,
			"type":          sg.Type,
			"payload":       sg.Payload,
		}
		if err := d.producer.PublishContentEvent(event); err != nil {
			log.WithError(err).Warn("Failed to publish suggestion.created event")
		}
	}

	if d.notifier != nil {
		notification := Notification{
			SuggestionID: sg.ID,
			DumpID:       sg.DumpID,
			OwnerID:      sg.OwnerID,
			Type:         sg.Type,
			RemindAt:     sg.RemindAt,
		}
		if err := d.notifier.Publish(ctx, redis.ChannelSuggestions, notification); err != nil {
			log.WithError(err).Warn("Failed to push suggestion notification")
		}
	}
}

func (d *Dispatcher) recoverPanic(dumpID string) {
	if r := recover(); r != nil {
		d.logger.WithField("dump_id", dumpID).Errorf("Detection handler panicked: %v", r)
	}
}
