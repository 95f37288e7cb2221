package api

import (
	"context"
	"strings"

	"dispatchd/internal/assign"
	"dispatchd/internal/config"
	"dispatchd/internal/store"
	"dispatchd/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Engine *assign.Controller
	Pub    *webhooks.Publisher
	Broker EventBroker

	cfg config.Server
}

// NewServer wires the store, broker, webhook publisher, and assignment
// engine. DATABASE_URL unset means in-memory store; REDIS_URL unset
// means in-process broker.
func NewServer(cfg config.Server) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sp.Migrate(context.Background()); err != nil {
			return nil, err
		}
		s = sp
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	engineCfg, err := config.LoadEngine(cfg.EngineConfigPath)
	if err != nil {
		return nil, err
	}
	// Stored overrides win over file config across restarts.
	if saved, err := s.GetEngineConfig(context.Background()); err == nil && saved != nil {
		engineCfg = overlayEngineConfig(engineCfg, saved)
	}

	pub := webhooks.NewPublisher(s)
	sink := &eventSink{broker: broker, pub: pub}
	engine := assign.NewController(engineCfg, nil, assign.NewTracker(), assign.NewHistory(0), sink)

	return &Server{Store: s, Engine: engine, Pub: pub, Broker: broker, cfg: cfg}, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.cfg.WebhookMaxAttempts)
}

// eventSink bridges engine events to the stream broker and the webhook
// publisher.
type eventSink struct {
	broker EventBroker
	pub    *webhooks.Publisher
}

func (e *eventSink) Publish(eventType string, data map[string]any) {
	topic := TopicAssignments
	switch {
	case strings.HasPrefix(eventType, "cycle."):
		topic = TopicCycles
	case strings.HasPrefix(eventType, "order."):
		topic = TopicOrders
	}
	e.broker.Publish(topic, Event{Type: eventType, Data: data})
	e.pub.Emit(context.Background(), eventType, data)
}
