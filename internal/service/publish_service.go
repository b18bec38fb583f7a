package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quillstage/quillstage-api/internal/models"
	"github.com/quillstage/quillstage-api/pkg/config"
	"github.com/quillstage/quillstage-api/pkg/jobs"
)

// PublishService hands published resources to their delivery channel. In
// "self" mode the resource is already live once its status flips, so dispatch
// is a no-op. In "stream" mode a publication event is appended to a Redis
// stream keyed by resource type, retried by a background queue.
type PublishService struct {
	mode   string
	prefix string
	client *redis.Client
	queue  *jobs.Queue
	logger *zap.Logger
}

type publishEvent struct {
	ResourceID     string    `json:"resourceId"`
	ResourceType   string    `json:"resourceType"`
	OrganizationID string    `json:"organizationId"`
	Title          string    `json:"title"`
	PublishedAt    time.Time `json:"publishedAt"`
}

// NewPublishService constructs the dispatcher.
func NewPublishService(cfg config.PublishConfig, client *redis.Client, logger *zap.Logger) *PublishService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PublishService{
		mode:   cfg.Mode,
		prefix: cfg.StreamPrefix,
		client: client,
		logger: logger,
	}
	s.queue = jobs.NewQueue("publish", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *PublishService) Start(ctx context.Context) {
	if s.mode == config.PublishModeStream {
		s.queue.Start(ctx)
	}
}

// Stop drains the delivery workers.
func (s *PublishService) Stop() {
	if s.mode == config.PublishModeStream {
		s.queue.Stop()
	}
}

// Dispatch records a publication. The caller has already committed the status
// change, so errors here surface as warnings, never rollbacks.
func (s *PublishService) Dispatch(ctx context.Context, resource *models.Resource) error {
	if s.mode != config.PublishModeStream {
		s.logger.Info("resource published",
			zap.String("resource_id", resource.ID),
			zap.String("type", resource.Type))
		return nil
	}
	event := publishEvent{
		ResourceID:     resource.ID,
		ResourceType:   resource.Type,
		OrganizationID: resource.OrganizationID,
		Title:          resource.Title,
		PublishedAt:    time.Now().UTC(),
	}
	if resource.PublishedOn != nil {
		event.PublishedAt = *resource.PublishedOn
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      resource.ID,
		Type:    "publish",
		Payload: event,
	})
}

func (s *PublishService) deliver(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(publishEvent)
	if !ok {
		return fmt.Errorf("unexpected publish payload %T", job.Payload)
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode publish event: %w", err)
	}
	stream := fmt.Sprintf("%s:%s", s.prefix, event.ResourceType)
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"event": string(body)},
	}).Err(); err != nil {
		return fmt.Errorf("append publish event to %s: %w", stream, err)
	}
	s.logger.Info("publish event delivered",
		zap.String("resource_id", event.ResourceID),
		zap.String("stream", stream))
	return nil
}
