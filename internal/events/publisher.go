package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/ever-scraper/internal/models"
	"github.com/maltedev/ever-scraper/internal/runner"
)

const (
	DefaultStream = "stream:ever_scraper"

	EventCategoryExported = "CATEGORY_EXPORTED"
	EventRunFinished      = "RUN_FINISHED"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Publisher announces exported categories and run completion on a Redis stream.
type Publisher struct {
	redis  RedisClient
	stream string
	runID  uuid.UUID
	logger *slog.Logger
	now    func() time.Time
}

func NewPublisher(client RedisClient, stream string, runID uuid.UUID, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{
		redis:  client,
		stream: stream,
		runID:  runID,
		logger: logger.With("component", "event_publisher"),
		now:    time.Now,
	}
}

func (p *Publisher) Name() string {
	return "redis"
}

type categoryExported struct {
	Category string `json:"product_category"`
	Records  int    `json:"records"`
	Sample   string `json:"sample_product,omitempty"`
}

// Save publishes a CATEGORY_EXPORTED event for one category.
func (p *Publisher) Save(ctx context.Context, category string, records []models.ProductRecord) error {
	payload := categoryExported{Category: category, Records: len(records)}
	if len(records) > 0 {
		payload.Sample = records[0].Name
	}
	return p.publish(ctx, EventCategoryExported, category, payload)
}

// RunFinished publishes a RUN_FINISHED event with the final run status.
func (p *Publisher) RunFinished(ctx context.Context, status runner.Status) error {
	return p.publish(ctx, EventRunFinished, status.RunID.String(), status)
}

func (p *Publisher) publish(ctx context.Context, eventType, aggregateID string, payload any) error {
	id := uuid.New()
	ts := p.now()

	streamData := map[string]interface{}{
		"id":           id.String(),
		"type":         eventType,
		"aggregate_id": aggregateID,
		"timestamp":    ts.Format(time.RFC3339),
		"payload":      payload,
		"metadata": map[string]interface{}{
			"source": "ever-scraper",
			"run_id": p.runID.String(),
		},
	}

	dataJSON, err := json.Marshal(streamData)
	if err != nil {
		return fmt.Errorf("failed to marshal stream data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":         string(dataJSON),
			"type":         eventType,
			"timestamp":    fmt.Sprintf("%d", ts.UnixNano()),
			"original_id":  id.String(),
			"aggregate_id": aggregateID,
			"run_id":       p.runID.String(),
		},
	}

	streamID, err := p.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("event published",
		"event_type", eventType,
		"aggregate_id", aggregateID,
		"stream", p.stream,
		"stream_id", streamID)

	return nil
}

func (p *Publisher) Close() error {
	return p.redis.Close()
}
