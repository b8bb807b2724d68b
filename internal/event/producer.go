package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dev-Corgi/Calobite/internal/domain"
	pkgkafka "github.com/Dev-Corgi/Calobite/pkg/kafka"
)

// Kafka topic constants for product domain events.
const (
	TopicProductCreated = "calobite.product.created"
	TopicProductViewed  = "calobite.product.viewed"
)

// Aggregate type constant.
const AggregateTypeProduct = "product"

// Source identifier for events originating from this service.
const SourceProductQueryService = "calobite"

// ProductCreatedData is the payload for a product.created event.
type ProductCreatedData struct {
	Code        string            `json:"code"`
	ProductName *string           `json:"product_name,omitempty"`
	Brands      *string           `json:"brands,omitempty"`
	Nutriments  domain.Nutriments `json:"nutriments,omitempty"`
}

// ProductViewedData is the payload for a product.viewed event.
type ProductViewedData struct {
	Code string `json:"code"`
}

// Producer publishes product domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the product query service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishProductCreated publishes a product.created event.
func (p *Producer) PublishProductCreated(ctx context.Context, product *domain.Product) error {
	data := ProductCreatedData{
		Code:        product.Code,
		ProductName: product.ProductName,
		Brands:      product.Brands,
		Nutriments:  product.Nutriments,
	}

	event, err := pkgkafka.NewEvent(TopicProductCreated, product.Code, AggregateTypeProduct, SourceProductQueryService, data)
	if err != nil {
		return fmt.Errorf("create product.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicProductCreated, event); err != nil {
		return fmt.Errorf("publish product.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published product.created event",
		slog.String("code", product.Code),
	)

	return nil
}

// PublishProductViewed publishes a product.viewed event.
func (p *Producer) PublishProductViewed(ctx context.Context, code string) error {
	data := ProductViewedData{Code: code}

	event, err := pkgkafka.NewEvent(TopicProductViewed, code, AggregateTypeProduct, SourceProductQueryService, data)
	if err != nil {
		return fmt.Errorf("create product.viewed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicProductViewed, event); err != nil {
		return fmt.Errorf("publish product.viewed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published product.viewed event",
		slog.String("code", code),
	)

	return nil
}
