//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"finsights/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange",
		RoutingKey: "test-routing-key",
		QueueName:  "test-queue",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.NoError(err)
	s.NotNil(pub)

	err = pub.Close()
	s.NoError(err)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishNewsItem() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-news",
		RoutingKey: "test-routing-key-news",
		QueueName:  "test-queue-news",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	now := time.Now().Truncate(time.Millisecond)
	item := &domain.NewsItem{
		ID:             "item-1",
		Category:       "sector",
		Subcategory:    "banking",
		Symbols:        []string{"HDFCBANK", "ICICIBANK"},
		Title:          "Banking stocks rally on rate cut hopes",
		Summary:        "Lenders gained ahead of the RBI policy decision.",
		Content:        "Full article body.",
		NewsType:       domain.NewsTypeArticle,
		SentimentScore: 4,
		Citations: []domain.Citation{
			{Index: 1, URL: "https://www.moneycontrol.com/news/x", Title: "moneycontrol"},
		},
		FetchedAt:   now,
		Fingerprint: "fp-1",
	}

	err = pub.PublishNewsItem(s.ctx, item)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	s.Equal("application/json", msg.ContentType)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)

	var received NewsItemMessage
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)

	s.Equal("created", received.Action)
	s.Equal("item-1", received.Item.ID)
	s.Equal("sector", received.Item.Category)
	s.Equal("Banking stocks rally on rate cut hopes", received.Item.Title)
	s.Equal(4, received.Item.SentimentScore)
	s.Len(received.Item.Symbols, 2)
	s.Len(received.Item.Citations, 1)
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
