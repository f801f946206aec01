package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Publishable is an event that knows the topic it belongs to.
type Publishable interface {
	GetEventTopicName() string
}

type Client struct {
	ctx    context.Context
	client *pubsub.Client
}

func NewClient(ctx context.Context, projectID string) (*Client, error) {
	if projectID == "" {
		return nil, errors.New("pub sub missing projectID to initialize")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "error initializing pub sub connection")
	}
	log.Info().Str("project_id", projectID).Msg("Successful pubsub init")
	return &Client{ctx: ctx, client: client}, nil
}

// Subscribe blocks until the client context is cancelled.
func (c *Client) Subscribe(subscriptionHandler SubscriptionHandler) {
	sub := c.client.Subscription(subscriptionHandler.SubscriptionId)
	err := sub.Receive(c.ctx, subscriptionHandler.Handler)
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Subscriber error for sub id %s", subscriptionHandler.SubscriptionId))
	}
}

func (c *Client) Publish(message Publishable) {
	t, err := c.getTopic(message.GetEventTopicName())
	if err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Failed to publish message for %s", message.GetEventTopicName()))
		return
	}
	defer t.Stop()

	result := t.Publish(c.ctx, &pubsub.Message{Data: encodeMessage(message)})

	if _, err := result.Get(c.ctx); err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Failed to publish message for %s", message.GetEventTopicName()))
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) getTopic(topicName string) (*pubsub.Topic, error) {
	t := c.client.Topic(topicName)
	exists, err := t.Exists(c.ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return t, nil
	}
	log.Info().Msg(fmt.Sprintf("Topic %s does not exist. Creating new", topicName))
	return c.client.CreateTopic(c.ctx, topicName)
}

func encodeMessage(message any) []byte {
	switch m := message.(type) {
	case string:
		return []byte(m)
	default:
		bytes, _ := json.Marshal(m)
		return bytes
	}
}

// DecodeMessage is the inverse of the publish encoding.
func DecodeMessage[T any](message *pubsub.Message) (*T, error) {
	var value T
	if err := json.Unmarshal(message.Data, &value); err != nil {
		return nil, errors.Wrap(err, "decoding pubsub message")
	}
	return &value, nil
}

type SubscriptionHandler struct {
	SubscriptionId string
	Handler        func(ctx context.Context, message *pubsub.Message)
}
