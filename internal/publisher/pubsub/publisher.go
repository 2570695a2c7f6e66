// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub"
)

// Result is the pending outcome of one publish.
type Result interface {
	Get(ctx context.Context) (string, error)
}

// Topic publishes messages to one Pub/Sub topic.
type Topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) Result
	Stop()
}

// TopicFunc resolves a topic name to a Topic.
type TopicFunc func(name string) Topic

// ClientTopics adapts a Pub/Sub client to a TopicFunc.
func ClientTopics(client *pubsub.Client) TopicFunc {
	return func(name string) Topic {
		return clientTopic{topic: client.Topic(name)}
	}
}

type clientTopic struct {
	topic *pubsub.Topic
}

func (c clientTopic) Publish(ctx context.Context, msg *pubsub.Message) Result {
	return c.topic.Publish(ctx, msg)
}

func (c clientTopic) Stop() { c.topic.Stop() }

// Publisher marshals payloads to JSON and publishes them. When a topic name
// is configured every message goes there, with the logical topic carried in
// the "event" attribute.
type Publisher struct {
	resolve TopicFunc
	topic   string

	mu     sync.Mutex
	topics map[string]Topic
}

// New creates a Publisher. topic may be empty, in which case the topic passed
// to Publish is used.
func New(resolve TopicFunc, topic string) (*Publisher, error) {
	if resolve == nil {
		return nil, errors.New("pubsub topic resolver is required")
	}
	return &Publisher{resolve: resolve, topic: strings.TrimSpace(topic), topics: make(map[string]Topic)}, nil
}

// Publish marshals the payload to JSON and waits for the server ID.
func (p *Publisher) Publish(ctx context.Context, event string, payload any) (string, error) {
	name := p.topic
	if name == "" {
		name = event
	}
	if name == "" {
		return "", errors.New("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data}
	if event != "" {
		msg.Attributes = map[string]string{"event": event}
	}
	id, err := p.topicFor(name).Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func (p *Publisher) topicFor(name string) Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.resolve(name)
		p.topics[name] = t
	}
	return t
}

// Close flushes and stops every topic opened by the publisher.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, t := range p.topics {
		t.Stop()
		delete(p.topics, name)
	}
}
