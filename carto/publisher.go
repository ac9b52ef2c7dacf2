package carto

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes cartogram results to MQTT:
//
//	{prefix}/background   transformed background FeatureCollection
//	{prefix}/grid/interp  deformed mesh FeatureCollection
//	{prefix}/status       Summary, published last
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *Summary
	mu            sync.RWMutex
}

// NewPublisher creates a publisher using MQTT_PUBLISH_PREFIX or the default
// prefix. A nil client disables publishing.
func NewPublisher(client mqtt.Client) *Publisher {
	return NewPublisherWithPrefix(client, os.Getenv("MQTT_PUBLISH_PREFIX"))
}

// NewPublisherWithPrefix creates a publisher for the given topic prefix
func NewPublisherWithPrefix(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
		retain:        true,
	}
}

// Prefix returns the topic prefix
func (p *Publisher) Prefix() string { return p.publishPrefix }

// PublishCartogram publishes the background, the interp mesh and the status
// of c
func (p *Publisher) PublishCartogram(c *Cartogram) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	background, err := c.TransformBackground()
	if err != nil {
		return fmt.Errorf("publishing cartogram: %w", err)
	}
	if err := p.publish("background", background); err != nil {
		return err
	}
	if err := p.publish("grid/interp", c.InterpMesh()); err != nil {
		return err
	}

	summary := c.Summary()
	if err := p.publish("status", summary); err != nil {
		return err
	}

	p.mu.Lock()
	p.last = &summary
	p.mu.Unlock()

	log.Printf("Published cartogram to %s/ (%d anchors, max residual %.4g)",
		p.publishPrefix, summary.Anchors, summary.Stats.MaxResidual)
	return nil
}

func (p *Publisher) publish(subtopic string, v interface{}) error {
	topic := fmt.Sprintf("%s/%s", p.publishPrefix, subtopic)

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// LastSummary returns the status most recently published
func (p *Publisher) LastSummary() (Summary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Summary{}, false
	}
	return *p.last, true
}

// SetQoS sets the publish QoS (0, 1 or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether the broker retains published messages
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
