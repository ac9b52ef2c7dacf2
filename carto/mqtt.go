package carto

import (
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/paulmach/orb/geojson"
)

// TargetHandler receives each target anchor collection published on the
// target topic. err is set when the payload is not a FeatureCollection.
type TargetHandler func(target *geojson.FeatureCollection, err error)

// MQTTClient manages the broker connection and the target topic subscription
type MQTTClient struct {
	client        mqtt.Client
	config        *Config
	targetHandler TargetHandler
	connectHook   func()
	isConnected   bool
	mu            sync.RWMutex
}

// InitMQTT builds the broker client. Nothing is sent until Start; the
// target topic is subscribed on every (re)connect. When no broker is
// configured (MQTT_BROKER or mqtt.broker) MQTT is disabled and nil is
// returned.
func InitMQTT(config *Config, handler TargetHandler) (*MQTTClient, error) {
	if config == nil {
		config = DefaultConfig()
	}

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = config.MQTT.Broker
	}
	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	client := &MQTTClient{
		config:        config,
		targetHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = DefaultClientID
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	// A recompute must see target updates in publish order
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	return client, nil
}

// OnConnect registers fn to run after every (re)connect, once the target
// topic is subscribed. Call it before Start.
func (c *MQTTClient) OnConnect(fn func()) {
	c.connectHook = fn
}

// Start connects to the broker in the background, retrying until it succeeds
func (c *MQTTClient) Start() {
	go c.connectWithRetry()
}

func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	topic := c.config.MQTT.TargetTopic
	if topic == "" {
		log.Println("MQTT connected, no target topic configured (publish only)")
	} else {
		log.Printf("MQTT connected, subscribing to %s", topic)
		token := client.Subscribe(topic, 1, c.createTargetHandler())
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("Error subscribing to %s: %v", topic, token.Error())
		} else {
			log.Printf("Successfully subscribed to %s", topic)
		}
	}

	if c.connectHook != nil {
		c.connectHook()
	}
}

// onConnectionLost is transient; auto-reconnect takes over
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

func (c *MQTTClient) createTargetHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("Received target anchors (topic: %s, size: %d bytes)", msg.Topic(), len(payload))

		fc, err := ParseCollection(payload)
		if err != nil {
			log.Printf("Error decoding target anchors: %v", err)
		}
		if c.targetHandler != nil {
			c.targetHandler(fc, err)
		}
	}
}

// IsConnected returns true if the client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect closes the connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock wraps an existing mqtt.Client, for tests
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler TargetHandler) *MQTTClient {
	return &MQTTClient{
		client:        client,
		config:        config,
		targetHandler: handler,
	}
}
