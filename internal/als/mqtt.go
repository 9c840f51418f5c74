// SPDX-License-Identifier: GPL-3.0-only

package als

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
)

const (
	// DefaultMQTTKey is the JSON field holding the illuminance.
	DefaultMQTTKey = "illuminance"

	// DefaultStaleAfter is how long a reading stays valid.
	DefaultStaleAfter = 5 * time.Minute

	connectTimeout = 10 * time.Second
)

// MQTTConfig describes a remote ambient light sensor publishing to a broker.
type MQTTConfig struct {
	Broker     string
	Topic      string
	ClientID   string
	Username   string
	Password   string
	Key        string
	StaleAfter time.Duration
}

// MQTT keeps the latest illuminance published on a topic.
type MQTT struct {
	client     mqtt.Client
	topic      string
	key        string
	staleAfter time.Duration
	now        func() time.Time

	mu       sync.RWMutex
	lux      uint64
	received time.Time
	seen     bool
}

var _ controller.AmbientLight = (*MQTT)(nil)

// NewMQTT connects to the broker and subscribes to the configured topic.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	s := newMQTT(cfg)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(func(c mqtt.Client) {
			// Subscriptions are not kept across reconnects without a persistent session.
			token := c.Subscribe(s.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
				s.handle(msg.Payload())
			})
			if token.Wait() && token.Error() != nil {
				log.Error().Err(token.Error()).Str("topic", s.topic).Msg("Failed to subscribe to ambient light topic")
				return
			}
			log.Info().Str("topic", s.topic).Msg("Subscribed to ambient light topic")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("Lost connection to MQTT broker")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}

	return s, nil
}

func newMQTT(cfg MQTTConfig) *MQTT {
	key := cfg.Key
	if key == "" {
		key = DefaultMQTTKey
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &MQTT{
		topic:      cfg.Topic,
		key:        key,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Get returns the latest reading, or ErrNoReading if none arrived yet or the
// last one is stale.
func (s *MQTT) Get() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.seen {
		return 0, ErrNoReading
	}
	if age := s.now().Sub(s.received); age > s.staleAfter {
		return 0, fmt.Errorf("last reading is %s old: %w", age.Round(time.Second), ErrNoReading)
	}
	return s.lux, nil
}

// Close disconnects from the broker.
func (s *MQTT) Close() {
	if s.client != nil {
		s.client.Disconnect(250)
	}
}

func (s *MQTT) handle(payload []byte) {
	lux, err := s.parse(payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", s.topic).Msg("Ignoring ambient light message")
		return
	}

	s.mu.Lock()
	s.lux = lux
	s.received = s.now()
	s.seen = true
	s.mu.Unlock()
}

// parse accepts a bare number or a JSON object holding the number under s.key.
func (s *MQTT) parse(payload []byte) (uint64, error) {
	text := strings.TrimSpace(string(payload))

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		var doc map[string]any
		if jsonErr := json.Unmarshal([]byte(text), &doc); jsonErr != nil {
			return 0, fmt.Errorf("payload is neither a number nor a JSON object: %w", jsonErr)
		}
		field, ok := doc[s.key].(float64)
		if !ok {
			return 0, fmt.Errorf("payload has no numeric %q field", s.key)
		}
		value = field
	}

	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid illuminance %v", value)
	}
	return uint64(math.Round(value)), nil
}
