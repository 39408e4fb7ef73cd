/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/friendsincode/clipdeck/internal/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSBus mirrors the in-process bus onto a NATS subject tree so that
// every node sees every session event. Without a reachable server it
// degrades to the local bus.
type NATSBus struct {
	logger zerolog.Logger
	local  *events.Bus
	nodeID string
	prefix string

	mu   sync.RWMutex
	conn *nats.Conn
	sub  *nats.Subscription
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL    string
	Token  string
	Prefix string // subject prefix, events go to <prefix>.<event_type>

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Prefix:        "clipdeck.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSBus connects to NATS and starts relaying remote events into local.
// A connection failure is logged and the bus continues in local-only mode.
func NewNATSBus(cfg NATSConfig, local *events.Bus, logger zerolog.Logger) *NATSBus {
	if local == nil {
		local = events.NewBus()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultNATSConfig().Prefix
	}

	nb := &NATSBus{
		logger: logger.With().Str("component", "eventbus").Logger(),
		local:  local,
		nodeID: generateNodeID(),
		prefix: strings.TrimSuffix(cfg.Prefix, "."),
	}

	if cfg.URL == "" {
		return nb
	}

	opts := []nats.Option{
		nats.Name("clipdeck-" + nb.nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				nb.logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			nb.logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		nb.logger.Warn().Err(err).Str("url", cfg.URL).Msg("nats connection failed, using in-memory event bus")
		return nb
	}

	sub, err := conn.Subscribe(nb.prefix+".>", nb.relay)
	if err != nil {
		nb.logger.Warn().Err(err).Msg("nats subscribe failed, using in-memory event bus")
		conn.Close()
		return nb
	}

	nb.conn = conn
	nb.sub = sub
	nb.logger.Info().Str("url", cfg.URL).Str("prefix", nb.prefix).Msg("nats event bus connected")
	return nb
}

// Local returns the in-process bus subscribers attach to.
func (nb *NATSBus) Local() *events.Bus { return nb.local }

// Connected reports whether events are leaving the process.
func (nb *NATSBus) Connected() bool {
	nb.mu.RLock()
	defer nb.mu.RUnlock()
	return nb.conn != nil && nb.conn.IsConnected()
}

// Subscribe registers a local subscriber for an event type.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	return nb.local.Subscribe(eventType)
}

// Unsubscribe removes a local subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
}

// Publish delivers locally and, when connected, to other nodes.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	nb.mu.RLock()
	conn := nb.conn
	nb.mu.RUnlock()
	if conn == nil {
		return
	}

	data, err := marshalNATSMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Warn().Err(err).Str("event", string(eventType)).Msg("marshal event failed")
		return
	}
	if err := conn.Publish(nb.subject(eventType), data); err != nil {
		nb.logger.Warn().Err(err).Str("event", string(eventType)).Msg("nats publish failed")
	}
}

// Close drains the subscription and closes the connection.
func (nb *NATSBus) Close() error {
	nb.mu.Lock()
	conn := nb.conn
	nb.conn = nil
	nb.sub = nil
	nb.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

func (nb *NATSBus) subject(eventType events.EventType) string {
	return nb.prefix + "." + string(eventType)
}

func (nb *NATSBus) relay(msg *nats.Msg) {
	m, err := unmarshalNATSMessage(msg.Data)
	if err != nil {
		nb.logger.Debug().Err(err).Str("subject", msg.Subject).Msg("dropping malformed event")
		return
	}
	if m.NodeID == nb.nodeID {
		return
	}
	nb.local.Publish(m.EventType, m.Payload)
}

// natsMessage represents a message published to NATS.
type natsMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalNATSMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	msg := natsMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	}
	return json.Marshal(msg)
}

func unmarshalNATSMessage(data []byte) (*natsMessage, error) {
	var msg natsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal nats message: %w", err)
	}
	if msg.EventType == "" {
		return nil, fmt.Errorf("unmarshal nats message: missing event type")
	}
	return &msg, nil
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + uuid.NewString()[:8]
}
