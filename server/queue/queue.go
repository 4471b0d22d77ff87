// Package queue publishes messaging events to an AMQP broker for
// consumption by the rest of the platform: billing, moderation, analytics.
// The publisher is optional. When it's not configured every call is a no-op.
package queue

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/RinKhimera/fantribe-messenger/server/logs"
)

type configType struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	// Exchange to publish to, declared as a durable topic exchange.
	Exchange string `json:"exchange"`
}

// Event is the payload published on every routing key.
type Event struct {
	// Routing key, e.g. "message.created", "conversation.locked".
	What string `json:"what"`
	// Conversation name the event belongs to.
	Conv string `json:"conv,omitempty"`
	// Uid of the user who caused the event, if any.
	From string `json:"from,omitempty"`
	// Event-specific details.
	Params map[string]any `json:"params,omitempty"`
	// Server time of the event.
	Timestamp time.Time `json:"ts"`
}

// Publisher is a thin wrapper around an AMQP channel. Safe for concurrent
// use; amqp.Channel itself is not.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// Init connects to the broker and declares the exchange. Returns
// (nil, nil) if the publisher is not enabled in config.
func Init(jsonconf json.RawMessage) (*Publisher, error) {
	if len(jsonconf) == 0 {
		return nil, nil
	}

	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return nil, errors.New("queue: failed to parse config: " + err.Error())
	}
	if !config.Enabled {
		return nil, nil
	}
	if config.URL == "" {
		return nil, errors.New("queue: missing broker url")
	}
	if config.Exchange == "" {
		config.Exchange = "messenger.events"
	}

	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err = channel.ExchangeDeclare(config.Exchange, "topic",
		true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, channel: channel, exchange: config.Exchange}, nil
}

// Publish sends one event to the broker. A nil receiver is a no-op so the
// caller does not need to check if the publisher is configured.
func (p *Publisher) Publish(event *Event) {
	if p == nil {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		logs.Err.Println("queue: failed to serialize event:", err)
		return
	}

	p.mu.Lock()
	err = p.channel.Publish(p.exchange, event.What, false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   event.Timestamp,
			Body:        body,
		})
	p.mu.Unlock()

	// Events are advisory. Failures are logged, never propagated to the
	// user-facing operation which already succeeded.
	if err != nil {
		logs.Warn.Println("queue: failed to publish", event.What+":", err)
	}
}

// Close shuts down the broker connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.channel.Close()
	p.conn.Close()
}
