package mqtt

import (
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 10 * time.Second
	opTimeout      = 5 * time.Second
)

// Subscriber keeps a broker subscription alive and feeds messages to a
// Handler. The status topic carries a retained online/offline marker.
type Subscriber struct {
	client  paho.Client
	handler *Handler
	logger  *slog.Logger
}

// NewSubscriber connects to broker and subscribes to the handler's filter.
// The subscription is renewed on every reconnect.
func NewSubscriber(broker, clientID string, handler *Handler, logger *slog.Logger) (*Subscriber, error) {
	s := &Subscriber{handler: handler, logger: logger}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(handler.Topic(TopicStatus), "offline", 1, true).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return s, nil
}

func (s *Subscriber) onConnect(c paho.Client) {
	token := c.Subscribe(s.handler.Filter(), 1, s.onMessage)
	if !token.WaitTimeout(opTimeout) || token.Error() != nil {
		s.logger.Error("mqtt subscribe failed", "filter", s.handler.Filter(), "error", token.Error())
		return
	}
	c.Publish(s.handler.Topic(TopicStatus), 1, true, "online")
	s.logger.Info("mqtt subscribed", "filter", s.handler.Filter())
}

func (s *Subscriber) onMessage(_ paho.Client, msg paho.Message) {
	if msg.Topic() == s.handler.Topic(TopicStatus) {
		return
	}
	if err := s.handler.Handle(msg.Topic(), msg.Payload()); err != nil {
		s.logger.Warn("mqtt signal rejected", "topic", msg.Topic(), "error", err)
	}
}

// Close marks the client offline and disconnects.
func (s *Subscriber) Close() error {
	token := s.client.Publish(s.handler.Topic(TopicStatus), 1, true, "offline")
	token.WaitTimeout(opTimeout)
	s.client.Disconnect(1000) // 1 second quiesce
	return nil
}
