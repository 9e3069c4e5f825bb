package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connTimeout    = 10
	reconnTimeout  = 1
	disconnTimeout = 250

	announceTopicTemplate = "swarm/%s/model/announce"
)

var (
	errConnectTimeout   = errors.New("timeout reached while connecting to MQTT broker")
	errSubscribeTimeout = errors.New("failed to subscribe due to timeout reached")
	errEmptySwarm       = errors.New("empty swarm ID")
)

// Announcement is what the averaging side publishes when a new consensus
// model lands in the repository.
type Announcement struct {
	Repo     string    `json:"repo"`
	Digest   string    `json:"digest"`
	PushedAt time.Time `json:"pushed_at"`
}

// Watcher listens for averaged-model announcements on the swarm's MQTT
// channel and latches a flag the gateway's submission poll consumes. This
// keeps the training hot path free of registry round-trips.
type Watcher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
	pending atomic.Bool
	logger  *slog.Logger
}

func NewWatcher(brokerURL, clientID, swarmID string, qos byte, timeout time.Duration, logger *slog.Logger) (*Watcher, error) {
	if swarmID == "" {
		return nil, errEmptySwarm
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connTimeout * time.Second).
		SetMaxReconnectInterval(reconnTimeout * time.Minute)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("MQTT connection established")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		args := []any{}
		if err != nil {
			args = append(args, slog.Any("error", err))
		}
		logger.Info("MQTT connection lost", args...)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Error() != nil {
		return nil, errors.Join(errors.New("failed to connect to MQTT broker"), token.Error())
	}
	if ok := token.WaitTimeout(timeout); !ok {
		return nil, errConnectTimeout
	}

	return &Watcher{
		client:  client,
		topic:   fmt.Sprintf(announceTopicTemplate, swarmID),
		qos:     qos,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Start subscribes to the announcement topic. Malformed announcements are
// logged and dropped; the latch only moves on a decodable payload.
func (w *Watcher) Start(_ context.Context) error {
	token := w.client.Subscribe(w.topic, w.qos, func(_ mqtt.Client, m mqtt.Message) {
		var a Announcement
		if err := json.Unmarshal(m.Payload(), &a); err != nil {
			w.logger.Warn("failed to unmarshal model announcement", slog.Any("error", err))

			return
		}

		w.pending.Store(true)
		w.logger.Info("averaged model announced",
			slog.String("repo", a.Repo),
			slog.String("digest", a.Digest))
		m.Ack()
	})
	if token.Error() != nil {
		return token.Error()
	}
	if ok := token.WaitTimeout(w.timeout); !ok {
		return errSubscribeTimeout
	}

	return nil
}

// ConsumeAnnouncement returns whether an announcement arrived since the
// last call and clears the latch.
func (w *Watcher) ConsumeAnnouncement() bool {
	return w.pending.Swap(false)
}

func (w *Watcher) Disconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		w.client.Disconnect(disconnTimeout)

		return nil
	}
}
