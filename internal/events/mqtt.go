package events

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/nestorwheelock/diveops/internal/series"
)

// Publisher pushes occurrence state changes to an MQTT broker so external
// collaborators (notification service, mobile push) can consume them. The
// engine fires and forgets; it never waits on delivery.
type Publisher struct {
	client mqtt.Client
}

var _ series.EventPublisher = (*Publisher)(nil)

func NewPublisher(brokerURL, clientID string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", brokerURL).Msg("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Error().Err(err).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return &Publisher{client: client}, nil
}

// Publish emits one occurrence event on excursions/<series_id>/events.
func (p *Publisher) Publish(ev series.OccurrenceEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal occurrence event")
		return
	}
	topic := fmt.Sprintf("excursions/%d/events", ev.SeriesID)
	p.client.Publish(topic, 1, false, payload)
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
