package pubsub

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/sequex-io/marketsync/internal/config"
	"github.com/sequex-io/marketsync/internal/marketdata/event"
)

// PubManager fans an outgoing payload out to every configured JetStream
// publisher, one per downstream connection.
type PubManager struct {
	publishers []*Publisher
	log        zerolog.Logger
}

func NewPubManager(connConfigs []*config.ConnectionConfig, log zerolog.Logger) (*PubManager, error) {
	publishers := make([]*Publisher, 0, len(connConfigs))
	for _, connConfig := range connConfigs {
		natsConn, err := nats.Connect(connConfig.ToNATSURL())
		if err != nil {
			log.Error().Err(err).Msg("failed to connect to NATS")
			return nil, err
		}
		publisher, err := NewPublisher(natsConn, connConfig.GetParam("stream", ""), connConfig.GetParam("subject", ""))
		if err != nil {
			log.Error().Err(err).Msg("failed to create publisher")
			return nil, err
		}
		publishers = append(publishers, publisher)
	}
	return &PubManager{publishers: publishers, log: log}, nil
}

// Publish sends a raw payload with headers to every publisher.
func (p *PubManager) Publish(data []byte, headers map[string]string) error {
	for _, publisher := range p.publishers {
		if err := publisher.Publish(data, headers); err != nil {
			return err
		}
	}
	return nil
}

// PublishMarketEvent serializes a MarketEvent and publishes it with
// symbol/kind routing headers.
func (p *PubManager) PublishMarketEvent(evt event.MarketEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	headers := map[string]string{"symbol": evt.Symbol, "kind": evt.Kind.String(), "venue": evt.Venue.String()}
	return p.Publish(data, headers)
}

func (p *PubManager) Close() {
	for _, publisher := range p.publishers {
		publisher.Close()
	}
}
