package pubsub

import "github.com/nats-io/nats.go"

// Publisher wraps a single JetStream subject, publishing payloads with
// optional NATS message headers (e.g. symbol/kind routing metadata).
type Publisher struct {
	nats       *nats.Conn
	js         nats.JetStreamContext
	streamName string
	subject    string
}

func NewPublisher(conn *nats.Conn, jetstream string, subject string) (*Publisher, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{nats: conn, js: js, streamName: jetstream, subject: subject}, nil
}

// Publish sends data on the publisher's subject, attaching headers when
// present.
func (p *Publisher) Publish(data []byte, headers map[string]string) error {
	if len(headers) == 0 {
		_, err := p.js.Publish(p.subject, data)
		return err
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	_, err := p.js.PublishMsg(msg)
	return err
}

func (p *Publisher) Close() {
	p.nats.Close()
}
