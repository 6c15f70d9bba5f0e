package probe

import (
	"Go2NetTimeline/internal/config"
	"Go2NetTimeline/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// conn is the subset of *nats.Conn used for publishing.
type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher forwards timeline events to NATS subjects named
// <prefix>.<event>.
type Publisher struct {
	nc     *nats.Conn
	conn   conn
	prefix string
	codec  string
	logger *zap.Logger
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.EventsConfig, logger *zap.Logger) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NatsURL, nats.Name("timeline-events"))
	if err != nil {
		return nil, err
	}
	logger.Info("connected to NATS", zap.String("url", cfg.NatsURL))
	p := newPublisher(nc, cfg.SubjectPrefix, cfg.Codec, logger)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, prefix, codec string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: c, prefix: prefix, codec: codec, logger: logger}
}

// Subject returns the subject an event is published on.
func (p *Publisher) Subject(name model.EventName) string {
	return p.prefix + "." + string(name)
}

// Publish serializes ev with the configured codec and publishes it.
func (p *Publisher) Publish(ev model.Event) error {
	data, err := EncodeEvent(p.codec, ev)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.Subject(ev.Name), data)
}

// Handle publishes ev and logs failures. It can be subscribed to a timeline bus.
func (p *Publisher) Handle(ev model.Event) {
	if err := p.Publish(ev); err != nil {
		p.logger.Warn("failed to publish event", zap.String("event", string(ev.Name)), zap.Error(err))
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.logger.Info("NATS event connection drained and closed")
	}
}
