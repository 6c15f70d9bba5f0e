package probe

import (
	"Go2NetTimeline/internal/config"
	"Go2NetTimeline/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// PacketHandler processes the packets decoded from one message.
type PacketHandler func(packets []model.RawPacket)

// Subscriber is responsible for subscribing to a NATS subject and processing messages.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	codec   string
	logger  *zap.Logger
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.IngestConfig, logger *zap.Logger) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NatsURL, nats.Name("timeline-ingest"))
	if err != nil {
		return nil, err
	}
	logger.Info("connected to NATS", zap.String("url", cfg.NatsURL))
	return &Subscriber{nc: nc, subject: cfg.Subject, codec: cfg.Codec, logger: logger}, nil
}

// Start subscribes to the configured subject and hands every decoded batch to handler.
func (s *Subscriber) Start(handler PacketHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		s.handle(msg, handler)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("subscribed to packet subject", zap.String("subject", s.subject), zap.String("codec", s.codec))
	return nil
}

func (s *Subscriber) handle(msg *nats.Msg, handler PacketHandler) {
	packets, err := DecodePackets(s.codec, msg.Data)
	if err != nil {
		s.logger.Warn("dropping undecodable message",
			zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if len(packets) > 0 {
		handler(packets)
	}
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("NATS ingest connection closed")
	}
}
