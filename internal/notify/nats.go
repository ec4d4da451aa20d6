// Package notify hands outbox events to the notification bus.
package notify

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher delivers one serialized event to a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type NATSConfig struct {
	URL            string
	Token          string
	Name           string
	ReconnectWait  time.Duration
	ReconnectBytes int
}

// NATSPublisher publishes on a core NATS connection that reconnects forever.
type NATSPublisher struct {
	conn *nats.Conn
	log  *zap.Logger
}

func ConnectNATS(cfg NATSConfig, log *zap.Logger) (*NATSPublisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.ReconnectBytes <= 0 {
		cfg.ReconnectBytes = 8 * 1024 * 1024
	}
	if cfg.Name == "" {
		cfg.Name = "agencyflow-realtime"
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectBufSize(cfg.ReconnectBytes),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error("nats async error", zap.String("subject", subject), zap.Error(err))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Info("connected to nats", zap.String("url", nc.ConnectedUrl()))
	return &NATSPublisher{conn: nc, log: log}, nil
}

func (p *NATSPublisher) Publish(subject string, data []byte) error {
	if !p.conn.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return p.conn.Publish(subject, data)
}

func (p *NATSPublisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Close drains pending publishes before closing.
func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.log.Warn("nats drain failed", zap.Error(err))
		p.conn.Close()
	}
}

// LogPublisher writes events to the log. It stands in when no bus is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(subject string, data []byte) error {
	p.log.Info("notification", zap.String("subject", subject), zap.ByteString("payload", data))
	return nil
}
