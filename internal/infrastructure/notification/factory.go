package notification

import (
	"fmt"
	"io"

	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Notification drivers
const (
	DriverLog  = "log"
	DriverAMQP = "amqp"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the notifier selected by cfg.Driver. The closer releases broker
// resources on shutdown.
func New(cfg config.NotificationConfig, logger *zap.Logger) (invoicing.Notifier, io.Closer, error) {
	switch cfg.Driver {
	case "", DriverLog:
		return NewLogNotifier(logger), nopCloser{}, nil
	case DriverAMQP:
		n, err := DialAMQP(cfg.AMQPURL, cfg.Exchange, cfg.Queue, logger)
		if err != nil {
			return nil, nil, err
		}
		return n, n, nil
	default:
		return nil, nil, fmt.Errorf("unsupported notification driver %q", cfg.Driver)
	}
}
