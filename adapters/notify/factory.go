package notify

import (
	"context"
	"fmt"

	"github.com/artpar/relayledger/ports"
)

// Config selects and configures a notifier.
type Config struct {
	Provider  string // smtp, ses, mock, none
	AppName   string
	PortalURL string
	SMTP      SMTPConfig
	SES       SESConfig
}

// New creates a notifier for cfg.Provider.
func New(ctx context.Context, cfg Config) (ports.Notifier, error) {
	appName := cfg.AppName
	if appName == "" {
		appName = "RelayLedger"
	}

	switch cfg.Provider {
	case "smtp":
		transport, err := NewSMTPTransport(cfg.SMTP)
		if err != nil {
			return nil, err
		}
		return NewEmailNotifier(transport, appName, cfg.PortalURL)

	case "ses":
		transport, err := NewSESTransport(ctx, cfg.SES)
		if err != nil {
			return nil, err
		}
		return NewEmailNotifier(transport, appName, cfg.PortalURL)

	case "mock":
		return NewMock(), nil

	case "none", "":
		return Noop{}, nil

	default:
		return nil, fmt.Errorf("unknown notify provider: %s", cfg.Provider)
	}
}
