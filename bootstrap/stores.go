package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	apihttp "github.com/artpar/relayledger/adapters/http"
	"github.com/artpar/relayledger/adapters/memory"
	"github.com/artpar/relayledger/adapters/postgres"
	"github.com/artpar/relayledger/adapters/sqlite"
	"github.com/artpar/relayledger/config"
	"github.com/artpar/relayledger/ports"
)

// Stores bundles the store ports for one database driver.
type Stores struct {
	Driver        string
	Organizations ports.OrganizationStore
	Endpoints     ports.EndpointStore
	Invoices      ports.InvoiceStore
	Usage         ports.UsageStore
	Transactor    ports.Transactor
	Health        apihttp.HealthChecker // nil for memory

	migrate func(ctx context.Context) error
	close   func() error
}

// OpenStores connects to the configured database and runs migrations.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*Stores, error) {
	s, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info().Str("driver", cfg.Driver).Msg("database initialized")
	return s, nil
}

func openStores(ctx context.Context, cfg config.DatabaseConfig) (*Stores, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Driver:        cfg.Driver,
			Organizations: sqlite.NewOrganizationStore(db),
			Endpoints:     sqlite.NewEndpointStore(db),
			Invoices:      sqlite.NewInvoiceStore(db),
			Usage:         sqlite.NewUsageStore(db),
			Transactor:    db,
			Health:        db,
			migrate:       db.Migrate,
			close:         db.Close,
		}, nil

	case "postgres":
		db, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		return &Stores{
			Driver:        cfg.Driver,
			Organizations: postgres.NewOrganizationStore(db),
			Endpoints:     postgres.NewEndpointStore(db),
			Invoices:      postgres.NewInvoiceStore(db),
			Usage:         postgres.NewUsageStore(db),
			Transactor:    db,
			Health:        db,
			migrate:       db.Migrate,
			close:         db.Close,
		}, nil

	case "memory":
		ledger := memory.NewLedger()
		return &Stores{
			Driver:        cfg.Driver,
			Organizations: ledger.Organizations(),
			Endpoints:     ledger.Endpoints(),
			Invoices:      ledger.Invoices(),
			Usage:         memory.NewUsageStore(),
			Transactor:    ledger,
		}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// Migrate applies pending schema migrations. It is a no-op for memory.
func (s *Stores) Migrate(ctx context.Context) error {
	if s.migrate == nil {
		return nil
	}
	return s.migrate(ctx)
}

// Close releases the database connection.
func (s *Stores) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}
