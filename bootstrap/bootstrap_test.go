package bootstrap_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/artpar/relayledger/adapters/clock"
	"github.com/artpar/relayledger/app"
	"github.com/artpar/relayledger/bootstrap"
	"github.com/artpar/relayledger/config"
	"github.com/artpar/relayledger/domain/billing"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func loadConfig(t *testing.T, content string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relayledger.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestBootstrap_Memory(t *testing.T) {
	cfg := loadConfig(t, `
database:
  driver: memory
notify:
  provider: mock
sweep:
  enabled: true
  schedule: "@every 1h"
stripe:
  webhook_secret: whsec_test
`)

	var logs bytes.Buffer
	a, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{
		LogOutput: &logs,
		Clock:     clock.NewFake(baseTime),
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Stores == nil || a.Payments == nil || a.Usage == nil || a.Sweep == nil || a.Accounts == nil {
		t.Fatal("services should be wired")
	}
	if a.Scheduler == nil {
		t.Error("scheduler should be created when sweep is enabled")
	}
	if a.HTTPServer.Addr != "0.0.0.0:8080" {
		t.Errorf("Addr = %s", a.HTTPServer.Addr)
	}
	if !strings.Contains(logs.String(), "admin_key is empty") {
		t.Error("expected a warning about the unauthenticated API")
	}

	for _, path := range []string{"/health", "/metrics", "/version"} {
		rec := httptest.NewRecorder()
		a.Router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}

	// webhook route is mounted when a secret is configured
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader("{}")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unsigned webhook = %d, want 400", rec.Code)
	}
}

func TestBootstrap_SQLiteEndToEnd(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "ledger.db")
	cfg := loadConfig(t, `
database:
  driver: sqlite
  dsn: "`+dsn+`"
server:
  admin_key: k
`)

	a, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{
		LogOutput: &bytes.Buffer{},
		Clock:     clock.NewFake(baseTime),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	org, err := a.Accounts.CreateOrganization(ctx, "Acme", "ops@acme.test")
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	if !strings.HasPrefix(org.ID, "org_") {
		t.Errorf("org id = %s, want org_ prefix", org.ID)
	}
	if _, err := a.Accounts.CreateEndpoint(ctx, org.ID, "mainnet"); err != nil {
		t.Fatalf("CreateEndpoint: %v", err)
	}
	if _, err := a.Accounts.CreateInvoice(ctx, appInvoice(org.ID)); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	res, err := a.Sweep.Run(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Suspended != 1 {
		t.Errorf("Suspended = %d, want 1", res.Suspended)
	}

	view, err := a.Payments.GetPaymentStatus(ctx, org.ID)
	if err != nil {
		t.Fatalf("GetPaymentStatus: %v", err)
	}
	if view.Status != billing.StatusSuspended || view.CanUseService {
		t.Errorf("view = %+v, want SUSPENDED without service", view)
	}

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readiness = %d", rec.Code)
	}
}

func TestBootstrap_RedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := loadConfig(t, `
database:
  driver: memory
redis:
  addr: "`+mr.Addr()+`"
`)

	a, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{LogOutput: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	org, err := a.Accounts.CreateOrganization(context.Background(), "Acme", "")
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	if _, err := a.Payments.UpdatePaymentStatus(context.Background(), org.ID); err != nil {
		t.Fatalf("UpdatePaymentStatus: %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Errorf("lock keys left behind: %v", keys)
	}
}

func TestBootstrap_HolderReloadsThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relayledger.yaml")
	initial := "database:\n  driver: memory\n"
	if err := os.WriteFile(path, []byte(initial), 0644); err != nil {
		t.Fatal(err)
	}
	holder, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer holder.Stop()

	a, err := bootstrap.New(context.Background(), holder.Get(), bootstrap.Options{
		Holder:    holder,
		LogOutput: &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	updated := initial + "billing:\n  thresholds:\n    grace: 5\n    past_due: 10\n    final_warning: 15\n    delinquent: 20\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}
	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	want := billing.Thresholds{Grace: 5, PastDue: 10, FinalWarning: 15, Delinquent: 20}
	if got := a.Payments.Thresholds(); got != want {
		t.Errorf("Thresholds = %+v, want %+v", got, want)
	}
}

func TestBootstrap_UnknownNotifier(t *testing.T) {
	cfg := loadConfig(t, "database:\n  driver: memory\n")
	cfg.Notify.Provider = "pigeon"

	if _, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{LogOutput: &bytes.Buffer{}}); err == nil {
		t.Error("expected error for unknown notify provider")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := bootstrap.NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn should be logged")
	}
}

func appInvoice(orgID string) app.NewInvoice {
	return app.NewInvoice{
		OrgID:    orgID,
		Amount:   120,
		Currency: "usd",
		DueDate:  baseTime.AddDate(0, 0, -75),
	}
}
