package sqlite_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/artpar/relayledger/adapters/sqlite"
	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/domain/endpoint"
	"github.com/artpar/relayledger/ports"
)

func setupTestDB(t *testing.T) (*sqlite.DB, func()) {
	t.Helper()

	f, err := os.CreateTemp("", "relayledger-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := sqlite.Open(path)
	if err != nil {
		os.Remove(path)
		t.Fatalf("open database: %v", err)
	}

	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		os.Remove(path)
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(path)
		os.Remove(path + "-wal")
		os.Remove(path + "-shm")
	}

	return db, cleanup
}

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMigrate_Idempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

// -----------------------------------------------------------------------------
// UsageStore Tests
// -----------------------------------------------------------------------------

func TestUsageStore_MergeRules(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	steps := []struct {
		name        string
		relays      int64
		latency     int64
		wantRelays  int64
		wantLatency int64
	}{
		{"bootstrap", 10, 100, 10, 100},
		{"zero latency excluded", 5, 0, 15, 100},
		{"weighted", 15, 200, 30, 150},
		{"rounding", 1, 151, 31, 150}, // (4500+151)/31 = 150.03
	}

	for _, step := range steps {
		if err := store.MergeUsage(ctx, "ep1", "2024-06-01", step.relays, step.latency, 0.25, now); err != nil {
			t.Fatalf("%s: merge: %v", step.name, err)
		}
		got, err := store.Get(ctx, "ep1", "2024-06-01")
		if err != nil {
			t.Fatalf("%s: get: %v", step.name, err)
		}
		if got.Relays != step.wantRelays {
			t.Errorf("%s: Relays = %d, want %d", step.name, got.Relays, step.wantRelays)
		}
		if got.AvgLatencyMs != step.wantLatency {
			t.Errorf("%s: AvgLatencyMs = %d, want %d", step.name, got.AvgLatencyMs, step.wantLatency)
		}
	}
}

func TestUsageStore_WeightedMergeFromTen(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	store.MergeUsage(ctx, "ep1", "2024-06-01", 10, 100, 0, now)
	store.MergeUsage(ctx, "ep1", "2024-06-01", 10, 200, 0.5, now)

	got, err := store.Get(ctx, "ep1", "2024-06-01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Relays != 20 || got.AvgLatencyMs != 150 {
		t.Errorf("got relays=%d avg=%d, want 20/150", got.Relays, got.AvgLatencyMs)
	}
	if got.ErrorRate != 0.5 {
		t.Errorf("ErrorRate = %f, want 0.5 (last write)", got.ErrorRate)
	}
}

func TestUsageStore_ConcurrentMerges(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := store.MergeUsage(ctx, "ep1", "2024-06-01", int64(w+1), 50, 0, now); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("merge: %v", err)
	}

	got, err := store.Get(ctx, "ep1", "2024-06-01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// sum over w of (w+1)*perWorker = 36*25
	if got.Relays != 900 {
		t.Errorf("Relays = %d, want 900", got.Relays)
	}
	if got.AvgLatencyMs != 50 {
		t.Errorf("AvgLatencyMs = %d, want 50", got.AvgLatencyMs)
	}
}

func TestUsageStore_ListRange(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	for _, day := range []string{"2024-06-03", "2024-06-01", "2024-06-02", "2024-06-10"} {
		store.MergeUsage(ctx, "ep1", day, 1, 10, 0, now)
	}
	store.MergeUsage(ctx, "ep2", "2024-06-02", 1, 10, 0, now)

	rows, err := store.ListRange(ctx, "ep1", "2024-06-01", "2024-06-03")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len = %d, want 3", len(rows))
	}
	if rows[0].Day != "2024-06-01" || rows[2].Day != "2024-06-03" {
		t.Errorf("unexpected order: %s..%s", rows[0].Day, rows[2].Day)
	}
}

func TestUsageStore_GetMissing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := sqlite.NewUsageStore(db).Get(context.Background(), "nope", "2024-06-01")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// -----------------------------------------------------------------------------
// InvoiceStore Tests
// -----------------------------------------------------------------------------

func seedOrg(t *testing.T, db *sqlite.DB, id string) {
	t.Helper()
	org := billing.NewOrganization(id, "Org "+id, id+"@example.com", now)
	if err := sqlite.NewOrganizationStore(db).Create(context.Background(), org); err != nil {
		t.Fatalf("create org: %v", err)
	}
}

func TestInvoiceStore_OldestUnpaidAndSum(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedOrg(t, db, "org1")
	store := sqlite.NewInvoiceStore(db)
	ctx := context.Background()

	paidAt := now.AddDate(0, 0, -80)
	invoices := []billing.Invoice{
		{ID: "inv-paid", OrgID: "org1", Amount: 500, Status: billing.InvoiceStatusPaid, DueDate: now.AddDate(0, 0, -90), PaidAt: &paidAt},
		{ID: "inv-open", OrgID: "org1", Amount: 20, Status: billing.InvoiceStatusOpen, DueDate: now.AddDate(0, 0, -10)},
		{ID: "inv-uncoll", OrgID: "org1", Amount: 30.5, Status: billing.InvoiceStatusUncollectible, DueDate: now.AddDate(0, 0, -40), ProviderID: "in_123"},
	}
	for _, inv := range invoices {
		if err := store.Create(ctx, inv); err != nil {
			t.Fatalf("create %s: %v", inv.ID, err)
		}
	}

	oldest, err := store.FindOldestUnpaid(ctx, "org1")
	if err != nil {
		t.Fatalf("oldest: %v", err)
	}
	if oldest.ID != "inv-uncoll" {
		t.Errorf("oldest = %s, want inv-uncoll", oldest.ID)
	}

	sum, err := store.SumUnpaidAmount(ctx, "org1")
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != 50.5 {
		t.Errorf("sum = %f, want 50.5", sum)
	}

	byProvider, err := store.GetByProviderID(ctx, "in_123")
	if err != nil || byProvider.ID != "inv-uncoll" {
		t.Errorf("GetByProviderID = %v, %v", byProvider.ID, err)
	}

	if err := store.SetStatus(ctx, "inv-uncoll", billing.InvoiceStatusPaid, &now); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, _ := store.Get(ctx, "inv-uncoll")
	if got.Status != billing.InvoiceStatusPaid || got.PaidAt == nil || !got.PaidAt.Equal(now) {
		t.Errorf("after SetStatus: %+v", got)
	}
}

func TestInvoiceStore_NoUnpaid(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedOrg(t, db, "org1")
	store := sqlite.NewInvoiceStore(db)
	ctx := context.Background()

	if _, err := store.FindOldestUnpaid(ctx, "org1"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	sum, err := store.SumUnpaidAmount(ctx, "org1")
	if err != nil || sum != 0 {
		t.Errorf("sum = %f, %v; want 0", sum, err)
	}
	if err := store.SetStatus(ctx, "missing", billing.InvoiceStatusPaid, &now); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("SetStatus missing: err = %v", err)
	}
}

func TestInvoiceStore_Duplicate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedOrg(t, db, "org1")
	store := sqlite.NewInvoiceStore(db)
	inv := billing.Invoice{ID: "inv1", OrgID: "org1", Amount: 1, Status: billing.InvoiceStatusOpen, DueDate: now}

	store.Create(context.Background(), inv)
	if err := store.Create(context.Background(), inv); !errors.Is(err, ports.ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

// -----------------------------------------------------------------------------
// OrganizationStore / EndpointStore Tests
// -----------------------------------------------------------------------------

func TestOrganizationStore_SuspendReinstate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedOrg(t, db, "org1")
	store := sqlite.NewOrganizationStore(db)
	ctx := context.Background()

	err := store.ApplySuspension(ctx, "org1", billing.Suspension{
		Status: billing.StatusSuspended, At: now, Reason: "overdue", BalanceDue: 99.99,
	})
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}

	got, err := store.Get(ctx, "org1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("suspended row violates invariant: %v", err)
	}
	if got.BalanceDue != 99.99 || got.SuspensionReason != "overdue" {
		t.Errorf("unexpected org %+v", got)
	}

	later := now.Add(time.Hour)
	if err := store.ApplyReinstatement(ctx, "org1", later); err != nil {
		t.Fatalf("reinstate: %v", err)
	}
	got, _ = store.Get(ctx, "org1")
	if got.PaymentStatus != billing.StatusActive || got.SuspendedAt != nil || got.BalanceDue != 0 {
		t.Errorf("unexpected reinstated org %+v", got)
	}
	if got.LastPaymentDate == nil || !got.LastPaymentDate.Equal(later) {
		t.Errorf("LastPaymentDate = %v, want %v", got.LastPaymentDate, later)
	}

	if err := store.SetPaymentStatus(ctx, "missing", billing.StatusGrace, now); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("SetPaymentStatus missing: err = %v", err)
	}
}

func TestEndpointStore_SetActiveForOrg(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedOrg(t, db, "org1")
	store := sqlite.NewEndpointStore(db)
	ctx := context.Background()

	store.Create(ctx, endpoint.Endpoint{ID: "ep1", OrgID: "org1", IsActive: true})
	store.Create(ctx, endpoint.Endpoint{ID: "ep2", OrgID: "org1", IsActive: true})
	if err := store.SoftDelete(ctx, "ep2", now); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	n, err := store.SetActiveForOrg(ctx, "org1", false, false, now)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if n != 1 {
		t.Errorf("deactivated %d rows, want 1 (ep2 already inactive)", n)
	}

	n, err = store.SetActiveForOrg(ctx, "org1", true, true, now)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if n != 1 {
		t.Errorf("reactivated %d rows, want 1", n)
	}

	ep1, _ := store.Get(ctx, "ep1")
	ep2, _ := store.Get(ctx, "ep2")
	if !ep1.IsActive {
		t.Error("ep1 should be active")
	}
	if ep2.IsActive || !ep2.IsDeleted() {
		t.Error("soft-deleted ep2 must stay inactive")
	}
}

func TestWithinTx_RollsBack(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedOrg(t, db, "org1")
	sqlite.NewEndpointStore(db).Create(context.Background(), endpoint.Endpoint{ID: "ep1", OrgID: "org1", IsActive: true})
	boom := errors.New("boom")

	err := db.WithinTx(context.Background(), func(ctx context.Context, tx ports.TxStores) error {
		if err := tx.Organizations().ApplySuspension(ctx, "org1", billing.Suspension{Status: billing.StatusSuspended, At: now}); err != nil {
			return err
		}
		if _, err := tx.Endpoints().SetActiveForOrg(ctx, "org1", false, false, now); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	org, _ := sqlite.NewOrganizationStore(db).Get(context.Background(), "org1")
	if org.PaymentStatus != billing.StatusActive {
		t.Errorf("status = %s, want rollback to ACTIVE", org.PaymentStatus)
	}
	ep, _ := sqlite.NewEndpointStore(db).Get(context.Background(), "ep1")
	if !ep.IsActive {
		t.Error("endpoint deactivation should have rolled back")
	}
}
