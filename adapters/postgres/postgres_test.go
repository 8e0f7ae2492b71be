package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/ports"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return New(sqlDB), mock
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMigrate_SkipsApplied(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("001_billing_ledger"))

	require.NoError(t, db.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageStore_MergeUsage(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewUsageStore(db)

	mock.ExpectExec(mergeUsagePattern()).
		WithArgs("ep1", "2024-06-01", int64(10), int64(100), 0.25, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.MergeUsage(context.Background(), "ep1", "2024-06-01", 10, 100, 0.25, testNow)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// mergeUsagePattern matches the upsert only if every merge branch is present
// in order: first write takes the new latency, zero latency keeps the old
// average, otherwise a rounded relay-weighted mean; relays add and the error
// rate is overwritten.
func mergeUsagePattern() string {
	parts := []string{
		"INSERT INTO usage_daily",
		"ON CONFLICT (endpoint_id, day) DO UPDATE SET",
		"WHEN usage_daily.relays = 0 THEN EXCLUDED.avg_latency_ms",
		"WHEN EXCLUDED.avg_latency_ms = 0 THEN usage_daily.avg_latency_ms",
		"ELSE ROUND(",
		"(usage_daily.avg_latency_ms * usage_daily.relays + EXCLUDED.avg_latency_ms * EXCLUDED.relays)::numeric",
		"/ (usage_daily.relays + EXCLUDED.relays)",
		")::BIGINT",
		"relays = usage_daily.relays + EXCLUDED.relays",
		"error_rate = EXCLUDED.error_rate",
	}
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(quoted, ".*")
}

func TestUsageStore_MergeUsageFailsLoudly(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewUsageStore(db)

	mock.ExpectExec("INSERT INTO usage_daily").WillReturnError(sql.ErrConnDone)

	err := store.MergeUsage(context.Background(), "ep1", "2024-06-01", 1, 1, 0, testNow)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestUsageStore_Get(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewUsageStore(db)

	mock.ExpectQuery("SELECT endpoint_id, to_char").
		WithArgs("ep1", "2024-06-01").
		WillReturnRows(sqlmock.NewRows([]string{"endpoint_id", "day", "relays", "avg_latency_ms", "error_rate", "updated_at"}).
			AddRow("ep1", "2024-06-01", int64(20), int64(150), 0.1, testNow))

	got, err := store.Get(context.Background(), "ep1", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.Relays)
	assert.Equal(t, int64(150), got.AvgLatencyMs)

	mock.ExpectQuery("SELECT endpoint_id, to_char").WillReturnError(sql.ErrNoRows)
	_, err = store.Get(context.Background(), "ep1", "2024-06-02")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var invoiceCols = []string{"id", "org_id", "provider_id", "amount", "currency", "status", "due_date", "paid_at", "created_at"}

func TestInvoiceStore_FindOldestUnpaid(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewInvoiceStore(db)
	due := testNow.AddDate(0, 0, -65)

	mock.ExpectQuery(`FROM invoices\s+WHERE org_id = \$1 AND status = ANY\(\$2\)\s+ORDER BY due_date ASC`).
		WithArgs("org1", pq.Array([]string{"open", "uncollectible"})).
		WillReturnRows(sqlmock.NewRows(invoiceCols).
			AddRow("inv1", "org1", "in_1", 49.5, "usd", "open", due, nil, due))

	inv, err := store.FindOldestUnpaid(context.Background(), "org1")
	require.NoError(t, err)
	assert.Equal(t, "inv1", inv.ID)
	assert.Equal(t, billing.InvoiceStatusOpen, inv.Status)
	assert.Nil(t, inv.PaidAt)
	assert.True(t, inv.DueDate.Equal(due))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceStore_FindOldestUnpaidNone(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewInvoiceStore(db)

	mock.ExpectQuery("FROM invoices").WillReturnRows(sqlmock.NewRows(invoiceCols))

	_, err := store.FindOldestUnpaid(context.Background(), "org1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestInvoiceStore_SumUnpaidAmount(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewInvoiceStore(db)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\)`).
		WithArgs("org1", pq.Array([]string{"open", "uncollectible"})).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(120.75))

	sum, err := store.SumUnpaidAmount(context.Background(), "org1")
	require.NoError(t, err)
	assert.Equal(t, 120.75, sum)
}

func TestInvoiceStore_SetStatusMissing(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewInvoiceStore(db)

	mock.ExpectExec("UPDATE invoices SET status").
		WithArgs("paid", sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SetStatus(context.Background(), "missing", billing.InvoiceStatusPaid, &testNow)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestInvoiceStore_CreateDuplicate(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewInvoiceStore(db)

	mock.ExpectExec("INSERT INTO invoices").WillReturnError(&pq.Error{Code: uniqueViolation})

	err := store.Create(context.Background(), billing.Invoice{ID: "inv1", OrgID: "org1", Status: billing.InvoiceStatusOpen, DueDate: testNow})
	assert.ErrorIs(t, err, ports.ErrDuplicate)
}

func TestEndpointStore_SetActiveForOrg(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewEndpointStore(db)

	mock.ExpectExec(`UPDATE endpoints SET is_active = \$1, updated_at = \$2 WHERE org_id = \$3 AND is_active <> \$1 AND deleted_at IS NULL`).
		WithArgs(true, testNow, "org1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := store.SetActiveForOrg(context.Background(), "org1", true, true, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mock.ExpectExec(`UPDATE endpoints SET is_active = \$1, updated_at = \$2 WHERE org_id = \$3 AND is_active <> \$1$`).
		WithArgs(false, testNow, "org1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err = store.SetActiveForOrg(context.Background(), "org1", false, false, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var orgCols = []string{"id", "name", "billing_email", "payment_status", "suspended_at", "suspension_reason",
	"balance_due", "last_payment_date", "created_at", "updated_at"}

func TestWithinTx_CommitLocksOrgRow(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM organizations WHERE id = \$1 FOR UPDATE`).
		WithArgs("org1").
		WillReturnRows(sqlmock.NewRows(orgCols).
			AddRow("org1", "Acme", "a@b.test", "FINAL_WARNING", nil, nil, 0.0, nil, testNow, testNow))
	mock.ExpectExec("UPDATE organizations").
		WithArgs("SUSPENDED", testNow, "overdue", 49.5, "org1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE endpoints SET is_active").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.WithinTx(context.Background(), func(ctx context.Context, tx ports.TxStores) error {
		org, err := tx.Organizations().Get(ctx, "org1")
		if err != nil {
			return err
		}
		assert.Equal(t, billing.StatusFinalWarning, org.PaymentStatus)
		if err := tx.Organizations().ApplySuspension(ctx, "org1", billing.Suspension{
			Status: billing.StatusSuspended, At: testNow, Reason: "overdue", BalanceDue: 49.5,
		}); err != nil {
			return err
		}
		_, err = tx.Endpoints().SetActiveForOrg(ctx, "org1", false, false, testNow)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	db, mock := setupMockDB(t)
	boom := errors.New("endpoint write failed")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE endpoints SET is_active").WillReturnError(boom)
	mock.ExpectRollback()

	err := db.WithinTx(context.Background(), func(ctx context.Context, tx ports.TxStores) error {
		_, err := tx.Endpoints().SetActiveForOrg(ctx, "org1", false, false, testNow)
		return err
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationStore_GetOutsideTxDoesNotLock(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewOrganizationStore(db)

	mock.ExpectQuery(`FROM organizations WHERE id = \$1$`).
		WithArgs("org1").
		WillReturnRows(sqlmock.NewRows(orgCols).
			AddRow("org1", "Acme", "a@b.test", "SUSPENDED", testNow, "overdue", 10.0, nil, testNow, testNow))

	org, err := store.Get(context.Background(), "org1")
	require.NoError(t, err)
	require.NotNil(t, org.SuspendedAt)
	assert.Equal(t, "overdue", org.SuspensionReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}
