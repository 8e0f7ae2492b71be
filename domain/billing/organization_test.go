package billing_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/artpar/relayledger/domain/billing"
)

func TestOrganization_SuspendAndReinstate(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	org := billing.NewOrganization("org1", "Acme", "billing@acme.test", now)

	if err := org.Validate(); err != nil {
		t.Fatalf("new org invalid: %v", err)
	}

	suspended := org.ApplySuspension(billing.Suspension{
		Status:     billing.StatusSuspended,
		At:         now,
		Reason:     billing.SuspensionReason(billing.StatusSuspended, 65),
		BalanceDue: 49.5,
	})
	if err := suspended.Validate(); err != nil {
		t.Fatalf("suspended org invalid: %v", err)
	}
	if suspended.SuspendedAt == nil || !suspended.SuspendedAt.Equal(now) {
		t.Errorf("SuspendedAt = %v, want %v", suspended.SuspendedAt, now)
	}
	if !strings.Contains(suspended.SuspensionReason, "65 days") {
		t.Errorf("SuspensionReason = %q", suspended.SuspensionReason)
	}

	later := now.Add(72 * time.Hour)
	reinstated := suspended.ApplyReinstatement(later)
	if err := reinstated.Validate(); err != nil {
		t.Fatalf("reinstated org invalid: %v", err)
	}
	if reinstated.PaymentStatus != billing.StatusActive || reinstated.BalanceDue != 0 || reinstated.SuspensionReason != "" {
		t.Errorf("unexpected reinstated org %+v", reinstated)
	}
	if reinstated.LastPaymentDate == nil || !reinstated.LastPaymentDate.Equal(later) {
		t.Errorf("LastPaymentDate = %v, want %v", reinstated.LastPaymentDate, later)
	}
}

func TestOrganization_ValidateInvariant(t *testing.T) {
	now := time.Now()

	suspendedNoTime := billing.Organization{ID: "o", PaymentStatus: billing.StatusSuspended}
	if err := suspendedNoTime.Validate(); !errors.Is(err, billing.ErrSuspensionInvariant) {
		t.Errorf("err = %v, want ErrSuspensionInvariant", err)
	}

	activeWithTime := billing.Organization{ID: "o", PaymentStatus: billing.StatusGrace, SuspendedAt: &now}
	if err := activeWithTime.Validate(); !errors.Is(err, billing.ErrSuspensionInvariant) {
		t.Errorf("err = %v, want ErrSuspensionInvariant", err)
	}
}

func TestProject(t *testing.T) {
	now := time.Now()
	org := billing.Organization{ID: "org1", PaymentStatus: billing.StatusSuspended, SuspendedAt: &now}

	v := billing.Project(org, 70, 120)

	if v.CanUseService {
		t.Error("suspended org must not use service")
	}
	if !strings.Contains(v.WarningMessage, "70 days") || !strings.Contains(v.WarningMessage, "$120") {
		t.Errorf("WarningMessage = %q", v.WarningMessage)
	}
}

func TestUnknownView(t *testing.T) {
	v := billing.UnknownView("missing")

	if v.Status != billing.StatusUnknown || v.CanUseService {
		t.Errorf("unexpected view %+v", v)
	}
}

func TestWarningMessage_Active(t *testing.T) {
	if msg := billing.WarningMessage(billing.StatusActive, 0, 0); msg != "" {
		t.Errorf("active warning = %q, want empty", msg)
	}
}
