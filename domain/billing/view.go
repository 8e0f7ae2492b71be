package billing

import "time"

// StatusView is the read-only payment status projection served to callers.
type StatusView struct {
	OrgID          string
	Status         PaymentStatus
	DaysOverdue    int
	BalanceDue     float64
	CanUseService  bool
	WarningMessage string
	SuspendedAt    *time.Time
}

// UnknownView is the fail-safe projection for an organization that cannot be read.
func UnknownView(orgID string) StatusView {
	return StatusView{
		OrgID:          orgID,
		Status:         StatusUnknown,
		CanUseService:  false,
		WarningMessage: WarningMessage(StatusUnknown, 0, 0),
	}
}

// Project builds the projection from the stored status and live invoice figures.
// This is a PURE function.
func Project(org Organization, daysOverdue int, balanceDue float64) StatusView {
	return StatusView{
		OrgID:          org.ID,
		Status:         org.PaymentStatus,
		DaysOverdue:    daysOverdue,
		BalanceDue:     balanceDue,
		CanUseService:  org.PaymentStatus.CanUseService(),
		WarningMessage: WarningMessage(org.PaymentStatus, daysOverdue, balanceDue),
		SuspendedAt:    org.SuspendedAt,
	}
}

// WarningMessage returns the user-facing warning for a status, or "" for ACTIVE.
// This is a PURE function.
func WarningMessage(status PaymentStatus, daysOverdue int, balanceDue float64) string {
	days := itoa(int64(daysOverdue))
	balance := FormatAmount(balanceDue)

	switch status {
	case StatusGrace:
		return "Your payment is " + days + " days overdue. Please pay the outstanding balance of " + balance + " to avoid service interruption."
	case StatusPastDue:
		return "Your account is past due by " + days + " days with " + balance + " outstanding. Service will be suspended if payment is not received."
	case StatusFinalWarning:
		return "Final warning: your account is " + days + " days overdue with " + balance + " outstanding. Your endpoints will be suspended soon."
	case StatusSuspended:
		return "Service suspended: payment is " + days + " days overdue with " + balance + " outstanding. Pay the balance to restore your endpoints."
	case StatusDelinquent:
		return "Account delinquent: payment is " + days + " days overdue with " + balance + " outstanding. Contact billing to restore service."
	case StatusUnknown:
		return "Payment status could not be determined. Service is unavailable until billing can be verified."
	}
	return ""
}
