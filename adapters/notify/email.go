// Package notify delivers suspension and reinstatement notices to
// organization owners over SMTP or AWS SES.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/ports"
)

// ErrNoRecipient is returned when the organization has no billing email.
var ErrNoRecipient = errors.New("notify: organization has no billing email")

// Message is one rendered email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Transport delivers rendered messages.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// EmailNotifier renders notices and hands them to a Transport.
type EmailNotifier struct {
	transport Transport
	appName   string
	portalURL string

	suspendedTmpl  *template.Template
	reinstatedTmpl *template.Template
}

// NewEmailNotifier creates a notifier over transport.
func NewEmailNotifier(transport Transport, appName, portalURL string) (*EmailNotifier, error) {
	n := &EmailNotifier{transport: transport, appName: appName, portalURL: portalURL}

	var err error
	if n.suspendedTmpl, err = template.New("suspended").Parse(suspendedEmailTemplate); err != nil {
		return nil, fmt.Errorf("parse suspended template: %w", err)
	}
	if n.reinstatedTmpl, err = template.New("reinstated").Parse(reinstatedEmailTemplate); err != nil {
		return nil, fmt.Errorf("parse reinstated template: %w", err)
	}
	return n, nil
}

type noticeData struct {
	OrgName     string
	AppName     string
	Status      string
	DaysOverdue int
	Balance     string
	Link        string
}

// NotifySuspended sends the suspension notice.
func (n *EmailNotifier) NotifySuspended(ctx context.Context, org billing.Organization, t billing.Transition) error {
	if org.BillingEmail == "" {
		return ErrNoRecipient
	}
	data := n.data(org, t)

	var htmlBuf bytes.Buffer
	if err := n.suspendedTmpl.Execute(&htmlBuf, data); err != nil {
		return fmt.Errorf("execute suspended template: %w", err)
	}

	text := fmt.Sprintf("Hi %s,\n\n%s\n\nPay the outstanding balance at %s to restore service.\n\nThanks,\nThe %s Team",
		org.Name,
		billing.WarningMessage(t.To, t.DaysOverdue, org.BalanceDue),
		data.Link,
		n.appName,
	)

	return n.transport.Deliver(ctx, Message{
		To:       org.BillingEmail,
		Subject:  fmt.Sprintf("[%s] Your endpoints have been suspended", n.appName),
		HTMLBody: htmlBuf.String(),
		TextBody: text,
	})
}

// NotifyReinstated sends the reinstatement notice.
func (n *EmailNotifier) NotifyReinstated(ctx context.Context, org billing.Organization, t billing.Transition) error {
	if org.BillingEmail == "" {
		return ErrNoRecipient
	}
	data := n.data(org, t)

	var htmlBuf bytes.Buffer
	if err := n.reinstatedTmpl.Execute(&htmlBuf, data); err != nil {
		return fmt.Errorf("execute reinstated template: %w", err)
	}

	text := fmt.Sprintf("Hi %s,\n\nThanks for your payment. Service for %s has been restored and your endpoints are active again.\n\nThanks,\nThe %s Team",
		org.Name, org.Name, n.appName)

	return n.transport.Deliver(ctx, Message{
		To:       org.BillingEmail,
		Subject:  fmt.Sprintf("[%s] Service restored", n.appName),
		HTMLBody: htmlBuf.String(),
		TextBody: text,
	})
}

func (n *EmailNotifier) data(org billing.Organization, t billing.Transition) noticeData {
	return noticeData{
		OrgName:     org.Name,
		AppName:     n.appName,
		Status:      string(t.To),
		DaysOverdue: t.DaysOverdue,
		Balance:     billing.FormatAmount(org.BalanceDue),
		Link:        n.portalURL + "/billing",
	}
}

var _ ports.Notifier = (*EmailNotifier)(nil)

const suspendedEmailTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Service suspended</title></head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #b91c1c;">Your endpoints have been suspended</h2>
  <p>Hi {{.OrgName}},</p>
  <p>Payment for your {{.AppName}} account is {{.DaysOverdue}} days overdue, and your account status is now <strong>{{.Status}}</strong>.</p>
  <p>All of your endpoints have stopped serving traffic. The outstanding balance is <strong>{{.Balance}}</strong>.</p>
  <p style="margin: 30px 0;">
    <a href="{{.Link}}" style="background: #2563eb; color: #fff; padding: 12px 24px; text-decoration: none; border-radius: 6px;">Pay now</a>
  </p>
  <p>Thanks,<br>The {{.AppName}} Team</p>
</body>
</html>`

const reinstatedEmailTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Service restored</title></head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #15803d;">Service restored</h2>
  <p>Hi {{.OrgName}},</p>
  <p>Thanks for your payment. Your {{.AppName}} account is active again and your endpoints are serving traffic.</p>
  <p>Endpoints you deleted while the account was suspended remain deleted.</p>
  <p>Thanks,<br>The {{.AppName}} Team</p>
</body>
</html>`
