package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/substrack/pkg/async"
	"github.com/dmitrymomot/substrack/pkg/email"
	"github.com/dmitrymomot/substrack/pkg/email/templates"
	"github.com/dmitrymomot/substrack/pkg/logger"
	"github.com/dmitrymomot/substrack/pkg/money"
)

// NotificationKind selects the email template.
type NotificationKind string

const (
	NotifyWelcome         NotificationKind = "welcome"
	NotifyPaymentReceived NotificationKind = "payment_received"
	NotifyPaymentFailed   NotificationKind = "payment_failed"
)

// Notification is one customer email triggered by a transition.
// Transaction may be nil when nothing was charged.
type Notification struct {
	Kind        NotificationKind
	Merchant    *Merchant
	Subscriber  *Subscriber
	Plan        *Plan
	Transaction *PaymentTransaction
}

// Notifier delivers notifications without blocking the caller. Delivery
// failures never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}

// DefaultDeliveryTimeout bounds one background delivery.
const DefaultDeliveryTimeout = 30 * time.Second

// EmailNotifier renders notifications to HTML, attaches invoices and hands
// them to an email sender in the background.
type EmailNotifier struct {
	sender    email.EmailSender
	renderer  Renderer
	log       *slog.Logger
	metrics   *Metrics
	portalURL string
	timeout   time.Duration
	inflight  async.Tracker
}

// NotifierOption configures an EmailNotifier.
type NotifierOption func(*EmailNotifier)

func WithNotifierLogger(log *slog.Logger) NotifierOption {
	return func(n *EmailNotifier) {
		if log != nil {
			n.log = log
		}
	}
}

func WithNotifierMetrics(m *Metrics) NotifierOption {
	return func(n *EmailNotifier) { n.metrics = m }
}

// WithPortalURL adds a customer portal link to emails and invoices.
func WithPortalURL(url string) NotifierOption {
	return func(n *EmailNotifier) { n.portalURL = url }
}

func WithDeliveryTimeout(d time.Duration) NotifierOption {
	return func(n *EmailNotifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// NewEmailNotifier creates a notifier. renderer may be nil, in which case
// no invoice is attached.
func NewEmailNotifier(sender email.EmailSender, renderer Renderer, opts ...NotifierOption) *EmailNotifier {
	n := &EmailNotifier{
		sender:   sender,
		renderer: renderer,
		log:      logger.Nop(),
		timeout:  DefaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify schedules delivery and returns immediately. The delivery outlives
// the caller's context.
func (n *EmailNotifier) Notify(ctx context.Context, note Notification) {
	if note.Merchant == nil || note.Subscriber == nil || note.Plan == nil {
		n.log.WarnContext(ctx, "incomplete notification dropped", slog.String("kind", string(note.Kind)))
		return
	}
	if !email.IsValidAddress(note.Subscriber.CustomerEmail) {
		n.log.WarnContext(ctx, "notification skipped: invalid customer email",
			slog.String("kind", string(note.Kind)),
			logger.SubscriberID(note.Subscriber.ID),
		)
		return
	}

	async.Go(&n.inflight, context.WithoutCancel(ctx), note, n.deliver)
}

// Flush waits for in-flight deliveries or until ctx is done.
func (n *EmailNotifier) Flush(ctx context.Context) error {
	return n.inflight.Wait(ctx)
}

func (n *EmailNotifier) deliver(ctx context.Context, note Notification) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	log := n.log.With(
		slog.String("kind", string(note.Kind)),
		logger.MerchantID(note.Merchant.ID),
		logger.SubscriberID(note.Subscriber.ID),
	)

	view := emailView{
		MerchantName:  note.Merchant.Name,
		MerchantEmail: note.Merchant.Email,
		CustomerName:  note.Subscriber.CustomerName,
		PlanName:      note.Plan.Name,
		PortalURL:     n.portalURL,
	}
	if !note.Subscriber.NextRenewalDate.IsZero() {
		view.NextRenewal = note.Subscriber.NextRenewalDate.Format("January 2, 2006")
	}

	var attachments []email.Attachment
	if txn := note.Transaction; txn != nil {
		view.Amount = money.Format(txn.Amount, txn.Currency)
		if note.Kind != NotifyPaymentFailed && n.renderer != nil {
			inv := BuildInvoice(note.Merchant, note.Subscriber, note.Plan, txn, n.portalURL)
			content, err := n.renderer.RenderBase64(ctx, inv)
			if err != nil {
				log.WarnContext(ctx, "invoice attachment skipped", logger.Error(err))
			} else {
				view.InvoiceNumber = inv.Number
				attachments = append(attachments, email.Attachment{
					Filename:    inv.Filename(),
					ContentType: "application/pdf",
					Content:     content,
				})
			}
		}
	}

	subject, tpl := n.template(note.Kind, view)
	body, err := templates.Render(ctx, tpl)
	if err != nil {
		log.ErrorContext(ctx, "failed to render notification", logger.Error(err))
		n.metrics.observeNotification(note.Kind, err)
		return err
	}

	err = n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:      note.Subscriber.CustomerEmail,
		Subject:     subject,
		BodyHTML:    body,
		Tag:         string(note.Kind),
		FromName:    note.Merchant.Name,
		ReplyTo:     replyTo(note.Merchant.Email),
		Attachments: attachments,
	})
	n.metrics.observeNotification(note.Kind, err)
	if err != nil {
		log.ErrorContext(ctx, "failed to send notification", logger.Error(err))
		return err
	}

	log.InfoContext(ctx, "notification sent", slog.Int("attachments", len(attachments)))
	return nil
}

func (n *EmailNotifier) template(kind NotificationKind, view emailView) (string, templ.Component) {
	switch kind {
	case NotifyPaymentReceived:
		return "Payment received for " + view.PlanName, emailComponent(paymentReceivedTemplate, view)
	case NotifyPaymentFailed:
		return "Action required: payment failed for " + view.PlanName, emailComponent(paymentFailedTemplate, view)
	default:
		return "Welcome to " + view.PlanName, emailComponent(welcomeTemplate, view)
	}
}

func replyTo(addr string) string {
	if email.IsValidAddress(addr) {
		return addr
	}
	return ""
}
