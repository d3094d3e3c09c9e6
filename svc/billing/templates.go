package billing

import (
	"context"
	"html/template"
	"io"

	"github.com/a-h/templ"
)

// emailView is the data every notification template receives.
type emailView struct {
	MerchantName  string
	MerchantEmail string
	CustomerName  string
	PlanName      string
	Amount        string
	InvoiceNumber string
	NextRenewal   string
	PortalURL     string
}

const emailLayout = `{{define "layout"}}<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><title>{{.MerchantName}}</title></head>
<body style="font-family:Helvetica,Arial,sans-serif;color:#1f2937;background:#f9fafb;margin:0;padding:24px">
<table role="presentation" width="100%" style="max-width:560px;margin:0 auto;background:#ffffff;border-radius:8px;padding:32px">
<tr><td>
<h1 style="font-size:20px;margin:0 0 16px">{{.MerchantName}}</h1>
{{template "content" .}}
<p style="margin-top:32px;font-size:12px;color:#6b7280">Questions? Reply to this email{{if .MerchantEmail}} or write to {{.MerchantEmail}}{{end}}.</p>
</td></tr></table></body></html>{{end}}`

var (
	welcomeTemplate = mustEmailTemplate("welcome", `{{define "content"}}
<p>Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},</p>
<p>Your subscription to <strong>{{.PlanName}}</strong> is now active.</p>
{{if .Amount}}<p>We received your payment of {{.Amount}}. Invoice {{.InvoiceNumber}} is attached.</p>{{end}}
{{if .NextRenewal}}<p>Your next renewal is on {{.NextRenewal}}.</p>{{end}}
{{if .PortalURL}}<p><a href="{{.PortalURL}}">Manage your subscription</a></p>{{end}}
{{end}}`)

	paymentReceivedTemplate = mustEmailTemplate("payment_received", `{{define "content"}}
<p>Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},</p>
<p>Thank you. We received your payment of <strong>{{.Amount}}</strong> for {{.PlanName}}.</p>
{{if .InvoiceNumber}}<p>Invoice {{.InvoiceNumber}} is attached to this email.</p>{{end}}
{{if .NextRenewal}}<p>Your subscription renews on {{.NextRenewal}}.</p>{{end}}
{{end}}`)

	paymentFailedTemplate = mustEmailTemplate("payment_failed", `{{define "content"}}
<p>Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},</p>
<p>We could not collect {{if .Amount}}<strong>{{.Amount}}</strong> {{end}}for your {{.PlanName}} subscription.</p>
<p>Please update your payment method to keep your access.</p>
{{if .PortalURL}}<p><a href="{{.PortalURL}}">Update payment details</a></p>{{end}}
{{end}}`)
)

func mustEmailTemplate(name, content string) *template.Template {
	t := template.Must(template.New(name).Parse(emailLayout))
	return template.Must(t.Parse(content))
}

// emailComponent adapts a parsed layout to a templ component so that it
// renders through the same path as generated templates.
func emailComponent(t *template.Template, view emailView) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return t.ExecuteTemplate(w, "layout", view)
	})
}
