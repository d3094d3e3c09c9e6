package email_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/substrack/pkg/email"
)

func validParams() email.SendEmailParams {
	return email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Your invoice",
		BodyHTML: "<p>Thanks</p>",
		Tag:      "payment-received",
	}
}

func TestSendEmailParams_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*email.SendEmailParams)
		errMsg string
	}{
		{name: "valid", mutate: func(*email.SendEmailParams) {}},
		{name: "empty recipient", mutate: func(p *email.SendEmailParams) { p.SendTo = " " }, errMsg: "SendTo is required"},
		{name: "bad recipient", mutate: func(p *email.SendEmailParams) { p.SendTo = "user@" }, errMsg: "SendTo must be a valid email address"},
		{name: "bad reply-to", mutate: func(p *email.SendEmailParams) { p.ReplyTo = "nope" }, errMsg: "ReplyTo must be a valid email address"},
		{name: "empty subject", mutate: func(p *email.SendEmailParams) { p.Subject = "" }, errMsg: "Subject is required"},
		{name: "empty body", mutate: func(p *email.SendEmailParams) { p.BodyHTML = "  " }, errMsg: "BodyHTML is required"},
		{
			name: "attachment not base64",
			mutate: func(p *email.SendEmailParams) {
				p.Attachments = []email.Attachment{{Filename: "a.pdf", ContentType: "application/pdf", Content: "%%%"}}
			},
			errMsg: "is not base64",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := validParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, email.ErrInvalidParams)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewPostmarkClient(t *testing.T) {
	t.Parallel()

	valid := email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "billing@example.com",
		SupportEmail:         "support@example.com",
	}

	client, err := email.NewPostmarkClient(valid)
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.True(t, valid.PostmarkEnabled())

	broken := valid
	broken.PostmarkServerToken = ""
	_, err = email.NewPostmarkClient(broken)
	assert.ErrorIs(t, err, email.ErrInvalidConfig)
	assert.False(t, broken.PostmarkEnabled())

	broken = valid
	broken.SenderEmail = "billing"
	_, err = email.NewPostmarkClient(broken)
	assert.ErrorIs(t, err, email.ErrInvalidConfig)
}

func TestDevSender(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sender := email.NewDevSender(dir)

	pdf := []byte("%PDF-1.3 fake")
	p := validParams()
	p.Attachments = []email.Attachment{{
		Filename:    "INV-260110-ABCDEF12.pdf",
		ContentType: "application/pdf",
		Content:     base64.StdEncoding.EncodeToString(pdf),
	}}

	require.NoError(t, sender.SendEmail(context.Background(), p))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var sawPDF, sawMeta bool
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		switch {
		case strings.HasSuffix(e.Name(), ".pdf"):
			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, pdf, raw)
			sawPDF = true
		case strings.HasSuffix(e.Name(), ".json"):
			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			var meta map[string]any
			require.NoError(t, json.Unmarshal(raw, &meta))
			assert.Equal(t, "user@example.com", meta["send_to"])
			sawMeta = true
		}
	}
	assert.True(t, sawPDF)
	assert.True(t, sawMeta)

	assert.ErrorIs(t, sender.SendEmail(context.Background(), email.SendEmailParams{}), email.ErrInvalidParams)
}
