package email

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DevSender writes every message to dir instead of sending it: the HTML
// body, a JSON metadata file and each attachment decoded next to them.
type DevSender struct {
	dir string
	now func() time.Time
}

// NewDevSender creates a sender that stores messages under dir.
func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir, now: time.Now}
}

type emailMetadata struct {
	Timestamp   string       `json:"timestamp"`
	SendTo      string       `json:"send_to"`
	Subject     string       `json:"subject"`
	Tag         string       `json:"tag,omitempty"`
	FromName    string       `json:"from_name,omitempty"`
	ReplyTo     string       `json:"reply_to,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

func (d *DevSender) SendEmail(_ context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %v", ErrFailedToSendEmail, err)
	}

	now := d.now()
	identifier := params.Tag
	if identifier == "" {
		identifier = params.Subject
	}
	base := fmt.Sprintf("%s_%s", now.Format("2006_01_02_150405.000000"), sanitizeFilename(identifier))

	if err := os.WriteFile(filepath.Join(d.dir, base+".html"), []byte(params.BodyHTML), 0o644); err != nil {
		return fmt.Errorf("%w: failed to write HTML file: %v", ErrFailedToSendEmail, err)
	}

	for _, a := range params.Attachments {
		raw, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			return fmt.Errorf("%w: failed to decode attachment: %v", ErrFailedToSendEmail, err)
		}
		name := base + "_" + sanitizeFilename(a.Filename)
		if err := os.WriteFile(filepath.Join(d.dir, name), raw, 0o644); err != nil {
			return fmt.Errorf("%w: failed to write attachment: %v", ErrFailedToSendEmail, err)
		}
	}

	meta, err := json.MarshalIndent(emailMetadata{
		Timestamp:   now.Format(time.RFC3339),
		SendTo:      params.SendTo,
		Subject:     params.Subject,
		Tag:         params.Tag,
		FromName:    params.FromName,
		ReplyTo:     params.ReplyTo,
		Attachments: params.Attachments,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal metadata: %v", ErrFailedToSendEmail, err)
	}

	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), meta, 0o644); err != nil {
		return fmt.Errorf("%w: failed to write JSON file: %v", ErrFailedToSendEmail, err)
	}

	return nil
}

var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = sanitizeRegex.ReplaceAllString(s, "")
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}
