package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// EmailSender represents an interface for sending emails.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams represents the parameters for sending an email.
type SendEmailParams struct {
	SendTo      string       `json:"send_to"`
	Subject     string       `json:"subject"`
	BodyHTML    string       `json:"body_html"`
	Tag         string       `json:"tag,omitempty"`
	FromName    string       `json:"from_name,omitempty"` // display name in front of the sender address
	ReplyTo     string       `json:"reply_to,omitempty"`  // overrides the support address
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a file sent along with the message. Content is base64.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"-"`
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// IsValidAddress reports whether s looks like a deliverable address.
func IsValidAddress(s string) bool {
	return emailRegex.MatchString(s)
}

// Validate checks the fields every provider requires.
func (p SendEmailParams) Validate() error {
	if strings.TrimSpace(p.SendTo) == "" {
		return fmt.Errorf("%w: SendTo is required", ErrInvalidParams)
	}
	if !emailRegex.MatchString(p.SendTo) {
		return fmt.Errorf("%w: SendTo must be a valid email address", ErrInvalidParams)
	}
	if p.ReplyTo != "" && !emailRegex.MatchString(p.ReplyTo) {
		return fmt.Errorf("%w: ReplyTo must be a valid email address", ErrInvalidParams)
	}
	if strings.TrimSpace(p.Subject) == "" {
		return fmt.Errorf("%w: Subject is required", ErrInvalidParams)
	}
	if strings.TrimSpace(p.BodyHTML) == "" {
		return fmt.Errorf("%w: BodyHTML is required", ErrInvalidParams)
	}
	for _, a := range p.Attachments {
		if a.Filename == "" || a.ContentType == "" {
			return fmt.Errorf("%w: attachment filename and content type are required", ErrInvalidParams)
		}
		if _, err := base64.StdEncoding.DecodeString(a.Content); err != nil {
			return fmt.Errorf("%w: attachment %q is not base64: %v", ErrInvalidParams, a.Filename, err)
		}
	}
	return nil
}
