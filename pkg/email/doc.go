// Package email sends transactional messages through a provider-agnostic
// EmailSender.
//
// Two implementations exist: the Postmark client used in production and
// DevSender, which writes messages and their attachments to a local
// directory. Both validate SendEmailParams before doing any work and wrap
// delivery failures in ErrFailedToSendEmail.
//
// Bodies are usually produced from templ components with templates.Render.
package email
