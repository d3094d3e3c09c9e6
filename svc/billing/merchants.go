package billing

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dmitrymomot/substrack/pkg/logger"
)

// Credentials is the input of a credential update.
type Credentials struct {
	SecretKey      string `json:"secret_key" validate:"required,startswith=sk_,nowhitespace"`
	PublishableKey string `json:"publishable_key" validate:"required,startswith=pk_,nowhitespace"`
	WebhookSecret  string `json:"webhook_secret" validate:"required,startswith=whsec_,nowhitespace"`
}

// ValidationError lists the messages per field of a rejected input.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	return ErrValidation.Error() + ": " + strings.Join(keys, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// MerchantService manages merchant processor credentials.
type MerchantService struct {
	store    MerchantStore
	validate *validator.Validate
	log      *slog.Logger
}

func NewMerchantService(store MerchantStore, log *slog.Logger) *MerchantService {
	if log == nil {
		log = logger.Nop()
	}
	return &MerchantService{
		store:    store,
		validate: newCredentialsValidator(),
		log:      log.With(logger.Component("billing.merchants")),
	}
}

// ValidateCredentials checks key formats and that the secret and
// publishable keys belong to the same mode. Values are never coerced.
func (s *MerchantService) ValidateCredentials(c Credentials) error {
	err := s.validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		verr.add(fe.Field(), credentialMessage(fe))
	}
	return verr
}

// UpdateCredentials validates and stores the credentials of a merchant.
func (s *MerchantService) UpdateCredentials(ctx context.Context, merchantID uuid.UUID, c Credentials) error {
	if err := s.ValidateCredentials(c); err != nil {
		return err
	}
	if _, err := s.store.GetMerchant(ctx, merchantID); err != nil {
		return err
	}

	err := s.store.UpdateMerchantCredentials(ctx, merchantID, ProcessorCredentials{
		SecretKey:      c.SecretKey,
		PublishableKey: c.PublishableKey,
		WebhookSecret:  c.WebhookSecret,
	})
	if err != nil {
		return err
	}

	s.log.InfoContext(ctx, "merchant credentials updated",
		logger.MerchantID(merchantID),
		slog.String("mode", keyMode(c.SecretKey)),
	)
	return nil
}

func newCredentialsValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("nowhitespace", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		c := sl.Current().Interface().(Credentials)
		sk, pk := keyMode(c.SecretKey), keyMode(c.PublishableKey)
		if sk != "" && pk != "" && sk != pk {
			sl.ReportError(c.PublishableKey, "publishable_key", "PublishableKey", "samemode", sk)
		}
	}, Credentials{})
	return v
}

// keyMode returns "test" or "live" for keys like sk_test_… and pk_live_….
func keyMode(key string) string {
	_, rest, ok := strings.Cut(key, "_")
	if !ok {
		return ""
	}
	switch {
	case strings.HasPrefix(rest, "test_"):
		return "test"
	case strings.HasPrefix(rest, "live_"):
		return "live"
	}
	return ""
}

func credentialMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "startswith":
		return "must start with " + fe.Param()
	case "nowhitespace":
		return "must not contain whitespace"
	case "samemode":
		return "must be a " + fe.Param() + " mode key like the secret key"
	}
	return "is invalid"
}
