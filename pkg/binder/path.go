package binder

import (
	"fmt"
	"net/http"
	"reflect"
)

// Path creates a path parameter binder function using the provided extractor.
// The extractor is called for each struct field tagged with `path:"name"`.
// Untagged fields are ignored so Path can be combined with JSON on one
// request struct. Fields tagged `path:"-"` are skipped.
//
// Supported types are string, the integer and float kinds, bool, pointers to
// those, and any type implementing encoding.TextUnmarshaler (uuid.UUID).
//
// Example with chi router:
//
//	type InvoiceRequest struct {
//		MerchantID    uuid.UUID `path:"merchantID"`
//		TransactionID uuid.UUID `path:"transactionID"`
//	}
//
//	r.Get("/merchants/{merchantID}/transactions/{transactionID}/invoice.pdf",
//		handler.Wrap(downloadInvoice,
//			handler.WithBinder[handler.Context, InvoiceRequest](binder.Path(chi.URLParam)),
//		))
func Path(extractor func(r *http.Request, fieldName string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if extractor == nil {
			return fmt.Errorf("%w: extractor function is nil", ErrFailedToParsePath)
		}

		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Ptr || rv.IsNil() {
			return fmt.Errorf("%w: target must be a non-nil pointer", ErrFailedToParsePath)
		}

		rv = rv.Elem()
		if rv.Kind() != reflect.Struct {
			return fmt.Errorf("%w: target must be a pointer to struct", ErrFailedToParsePath)
		}

		rt := rv.Type()
		for i := range rv.NumField() {
			field := rv.Field(i)
			fieldType := rt.Field(i)
			if !field.CanSet() {
				continue
			}

			paramName, ok := fieldTag(fieldType, "path")
			if !ok {
				continue
			}

			value := extractor(r, paramName)
			if value == "" {
				continue
			}

			if err := setFieldValue(field, fieldType.Type, value); err != nil {
				return fmt.Errorf("%w: field %s: %v", ErrFailedToParsePath, fieldType.Name, err)
			}
		}

		return nil
	}
}
