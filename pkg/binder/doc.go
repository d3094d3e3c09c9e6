// Package binder decodes HTTP requests into typed structs for the handler
// package.
//
// Two binders are provided:
//
//   - JSON(): strict JSON body decoding (unknown fields rejected, 1MB cap)
//   - Path(extractor): path parameters via `path:"name"` tags, usually with
//     chi.URLParam as the extractor
//
// Binders are applied in order by handler.Wrap. A binder returning
// ErrBinderNotApplicable is skipped, which is how JSON steps aside for
// requests that carry no body.
//
//	type InvoiceRequest struct {
//		MerchantID uuid.UUID `path:"merchantID"`
//	}
//
//	r.Get("/merchants/{merchantID}/invoice", handler.Wrap(h,
//		handler.WithBinders[handler.Context, InvoiceRequest](
//			binder.Path(chi.URLParam),
//			binder.JSON(),
//		),
//	))
//
// Binding failures wrap ErrFailedToParseJSON, ErrFailedToParsePath,
// ErrMissingContentType or ErrUnsupportedMediaType so error handlers can map
// them to 400/415 responses with errors.Is.
package binder
