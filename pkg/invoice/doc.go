// Package invoice renders tax-inclusive subscription invoices as PDF.
//
// Totals are split with TaxSplit into a base amount and an 18% tax so that
// the two always add up to the charged total. Invoice numbers are derived
// from the transaction id and the issue date with Number, which makes
// re-rendering an invoice reproduce the same number.
//
// A merchant logo is fetched through a LogoFetcher (HTTP(S) URLs, s3://
// objects, or both through SchemeLogoFetcher). Fetching is bounded by a
// timeout and any failure only omits the logo.
//
//	gen := invoice.NewGenerator(
//		invoice.WithLogoFetcher(invoice.SchemeLogoFetcher{
//			"https": invoice.NewHTTPLogoFetcher(nil),
//		}),
//		invoice.WithLogoTimeout(3*time.Second),
//	)
//	pdf, err := gen.Render(ctx, inv)
package invoice
