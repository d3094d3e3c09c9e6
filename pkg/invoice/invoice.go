package invoice

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TaxRate is the flat rate contained in every invoiced total.
var TaxRate = decimal.RequireFromString("0.18")

// Status values printed on the document.
const (
	StatusPaid    = "PAID"
	StatusFailed  = "FAILED"
	StatusPending = "PENDING"
)

// Party is either side of the invoice.
type Party struct {
	Name    string
	Email   string
	Phone   string
	Address string
	TaxID   string
	LogoRef string // http(s):// or s3:// reference, seller only
}

// Invoice is everything the generator needs to lay out one document.
// Total is tax inclusive.
type Invoice struct {
	Number         string
	IssuedAt       time.Time
	Status         string
	Seller         Party
	Buyer          Party
	Description    string // plan name
	Details        string // plan description and billing cycle
	Total          decimal.Decimal
	Currency       string
	PaymentMethod  string
	TransactionRef string
	PortalURL      string // encoded as a QR code when set
}

// Filename is the attachment / download name of the document.
func (inv Invoice) Filename() string {
	return inv.Number + ".pdf"
}

// Number builds "INV-" + YYMMDD of issuedAt + the first 8 characters of the
// transaction id in upper case. The same inputs always give the same number.
func Number(transactionID string, issuedAt time.Time) string {
	prefix := transactionID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "INV-" + issuedAt.Format("060102") + strings.ToUpper(prefix)
}

// TaxSplit splits a tax-inclusive total into base and tax such that
// base = round2(total / (1 + TaxRate)) and base + tax == total exactly.
func TaxSplit(total decimal.Decimal) (base, tax decimal.Decimal) {
	base = total.Div(decimal.NewFromInt(1).Add(TaxRate)).Round(2)
	tax = total.Sub(base)
	return base, tax
}
