// Package money converts processor amounts to decimals and formats them for
// documents using ISO 4217 rules from golang.org/x/text.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Scale returns the number of minor-unit digits for the ISO code: 2 for USD
// and INR, 0 for JPY. Unknown codes default to 2.
func Scale(code string) int32 {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// FromMinor converts an integer amount in minor units (as reported by the
// processor) to a decimal in major units.
func FromMinor(amount int64, code string) decimal.Decimal {
	return decimal.New(amount, -Scale(code))
}

var printer = message.NewPrinter(language.English)

// Format renders d as "<CODE> <grouped amount>", e.g. "INR 1,180.00".
// The code is used instead of a symbol so that the output stays within the
// core PDF font encodings.
func Format(d decimal.Decimal, code string) string {
	code = strings.ToUpper(code)
	scale := Scale(code)
	f, _ := d.Round(scale).Float64()
	amount := printer.Sprint(number.Decimal(f, number.Scale(int(scale))))
	if code == "" {
		return amount
	}
	return fmt.Sprintf("%s %s", code, amount)
}
