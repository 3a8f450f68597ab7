package chat

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatPrice renders an amount as US dollars, e.g. $1,234.50.
func FormatPrice(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	fixed := d.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}

	return sign + "$" + b.String() + "." + frac
}
