package formatting

import (
	"fmt"
	"strings"
)

// DefaultCurrency applies when an amount carries no currency code.
const DefaultCurrency = "USD"

// FormatMoney renders an amount in minor units, e.g. 2500 USD as "25.00 USD".
func FormatMoney(minor int64, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}

	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, strings.ToUpper(currency))
}
