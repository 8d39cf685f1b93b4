package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var amountRegex = regexp.MustCompile(`\d[\d,\.]*`)

// parseAmountRobust extracts min/max amounts and a currency from free text
// such as "up to €2,000,000" or "EUR 500.000 - 1.000.000". Nil returns mean
// the text stated no usable amount; zero is reported only when the source
// explicitly said zero.
func parseAmountRobust(text, defaultCurrency string) (min, max *float64, currency string) {
	textLower := strings.ToLower(text)

	currency = defaultCurrency
	switch {
	case strings.Contains(textLower, "£") || strings.Contains(textLower, "gbp"):
		currency = "GBP"
	case strings.Contains(textLower, "€") || strings.Contains(textLower, "eur"):
		currency = "EUR"
	case strings.Contains(textLower, "$") || strings.Contains(textLower, "usd"):
		currency = "USD"
	}

	var amounts []float64
	for _, m := range amountRegex.FindAllString(text, -1) {
		if v, ok := parseNumber(m); ok {
			amounts = append(amounts, v)
		}
	}
	if len(amounts) == 0 {
		return nil, nil, currency
	}

	if len(amounts) == 1 {
		v := amounts[0]
		switch {
		case strings.Contains(textLower, "up to") || strings.Contains(textLower, "maximum"):
			return nil, &v, currency
		case strings.Contains(textLower, "minimum") || strings.Contains(textLower, "at least"):
			return &v, nil, currency
		default:
			return nil, &v, currency
		}
	}

	lo, hi := amounts[0], amounts[0]
	for _, a := range amounts[1:] {
		if a < lo {
			lo = a
		}
		if a > hi {
			hi = a
		}
	}
	return &lo, &hi, currency
}

// parseNumber handles both 1,000,000.50 and European 1.000.000 groupings.
func parseNumber(s string) (float64, bool) {
	clean := strings.ReplaceAll(s, ",", "")
	if v, err := strconv.ParseFloat(clean, 64); err == nil && v >= 0 {
		return v, true
	}

	clean = strings.ReplaceAll(s, ".", "")
	if v, err := strconv.ParseFloat(clean, 64); err == nil && v >= 0 {
		return v, true
	}
	return 0, false
}
