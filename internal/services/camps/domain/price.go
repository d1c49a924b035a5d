package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// PriceTerm is the single interpretation of a camp's weekly price. It is one
// of Numeric, FreeText or Unknown.
type PriceTerm interface {
	isPriceTerm()
}

// Numeric is a weekly price interval in whole dollars. Lo == 0 means free.
type Numeric struct {
	Lo int
	Hi int
}

// FreeText is a price description that carries no usable amount.
type FreeText struct {
	Text string
}

// Unknown means no price information at all ("TBD").
type Unknown struct{}

func (Numeric) isPriceTerm()  {}
func (FreeText) isPriceTerm() {}
func (Unknown) isPriceTerm()  {}

// Free reports whether the interval starts at zero.
func (n Numeric) Free() bool { return n.Lo == 0 }

var dollarAmount = regexp.MustCompile(`\$?\s*(\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?`)

// PriceOf interprets a camp's price fields. Numeric prices win; price_week is
// consulted only when both are absent.
func PriceOf(c Camp) PriceTerm {
	switch {
	case c.MinPrice != nil && c.MaxPrice != nil:
		return Numeric{Lo: *c.MinPrice, Hi: *c.MaxPrice}
	case c.MinPrice != nil:
		return Numeric{Lo: *c.MinPrice, Hi: *c.MinPrice}
	case c.MaxPrice != nil:
		return Numeric{Lo: *c.MaxPrice, Hi: *c.MaxPrice}
	}
	return ParsePriceText(c.PriceWeek)
}

// ParsePriceText extracts a dollar interval from free text such as "$350",
// "$300-$450" or "350/wk". Text with no amount becomes FreeText; empty text is
// Unknown.
func ParsePriceText(text string) PriceTerm {
	text = strings.TrimSpace(text)
	if text == "" {
		return Unknown{}
	}
	lower := strings.ToLower(text)
	if lower == "tbd" || lower == "n/a" {
		return Unknown{}
	}
	if lower == "free" {
		return Numeric{}
	}
	matches := dollarAmount.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return FreeText{Text: text}
	}
	// Amounts written with a dollar sign win over bare numbers like ages.
	var dollars [][]string
	for _, m := range matches {
		if strings.Contains(m[0], "$") {
			dollars = append(dollars, m)
		}
	}
	if len(dollars) > 0 {
		matches = dollars
	}
	if len(matches) > 2 {
		matches = matches[:2]
	}
	amounts := make([]int, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			return FreeText{Text: text}
		}
		amounts = append(amounts, v)
	}
	lo, hi := amounts[0], amounts[0]
	if len(amounts) == 2 {
		hi = amounts[1]
		if hi < lo {
			lo, hi = hi, lo
		}
	}
	return Numeric{Lo: lo, Hi: hi}
}

// NumericPrice returns the interval when the camp has a usable price.
func NumericPrice(c Camp) (Numeric, bool) {
	n, ok := PriceOf(c).(Numeric)
	return n, ok
}
