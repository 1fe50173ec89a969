package view

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Money formats a price as "$1,234.56", rounding half away from zero.
func Money(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = math.Abs(v)
	}
	rounded := decimal.NewFromFloat(v).Round(2).InexactFloat64()
	return sign + "$" + humanize.FormatFloat("#,###.##", rounded)
}

// Percent formats a signed percentage as "+5.00%".
func Percent(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsZero() || d.IsPositive() {
		return "+" + d.Abs().StringFixed(2) + "%"
	}
	return d.StringFixed(2) + "%"
}

// Render formats the numeric part of a card: "$1,234.56  +5.00% ($50.00)".
func Render(s State) string {
	return fmt.Sprintf("%s  %s (%s)", Money(s.DisplayPrice), Percent(s.ChangePercentage), Money(s.ChangeAmount))
}

// Line renders a full labelled row. Recently updated cards are marked with "*".
func Line(s State) string {
	mark := " "
	if s.JustUpdated {
		mark = "*"
	}
	return fmt.Sprintf("%s %-22s %s", mark, s.Title, Render(s))
}
