package providers

import "strings"

// YahooSymbol normalizes a ticker for Yahoo-style endpoints:
// class-share dots become dashes (BRK.B -> BRK-B, BF.B -> BF-B).
func YahooSymbol(ticker string) string {
	return strings.ReplaceAll(ticker, ".", "-")
}

// StooqSymbol maps a US ticker to Stooq's convention: lowercase,
// dots as dashes, ".us" suffix.
func StooqSymbol(ticker string) string {
	return strings.ToLower(YahooSymbol(ticker)) + ".us"
}
