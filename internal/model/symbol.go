package model

import "strings"

// quoteAssets are tried longest-first when splitting an exchange-native
// concatenated pair such as "BTCUSDT".
var quoteAssets = [...]string{
	"FDUSD", "USDT", "USDC", "BUSD", "TUSD",
	"USD", "EUR", "GBP", "TRY", "BTC", "ETH", "BNB", "DAI",
}

// NormalizeSymbol canonicalizes an exchange-native symbol into the
// "BASE-QUOTE" form used everywhere inside the core. Raw inputs it accepts:
// already-canonical ids ("BTC-USDT"), prefixed pairs ("X:BTC-USD"),
// separator variants ("BTC_USD", "btc/usd") and concatenated Binance pairs
// ("BTCUSDT"). Returns false when no base/quote split can be derived.
func NormalizeSymbol(raw string) (string, bool) {
	clean := strings.ToUpper(strings.TrimSpace(raw))
	clean = strings.TrimPrefix(clean, "X:")
	clean = strings.ReplaceAll(clean, "_", "-")
	clean = strings.ReplaceAll(clean, "/", "-")
	if clean == "" {
		return "", false
	}

	if base, quote, ok := strings.Cut(clean, "-"); ok {
		if base == "" || quote == "" || strings.Contains(quote, "-") {
			return "", false
		}
		return base + "-" + quote, true
	}

	for _, quote := range quoteAssets {
		base, found := strings.CutSuffix(clean, quote)
		if found && base != "" {
			return base + "-" + quote, true
		}
	}
	return "", false
}

// RawBinanceSymbol converts a canonical id back to the concatenated
// uppercase form Binance stream names are built from. Returns false when
// the input is not a canonical "BASE-QUOTE" id.
func RawBinanceSymbol(instrumentID string) (string, bool) {
	clean := strings.ToUpper(strings.TrimSpace(instrumentID))
	base, quote, ok := strings.Cut(clean, "-")
	if !ok || base == "" || quote == "" || strings.Contains(quote, "-") {
		return "", false
	}
	return base + quote, true
}
