package strategy

import (
	"strings"
	"unicode"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

var assetKeywords = []struct {
	asset    domain.Asset
	keywords []string
}{
	{domain.AssetBTC, []string{"bitcoin", "btc"}},
	{domain.AssetETH, []string{"ethereum", "eth"}},
	{domain.AssetSOL, []string{"solana", "sol"}},
	{domain.AssetXRP, []string{"xrp", "ripple"}},
}

// ClassifyAsset maps a market question to its underlying asset by whole-word
// keyword match, checked in BTC, ETH, SOL, XRP order.
func ClassifyAsset(question string) domain.Asset {
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}
	for _, a := range assetKeywords {
		for _, k := range a.keywords {
			if seen[k] {
				return a.asset
			}
		}
	}
	return domain.AssetUnknown
}
