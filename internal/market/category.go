package market

import "strings"

var categoryKeywords = map[Category][]string{
	CategoryWeather: {
		"weather", "rain", "snow", "temperature", "storm", "hurricane",
		"tornado", "flood", "drought", "celsius", "fahrenheit", "forecast",
		"heatwave", "heat wave", "cold snap", "wildfire",
	},
	CategorySports: {
		"nfl", "nba", "nhl", "mlb", "mma", "ufc", "soccer", "football",
		"basketball", "baseball", "hockey", "tennis", "golf", "boxing",
		"championship", "super bowl", "world cup", "world series",
		"playoffs", "finals", "mvp", "draft", "premier league",
		"champions league", "match", "bout", "fight",
	},
	CategoryCrypto: {
		"bitcoin", "ethereum", "btc", "eth", "solana", "sol", "dogecoin",
		"doge", "crypto", "cryptocurrency", "blockchain", "token", "defi",
		"nft", "altcoin", "stablecoin", "ripple", "xrp", "cardano",
		"polkadot", "avalanche", "polygon", "matic", "binance", "coinbase",
		"mining", "halving",
	},
	CategoryPolitics: {
		"election", "vote", "ballot", "congress", "senate", "house",
		"president", "governor", "mayor", "democrat", "republican",
		"legislation", "bill", "law", "policy", "impeach", "cabinet",
		"supreme court", "parliament", "prime minister", "referendum",
		"midterm", "inaugurat",
	},
}

// Without a detected category the concentration cap would lump every
// market into one bucket, so ordering matters: weather before sports
// keeps "will the storm delay the match" out of the sports bucket.
var categoryOrder = []Category{CategoryWeather, CategorySports, CategoryCrypto, CategoryPolitics}

// InferCategory detects a market's category from its question text.
func InferCategory(question string) Category {
	q := strings.ToLower(question)
	for _, cat := range categoryOrder {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(q, kw) {
				return cat
			}
		}
	}
	return CategoryOther
}

// ParseCategory normalizes a configured or stored category tag.
func ParseCategory(s string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryWeather:
		return CategoryWeather
	case CategorySports:
		return CategorySports
	case CategoryCrypto:
		return CategoryCrypto
	case CategoryPolitics:
		return CategoryPolitics
	default:
		return CategoryOther
	}
}
