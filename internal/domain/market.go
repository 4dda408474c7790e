package domain

import "time"

// Constituent is one member of the index as listed in the constituents file.
type Constituent struct {
	Symbol      string
	Security    string
	Sector      string
	SubIndustry string
	Founded     string
	DateAdded   string
}

// ConstituentSnapshot is a constituent's market cap and daily move on a
// given date. PercentChange and ShareOfTotal are in percent (1.5 means
// 1.5%). PercentChange is nil when no previous close was available.
type ConstituentSnapshot struct {
	Constituent
	MarketCap     float64
	PercentChange *float64
	ShareOfTotal  float64
}

// MarketSnapshot is the full index composition on one trading day.
type MarketSnapshot struct {
	Date           time.Time
	Constituents   []ConstituentSnapshot
	TotalMarketCap float64
}

// TreemapMetadata is the summary stored alongside each rendered treemap.
type TreemapMetadata struct {
	Date               string   `json:"date"`
	SP500PercentChange *float64 `json:"sp500_percent_change"`
	TotalMarketCap     string   `json:"total_market_cap"`
}
