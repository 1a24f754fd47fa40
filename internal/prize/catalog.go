package prize

import "strings"

// DefaultCoinValue is what a collectible converts to when its name has no
// entry in the value table.
const DefaultCoinValue int64 = 10

// Category filters inventory listings.
type Category string

const (
	CategoryAll      Category = "all"
	CategoryTelegram Category = "telegram"
	CategoryNFT      Category = "nft"
	CategoryRare     Category = "rare"
)

// ParseCategory maps a user-supplied filter to a Category. Unknown values
// mean CategoryAll.
func ParseCategory(s string) Category {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryTelegram, CategoryNFT, CategoryRare:
		return c
	default:
		return CategoryAll
	}
}

// Catalog bundles the reward table with collectible metadata: coin values
// for conversion and the rare and NFT groupings.
type Catalog struct {
	Prizes       *Table
	values       map[string]int64
	defaultValue int64
	rare         map[string]struct{}
	nft          map[string]struct{}
}

// NewCatalog creates a catalog. defaultValue applies to names absent from
// values.
func NewCatalog(table *Table, values map[string]int64, defaultValue int64, rare, nft []string) *Catalog {
	c := &Catalog{
		Prizes:       table,
		values:       make(map[string]int64, len(values)),
		defaultValue: defaultValue,
		rare:         make(map[string]struct{}, len(rare)),
		nft:          make(map[string]struct{}, len(nft)),
	}
	for k, v := range values {
		c.values[k] = v
	}
	for _, n := range rare {
		c.rare[n] = struct{}{}
	}
	for _, n := range nft {
		c.nft[n] = struct{}{}
	}
	return c
}

// CoinValue returns the conversion value of a collectible by name.
func (c *Catalog) CoinValue(name string) int64 {
	if v, ok := c.values[name]; ok {
		return v
	}
	return c.defaultValue
}

// IsRare reports whether the collectible belongs to the rare group.
func (c *Catalog) IsRare(name string) bool {
	_, ok := c.rare[name]
	return ok
}

// IsNFT reports whether the collectible is an NFT gift.
func (c *Catalog) IsNFT(name string) bool {
	_, ok := c.nft[name]
	return ok
}

// Match reports whether a collectible name passes the category filter.
// Telegram gifts are everything that is not an NFT.
func (c *Catalog) Match(cat Category, name string) bool {
	switch cat {
	case CategoryRare:
		return c.IsRare(name)
	case CategoryNFT:
		return c.IsNFT(name)
	case CategoryTelegram:
		return !c.IsNFT(name)
	default:
		return true
	}
}

// Names returns the collectible names in the category, in table order.
func (c *Catalog) Names(cat Category) []string {
	var out []string
	for _, p := range c.Prizes.prizes {
		if col, ok := p.(CollectiblePrize); ok && c.Match(cat, col.Name) {
			out = append(out, col.Name)
		}
	}
	return out
}

func gift(key, name string, odds float64) CollectiblePrize {
	return CollectiblePrize{Key: key, Name: name, Odds: odds, Animation: "assets/" + key + ".json"}
}

// DefaultCatalog returns the built-in daily spin catalog. Weights sum to
// 100 but nothing depends on that.
func DefaultCatalog() *Catalog {
	table, err := NewTable(
		CurrencyPrize{Key: "coin1", Amount: 1, Odds: 32.14},
		CurrencyPrize{Key: "coin5", Amount: 5, Odds: 18.40},
		CurrencyPrize{Key: "coin10", Amount: 10, Odds: 12.30},
		CurrencyPrize{Key: "coin25", Amount: 25, Odds: 9.80},
		CurrencyPrize{Key: "coin50", Amount: 50, Odds: 6.10},
		CurrencyPrize{Key: "coin100", Amount: 100, Odds: 4.90},
		CurrencyPrize{Key: "coin250", Amount: 250, Odds: 2.50},
		CurrencyPrize{Key: "coin500", Amount: 500, Odds: 1.20},
		gift("giftHeart", "Heart", 2.5),
		gift("giftBear", "Bear", 2.5),
		gift("giftRose", "Rose", 1.8),
		gift("giftGift", "Gift", 1.8),
		gift("giftCake", "Cake", 1.2),
		gift("giftRoseBouquet", "Rose Bouquet", 1.2),
		gift("giftRing", "Ring", 0.6),
		gift("giftTrophy", "Trophy", 0.4),
		gift("giftDiamond", "Diamond", 0.6),
		gift("giftCalendar", "Calendar", 0.06),
	)
	if err != nil {
		panic("default prize table: " + err.Error())
	}

	values := map[string]int64{
		"Heart":        50,
		"Bear":         50,
		"Rose":         75,
		"Gift":         75,
		"Cake":         150,
		"Rose Bouquet": 150,
		"Ring":         350,
		"Trophy":       500,
		"Diamond":      750,
		"Calendar":     2500,
	}

	return NewCatalog(table, values, DefaultCoinValue,
		[]string{"Ring", "Trophy", "Diamond", "Calendar"},
		[]string{"Calendar"},
	)
}
