// Package prize defines the reward table and the weighted draw over it.
package prize

import "fmt"

// Kind tells the two prize variants apart.
type Kind string

const (
	KindCurrency    Kind = "currency"
	KindCollectible Kind = "collectible"
)

// Prize is one entry of the reward table. The set of implementations is
// closed: CurrencyPrize and CollectiblePrize.
type Prize interface {
	ID() string
	Kind() Kind
	Weight() float64
	Label() string
	isPrize()
}

// CurrencyPrize credits coins to the balance when claimed.
type CurrencyPrize struct {
	Key    string
	Amount int64
	Odds   float64
}

func (p CurrencyPrize) ID() string      { return p.Key }
func (p CurrencyPrize) Kind() Kind      { return KindCurrency }
func (p CurrencyPrize) Weight() float64 { return p.Odds }
func (p CurrencyPrize) Label() string   { return fmt.Sprintf("%d", p.Amount) }
func (CurrencyPrize) isPrize()          {}

// CollectiblePrize becomes an inventory record when claimed. Animation is
// the asset path of its looping animation, empty for a static rendering.
type CollectiblePrize struct {
	Key       string
	Name      string
	Odds      float64
	Animation string
}

func (p CollectiblePrize) ID() string      { return p.Key }
func (p CollectiblePrize) Kind() Kind      { return KindCollectible }
func (p CollectiblePrize) Weight() float64 { return p.Odds }
func (p CollectiblePrize) Label() string   { return p.Name }
func (CollectiblePrize) isPrize()          {}

// Same reports whether a and b are the same table entry.
func Same(a, b Prize) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID() == b.ID()
}
