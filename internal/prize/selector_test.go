package prize

import (
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestWeightedSelector_TwoPrizeShare(t *testing.T) {
	table, err := NewTable(
		CurrencyPrize{Key: "a", Amount: 1, Odds: 90},
		CurrencyPrize{Key: "b", Amount: 2, Odds: 10},
	)
	require.NoError(t, err)

	sel := NewWeightedSelector(table, WithSource(rand.New(rand.NewPCG(7, 11))))

	const draws = 10000
	hits := 0
	for i := 0; i < draws; i++ {
		if sel.Select().ID() == "a" {
			hits++
		}
	}

	share := float64(hits) / draws
	assert.GreaterOrEqual(t, share, 0.85)
	assert.LessOrEqual(t, share, 0.95)
}

func TestWeightedSelector_FallsBackToFirst(t *testing.T) {
	table, err := NewTable(
		CurrencyPrize{Key: "first", Odds: 1},
		CurrencyPrize{Key: "second", Odds: 1},
	)
	require.NoError(t, err)

	// A draw at the very top of the range is never below the cumulative sum.
	sel := NewWeightedSelector(table, WithFloat(func() float64 { return 1 }))
	assert.Equal(t, "first", sel.Select().ID())
}

func TestWeightedSelector_Boundaries(t *testing.T) {
	table, err := NewTable(
		CurrencyPrize{Key: "a", Odds: 3},
		CurrencyPrize{Key: "b", Odds: 1},
	)
	require.NoError(t, err)

	assert.Equal(t, "a", NewWeightedSelector(table, WithFloat(func() float64 { return 0 })).Select().ID())
	assert.Equal(t, "a", NewWeightedSelector(table, WithFloat(func() float64 { return 0.74 })).Select().ID())
	assert.Equal(t, "b", NewWeightedSelector(table, WithFloat(func() float64 { return 0.75 })).Select().ID())
}

func TestWeightedSelector_Concurrent(t *testing.T) {
	sel := NewWeightedSelector(DefaultCatalog().Prizes)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if sel.Select() == nil {
					t.Error("nil prize")
					return
				}
			}
		}()
	}
	wg.Wait()
}

// TestSelectionFairnessProperty checks that empirical frequencies converge
// to weight/total for arbitrary positive weight tables.
func TestSelectionFairnessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 6).Draw(t, "n")
		prizes := make([]Prize, n)
		for i := range prizes {
			w := rapid.Float64Range(1, 50).Draw(t, "weight")
			prizes[i] = CurrencyPrize{Key: string(rune('a' + i)), Amount: int64(i), Odds: w}
		}
		table, err := NewTable(prizes...)
		if err != nil {
			t.Fatal(err)
		}

		seed := rapid.Uint64().Draw(t, "seed")
		sel := NewWeightedSelector(table, WithSource(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))))

		const draws = 20000
		counts := make(map[string]int, n)
		for i := 0; i < draws; i++ {
			counts[sel.Select().ID()]++
		}

		for _, p := range prizes {
			want := p.Weight() / table.TotalWeight()
			got := float64(counts[p.ID()]) / draws
			// Six standard deviations of a binomial proportion.
			tol := 6 * math.Sqrt(want*(1-want)/draws)
			if math.Abs(got-want) > tol {
				t.Fatalf("prize %s: share %.4f, expected %.4f ± %.4f", p.ID(), got, want, tol)
			}
		}
	})
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	assert.Equal(t, 18, c.Prizes.Len())
	assert.InDelta(t, 100.0, c.Prizes.TotalWeight(), 1e-9)
	assert.Equal(t, int64(750), c.CoinValue("Diamond"))
	assert.Equal(t, DefaultCoinValue, c.CoinValue("Mystery"))

	ring, ok := c.Prizes.Get("giftRing")
	require.True(t, ok)
	assert.Equal(t, KindCollectible, ring.Kind())
	assert.Equal(t, "Ring", ring.Label())

	assert.True(t, c.Match(CategoryRare, "Ring"))
	assert.False(t, c.Match(CategoryRare, "Heart"))
	assert.True(t, c.Match(CategoryNFT, "Calendar"))
	assert.False(t, c.Match(CategoryTelegram, "Calendar"))
	assert.True(t, c.Match(CategoryAll, "Calendar"))
	assert.Equal(t, []string{"Ring", "Trophy", "Diamond", "Calendar"}, c.Names(CategoryRare))
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryRare, ParseCategory(" RARE "))
	assert.Equal(t, CategoryAll, ParseCategory("whatever"))
	assert.Equal(t, CategoryNFT, ParseCategory("nft"))
}

func TestNewTable_Errors(t *testing.T) {
	_, err := NewTable()
	assert.ErrorIs(t, err, ErrEmptyTable)

	_, err = NewTable(CurrencyPrize{Key: "x", Odds: 1}, CollectiblePrize{Key: "x", Name: "X", Odds: 1})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestParseCatalog(t *testing.T) {
	data := []byte(`
prizes:
  - id: coin7
    kind: currency
    amount: 7
    weight: 3
  - id: giftStar
    kind: collectible
    name: Star
    weight: 1
    animation: assets/giftStar.json
values:
  Star: 40
default_value: 5
rare: [Star]
nft: [Star]
`)
	c, err := ParseCatalog(data)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Prizes.Len())
	assert.Equal(t, int64(40), c.CoinValue("Star"))
	assert.Equal(t, int64(5), c.CoinValue("Heart"))
	assert.True(t, c.IsRare("Star"))
	assert.True(t, c.IsNFT("Star"))
	assert.False(t, c.IsNFT("Calendar"))

	star, ok := c.Prizes.Collectible("Star")
	require.True(t, ok)
	assert.Equal(t, "assets/giftStar.json", star.Animation)
}

func TestParseCatalog_UnknownKind(t *testing.T) {
	_, err := ParseCatalog([]byte("prizes:\n  - id: x\n    kind: bonus\n    weight: 1\n"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}
