package prize

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Table errors.
var (
	ErrEmptyTable   = errors.New("prize table is empty")
	ErrDuplicateID  = errors.New("duplicate prize id")
	ErrUnknownKind  = errors.New("unknown prize kind")
	ErrMissingField = errors.New("missing prize field")
)

// Table is the immutable, ordered reward table.
type Table struct {
	prizes []Prize
	byID   map[string]Prize
	total  float64
}

// NewTable builds a table from prizes in draw order.
func NewTable(prizes ...Prize) (*Table, error) {
	if len(prizes) == 0 {
		return nil, ErrEmptyTable
	}

	t := &Table{
		prizes: make([]Prize, 0, len(prizes)),
		byID:   make(map[string]Prize, len(prizes)),
	}
	for _, p := range prizes {
		if _, ok := t.byID[p.ID()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, p.ID())
		}
		t.prizes = append(t.prizes, p)
		t.byID[p.ID()] = p
		t.total += p.Weight()
	}
	return t, nil
}

// All returns a copy of the prizes in draw order.
func (t *Table) All() []Prize {
	out := make([]Prize, len(t.prizes))
	copy(out, t.prizes)
	return out
}

// Get looks a prize up by id.
func (t *Table) Get(id string) (Prize, bool) {
	p, ok := t.byID[id]
	return p, ok
}

// Len returns the number of prizes.
func (t *Table) Len() int {
	return len(t.prizes)
}

// TotalWeight returns the sum of all weights.
func (t *Table) TotalWeight() float64 {
	return t.total
}

// Collectible finds a collectible by its display name.
func (t *Table) Collectible(name string) (CollectiblePrize, bool) {
	for _, p := range t.prizes {
		if c, ok := p.(CollectiblePrize); ok && c.Name == name {
			return c, true
		}
	}
	return CollectiblePrize{}, false
}

// fileEntry is one prize in a catalog YAML file.
type fileEntry struct {
	ID        string  `yaml:"id"`
	Kind      Kind    `yaml:"kind"`
	Weight    float64 `yaml:"weight"`
	Amount    int64   `yaml:"amount"`
	Name      string  `yaml:"name"`
	Animation string  `yaml:"animation"`
}

// catalogFile is the on-disk layout of a catalog.
type catalogFile struct {
	Prizes       []fileEntry      `yaml:"prizes"`
	Values       map[string]int64 `yaml:"values"`
	DefaultValue int64            `yaml:"default_value"`
	Rare         []string         `yaml:"rare"`
	NFT          []string         `yaml:"nft"`
}

// LoadCatalog reads a catalog from a YAML file. Sections missing from the
// file fall back to the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prize file %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a catalog from YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse prize file: %w", err)
	}

	def := DefaultCatalog()
	if len(f.Prizes) == 0 {
		f.Prizes = nil
	}
	if len(f.Values) == 0 {
		f.Values = def.values
	}
	if f.DefaultValue <= 0 {
		f.DefaultValue = def.defaultValue
	}
	if f.Rare == nil {
		f.Rare = keys(def.rare)
	}
	if f.NFT == nil {
		f.NFT = keys(def.nft)
	}

	table := def.Prizes
	if f.Prizes != nil {
		prizes := make([]Prize, 0, len(f.Prizes))
		for _, e := range f.Prizes {
			p, err := e.toPrize()
			if err != nil {
				return nil, err
			}
			prizes = append(prizes, p)
		}
		t, err := NewTable(prizes...)
		if err != nil {
			return nil, err
		}
		table = t
	}

	return NewCatalog(table, f.Values, f.DefaultValue, f.Rare, f.NFT), nil
}

func (e fileEntry) toPrize() (Prize, error) {
	if e.ID == "" {
		return nil, fmt.Errorf("%w: id", ErrMissingField)
	}
	switch e.Kind {
	case KindCurrency:
		return CurrencyPrize{Key: e.ID, Amount: e.Amount, Odds: e.Weight}, nil
	case KindCollectible:
		if e.Name == "" {
			return nil, fmt.Errorf("%w: name of %s", ErrMissingField, e.ID)
		}
		return CollectiblePrize{Key: e.ID, Name: e.Name, Odds: e.Weight, Animation: e.Animation}, nil
	default:
		return nil, fmt.Errorf("%w %q for %s", ErrUnknownKind, e.Kind, e.ID)
	}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
