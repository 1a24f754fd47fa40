package session

import (
	"telegram-daily-spin/internal/ledger"
	"telegram-daily-spin/internal/prize"
	"telegram-daily-spin/internal/wheel"
)

// PrizeView is a prize as clients see it.
type PrizeView struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Label     string `json:"label"`
	Amount    int64  `json:"amount,omitempty"`
	Animation string `json:"animation,omitempty"`
}

// NewPrizeView describes p. A nil prize gives nil.
func NewPrizeView(p prize.Prize) *PrizeView {
	if p == nil {
		return nil
	}
	v := &PrizeView{ID: p.ID(), Kind: string(p.Kind()), Label: p.Label()}
	switch t := p.(type) {
	case prize.CurrencyPrize:
		v.Amount = t.Amount
	case prize.CollectiblePrize:
		v.Animation = t.Animation
	}
	return v
}

// View is one user's wheel and balance at a point in time. The winner is
// withheld until it is revealed.
type View struct {
	Phase     string      `json:"phase"`
	Spinning  bool        `json:"spinning"`
	Revealed  *PrizeView  `json:"revealed,omitempty"`
	Balance   int64       `json:"balance"`
	Displayed int64       `json:"displayed_balance"`
	Frame     wheel.Frame `json:"frame"`
}

// ClaimResult is what a claim paid out.
type ClaimResult struct {
	Prize    *PrizeView              `json:"prize"`
	Credited int64                   `json:"credited"`
	Balance  int64                   `json:"balance"`
	Record   *ledger.InventoryRecord `json:"record,omitempty"`
}

// ConvertResult is what a conversion paid out.
type ConvertResult struct {
	Record   ledger.InventoryRecord `json:"record"`
	Credited int64                  `json:"credited"`
	Balance  int64                  `json:"balance"`
}

func claimResult(p prize.Prize, out ledger.Outcome) ClaimResult {
	return ClaimResult{
		Prize:    NewPrizeView(p),
		Credited: out.Credited,
		Balance:  out.Balance,
		Record:   out.Record,
	}
}

// view requires the user's lock.
func (m *Manager) view(s *session) View {
	st := s.ctrl.State()
	return View{
		Phase:     st.Phase.String(),
		Spinning:  st.Spinning,
		Revealed:  NewPrizeView(st.Revealed),
		Balance:   s.ledger.Balance(),
		Displayed: s.ledger.DisplayedBalance(),
		Frame:     s.ctrl.Loop().Frame(),
	}
}
