package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetLine is a budget allocation of an exercice.
// Reserve is credit held by imputations until their engagement is visaed.
type BudgetLine struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Libelle   string          `json:"libelle"`
	Exercice  int             `json:"exercice"`
	Dotation  decimal.Decimal `json:"dotation"`
	Engage    decimal.Decimal `json:"engage"`
	Reserve   decimal.Decimal `json:"reserve"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Disponible returns the credit neither engaged nor reserved
func (b *BudgetLine) Disponible() decimal.Decimal {
	return b.Dotation.Sub(b.Engage).Sub(b.Reserve)
}

// Covers returns true if the line can absorb the amount
func (b *BudgetLine) Covers(montant decimal.Decimal) bool {
	return b.Disponible().GreaterThanOrEqual(montant)
}

// Releasable caps a reservation release to what the line actually reserves
func (b *BudgetLine) Releasable(released decimal.Decimal) decimal.Decimal {
	if released.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(released, b.Reserve)
}

// CoversEngagement returns true if montant fits once released reserved credit is
// turned into engaged credit
func (b *BudgetLine) CoversEngagement(montant, released decimal.Decimal) bool {
	return b.Disponible().Add(b.Releasable(released)).GreaterThanOrEqual(montant)
}
