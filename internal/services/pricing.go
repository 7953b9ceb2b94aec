// internal/services/pricing.go
package services

import (
	"math"

	"github.com/lapakwarga/lapakwarga-backend/internal/models"
)

// PricingView is the derived pricing read model consumed by the presentation
// layer. All fields are recomputed from the ledger row on every call; nothing
// here is cached or persisted.
type PricingView struct {
	UnitPrice         float64  `json:"unit_price"`
	OriginalUnitPrice *float64 `json:"original_unit_price,omitempty"`
	SavingsPerUnit    float64  `json:"savings_per_unit"`
	DiscountPercent   *float64 `json:"discount_percent,omitempty"`
	ProgressPercent   float64  `json:"progress_percent"`
}

// DerivePricing computes the pricing and progress figures for a group buy.
// The discount percent is rounded to one decimal and only present when an
// original price is advertised.
func DerivePricing(gb *models.GroupBuy) PricingView {
	view := PricingView{
		UnitPrice:         gb.UnitPrice,
		OriginalUnitPrice: gb.OriginalUnitPrice,
		ProgressPercent:   progressPercent(gb.CommittedQuantity, gb.TargetQuantity),
	}

	if gb.OriginalUnitPrice != nil {
		savings := *gb.OriginalUnitPrice - gb.UnitPrice
		if savings < 0 {
			savings = 0
		}
		view.SavingsPerUnit = savings

		if *gb.OriginalUnitPrice > 0 {
			discount := math.Round(savings / *gb.OriginalUnitPrice * 1000) / 10
			view.DiscountPercent = &discount
		}
	}

	return view
}

func progressPercent(committed, target int) float64 {
	if target <= 0 {
		return 0
	}

	progress := float64(committed) / float64(target) * 100
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}
