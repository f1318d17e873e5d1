package domain

import (
	"math"
	"time"
)

const installmentRoundingUnit = 1000

// FinalUnitPrice returns the effective per-unit price after applying the
// product-level discount fraction. The fraction is clamped to [0, 1]; an
// absent discount is written as 0.
func FinalUnitPrice(basePrice int64, discountFraction float64) int64 {
	if basePrice <= 0 {
		return 0
	}
	d := discountFraction
	if d < 0 {
		d = 0
	}
	if d > 1 {
		d = 1
	}
	return int64(math.Round(float64(basePrice) * (1 - d)))
}

// VoucherReduction computes the order-level reduction for a voucher. A
// percentage voucher takes discountValue percent of the order amount; a fixed
// voucher takes discountValue outright. Both are capped by maxDiscount when
// set and clamped to [0, orderAmount] so a final total never goes negative.
func VoucherReduction(orderAmount, discountValue int64, maxDiscount *int64, kind VoucherType) int64 {
	if orderAmount <= 0 || discountValue <= 0 {
		return 0
	}

	var reduction int64
	switch kind {
	case VoucherTypePercentage:
		reduction = orderAmount * discountValue / 100
	case VoucherTypeFixed:
		reduction = discountValue
	default:
		return 0
	}

	if maxDiscount != nil && reduction > *maxDiscount {
		reduction = *maxDiscount
	}
	if reduction < 0 {
		reduction = 0
	}
	if reduction > orderAmount {
		reduction = orderAmount
	}
	return reduction
}

// InstallmentAmount splits a total into count periods, rounding each period
// up to the nearest 1000 VND so no fractional amount is ever billed. The sum
// of all periods may exceed the total by a small residue; that is accepted
// rather than corrected.
func InstallmentAmount(total int64, count int) int64 {
	if total <= 0 || count <= 0 {
		return 0
	}
	unit := int64(count) * installmentRoundingUnit
	periods := (total + unit - 1) / unit
	return periods * installmentRoundingUnit
}

// NextPayDay returns the due date of the next installment.
func NextPayDay(now time.Time) time.Time {
	return now.AddDate(0, 1, 0)
}
