package services

import (
	"math/big"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/models"
)

var hundred = decimal.NewFromInt(100)

// AllocationShare is one master's share of the work on an order
type AllocationShare struct {
	MasterID       uint
	WorkPercentage decimal.Decimal
}

// AllocationInput is everything the allocator needs to split an order's revenue
type AllocationInput struct {
	OrderID         uint
	LineItems       []models.LineItem
	Shares          []AllocationShare
	OwnerPercentage decimal.Decimal
	AllocatedAt     time.Time
}

// BonusLine is the money one master earns from an order
type BonusLine struct {
	MasterID       uint            `json:"master_id"`
	WorkPercentage decimal.Decimal `json:"work_percentage"`
	MasterShare    decimal.Decimal `json:"master_share"`
	Amount         decimal.Decimal `json:"amount"`
	Percentage     decimal.Decimal `json:"percentage"`
}

// Allocation is the result of splitting an order total between the owner and the masters.
// OwnerAmount + WorkersAmount always equals TotalAmount.
type Allocation struct {
	OrderID         uint            `json:"order_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	OwnerPercentage decimal.Decimal `json:"owner_percentage"`
	OwnerAmount     decimal.Decimal `json:"owner_amount"`
	WorkersAmount   decimal.Decimal `json:"workers_amount"`
	Normalized      bool            `json:"normalized"`
	Bonuses         []BonusLine     `json:"bonuses"`
	AllocatedAt     time.Time       `json:"allocated_at"`
}

// Allocate splits the order total between the owner and the assigned masters.
//
// The workers pool is rounded half-up to the kopeck. Bonuses are floored to the kopeck and the
// leftover kopecks go to the largest remainders, earlier shares first, so the bonuses add up to
// the pool exactly. Shares that do not sum to 100 are scaled proportionally and the result is
// flagged as normalized; the scaled shares are split the same way so they still sum to 100.
func Allocate(in AllocationInput) (*Allocation, error) {
	total := models.SumLineItems(in.LineItems)
	if total.IsNegative() {
		return nil, apperrors.New(apperrors.CodeValidation, "order total cannot be negative")
	}
	if in.OwnerPercentage.IsNegative() || in.OwnerPercentage.GreaterThan(hundred) {
		return nil, apperrors.New(apperrors.CodeValidation, "owner percentage must be between 0 and 100")
	}

	shareSum, err := validateShares(in.Shares)
	if err != nil {
		return nil, err
	}

	allocatedAt := in.AllocatedAt
	if allocatedAt.IsZero() {
		allocatedAt = time.Now()
	}

	result := &Allocation{
		OrderID:         in.OrderID,
		TotalAmount:     total,
		OwnerPercentage: in.OwnerPercentage,
		OwnerAmount:     total,
		WorkersAmount:   decimal.Zero,
		Bonuses:         []BonusLine{},
		AllocatedAt:     allocatedAt,
	}
	if len(in.Shares) == 0 {
		return result, nil
	}

	workerCut := hundred.Sub(in.OwnerPercentage)
	pool := total.Mul(workerCut).Div(hundred).Round(2)
	result.Normalized = !shareSum.Equal(hundred)

	amounts := splitHundredths(pool, in.Shares)
	effective := make([]decimal.Decimal, len(in.Shares))
	for i, share := range in.Shares {
		effective[i] = share.WorkPercentage
	}
	if result.Normalized {
		effective = splitHundredths(hundred, in.Shares)
	}

	distributed := decimal.Zero
	for i, share := range in.Shares {
		result.Bonuses = append(result.Bonuses, BonusLine{
			MasterID:       share.MasterID,
			WorkPercentage: effective[i],
			MasterShare:    total.Mul(share.WorkPercentage).Div(shareSum).Round(2),
			Amount:         amounts[i],
			Percentage:     workerCut,
		})
		distributed = distributed.Add(amounts[i])
	}

	result.WorkersAmount = distributed
	result.OwnerAmount = total.Sub(distributed)
	return result, nil
}

func validateShares(shares []AllocationShare) (decimal.Decimal, error) {
	sum := decimal.Zero
	seen := make(map[uint]bool, len(shares))
	for _, share := range shares {
		if share.MasterID == 0 {
			return decimal.Zero, apperrors.New(apperrors.CodeInvalidAssignment, "assignment has no master")
		}
		if seen[share.MasterID] {
			return decimal.Zero, apperrors.Newf(apperrors.CodeInvalidAssignment, "master %d is assigned more than once", share.MasterID)
		}
		seen[share.MasterID] = true

		if share.WorkPercentage.IsNegative() || share.WorkPercentage.GreaterThan(hundred) {
			return decimal.Zero, apperrors.Newf(apperrors.CodeInconsistentPercentages,
				"work percentage of master %d must be between 0 and 100", share.MasterID)
		}
		sum = sum.Add(share.WorkPercentage)
	}
	if len(shares) > 0 && sum.IsZero() {
		return decimal.Zero, apperrors.New(apperrors.CodeInconsistentPercentages, "work percentages sum to zero")
	}
	return sum, nil
}

// splitHundredths divides pool among shares in proportion to their percentages, in whole hundredths.
func splitHundredths(pool decimal.Decimal, shares []AllocationShare) []decimal.Decimal {
	scale := int32(0)
	for _, share := range shares {
		if exp := -share.WorkPercentage.Exponent(); exp > scale {
			scale = exp
		}
	}

	weights := make([]*big.Int, len(shares))
	weightSum := new(big.Int)
	for i, share := range shares {
		weights[i] = share.WorkPercentage.Shift(scale).BigInt()
		weightSum.Add(weightSum, weights[i])
	}

	poolKopecks := pool.Shift(2).BigInt()
	floors := make([]*big.Int, len(shares))
	remainders := make([]*big.Int, len(shares))
	assigned := new(big.Int)
	for i := range shares {
		numerator := new(big.Int).Mul(poolKopecks, weights[i])
		floors[i], remainders[i] = new(big.Int).QuoRem(numerator, weightSum, new(big.Int))
		assigned.Add(assigned, floors[i])
	}

	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return remainders[b].Cmp(remainders[a])
	})

	leftover := new(big.Int).Sub(poolKopecks, assigned).Int64()
	for k := int64(0); k < leftover; k++ {
		idx := order[k%int64(len(order))]
		floors[idx].Add(floors[idx], big.NewInt(1))
	}

	amounts := make([]decimal.Decimal, len(shares))
	for i, kopecks := range floors {
		amounts[i] = decimal.NewFromBigInt(kopecks, -2)
	}
	return amounts
}
