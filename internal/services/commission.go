// internal/services/commission.go
package services

// commissionSlab pairs an inclusive loan-amount ceiling (rupees) with the
// flat agent commission paid for referrals up to that amount.
type commissionSlab struct {
	Ceiling int64
	Fee     int64
}

// Ordered ascending; evaluated top-down.
var commissionSlabs = []commissionSlab{
	{Ceiling: 500_000, Fee: 1_000},
	{Ceiling: 1_000_000, Fee: 3_000},
	{Ceiling: 1_500_000, Fee: 5_000},
	{Ceiling: 3_000_000, Fee: 7_500},
	{Ceiling: 5_000_000, Fee: 15_000},
}

// Commission for amounts above the top slab.
const commissionAboveTopSlab int64 = 20_000

// CommissionFor returns the agent commission for a referred loan of the
// given amount, in whole rupees.
func CommissionFor(loanAmount int64) int64 {
	for _, slab := range commissionSlabs {
		if loanAmount <= slab.Ceiling {
			return slab.Fee
		}
	}
	return commissionAboveTopSlab
}
