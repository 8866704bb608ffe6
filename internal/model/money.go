package model

import "github.com/shopspring/decimal"

// Amounts are stored in major units with two decimals and sent to the
// processor as integer minor units.
const minorUnitExp = 2

func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(minorUnitExp).Round(0).IntPart()
}

func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -minorUnitExp)
}
