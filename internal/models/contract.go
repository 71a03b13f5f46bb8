package models

import "time"

// ContractStatusFinished is the status of a completed contract.
const ContractStatusFinished = "finished"

// Contract is a trade record delivered to the corporation. OreValue and
// OtherValue are nil until the contract has been valued.
type Contract struct {
	ID                  int64
	Status              string
	AppraisalLink       string
	Price               float64
	OreValue            *float64
	OtherValue          *float64
	PriceCorrectionSent bool
	IssuedAt            time.Time
}

// Valued reports whether the contract already carries its valuation.
func (c *Contract) Valued() bool {
	return c.OreValue != nil
}
