package trading

import "niftytrader-go/src/models"

// LotQuantity returns the order quantity for the given account state and
// option premium: the largest whole multiple of the lot size whose cost fits
// inside the account's trading capital. Returns 0 when not even one lot is
// affordable or when any input is non-positive.
func LotQuantity(acct models.AccountState, premium float64, lotSize int) int {
	capital := acct.TradingCapital()
	if capital <= 0 || premium <= 0 || lotSize <= 0 {
		return 0
	}
	lotCost := premium * float64(lotSize)
	lots := int(capital / lotCost)
	if lots < 0 {
		return 0
	}
	return lots * lotSize
}
