package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"niftytrader-go/src/models"
)

func acct(balance, risk float64) models.AccountState {
	return models.AccountState{AvailableBalance: balance, RiskFraction: risk}
}

func TestTradingCapital(t *testing.T) {
	assert.InDelta(t, 45000, acct(50000, 0.90).TradingCapital(), 1e-9)
	assert.Zero(t, acct(50000, 0).TradingCapital())
}

func TestLotQuantityTypicalAccount(t *testing.T) {
	// 50000 * 0.90 = 45000 capital, one lot costs 95.50 * 75 = 7162.50,
	// so 6 lots fit.
	qty := LotQuantity(acct(50000, 0.90), 95.50, 75)
	assert.Equal(t, 450, qty)
}

func TestLotQuantityInsufficientCapital(t *testing.T) {
	assert.Equal(t, 0, LotQuantity(acct(1000, 0.90), 95.50, 75))
}

func TestLotQuantitySingleLot(t *testing.T) {
	// 8000 * 0.90 = 7200 covers one lot at 7162.50 but not two
	assert.Equal(t, 75, LotQuantity(acct(8000, 0.90), 95.50, 75))
}

func TestLotQuantityDegenerateInputs(t *testing.T) {
	assert.Equal(t, 0, LotQuantity(acct(0, 0.90), 95.50, 75))
	assert.Equal(t, 0, LotQuantity(acct(-1, 0.90), 95.50, 75))
	assert.Equal(t, 0, LotQuantity(acct(50000, 0), 95.50, 75))
	assert.Equal(t, 0, LotQuantity(acct(50000, 0.90), 0, 75))
	assert.Equal(t, 0, LotQuantity(acct(50000, 0.90), 95.50, 0))
}

func TestLotQuantityInvariants(t *testing.T) {
	balances := []float64{500, 5000, 25000, 50000, 200000, 1000000}
	premiums := []float64{80.05, 95.50, 119.95, 250}
	lots := []int{25, 50, 75}

	for _, balance := range balances {
		for _, premium := range premiums {
			for _, lot := range lots {
				qty := LotQuantity(acct(balance, 0.90), premium, lot)
				assert.Zero(t, qty%lot, "quantity must be a whole lot multiple")
				assert.LessOrEqual(t, float64(qty)*premium, balance*0.90,
					"cost must stay inside trading capital")
				assert.GreaterOrEqual(t, qty, 0)
			}
		}
	}
}
