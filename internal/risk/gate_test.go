package risk

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/config"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

func testLimits(t *testing.T) Limits {
	t.Helper()
	limits, err := LimitsFromConfig(config.RiskConfig{
		MaxPositionSize:  "100",
		MaxDailyLoss:     "5000",
		MaxOrdersPerMin:  3,
		MaxTotalExposure: "100000",
	})
	require.NoError(t, err)
	return limits
}

func riskOrder(qty int64, price int64) *model.Order {
	return &model.Order{
		ID:       uuid.New(),
		UserID:   "user-1",
		Symbol:   "INFY",
		Side:     model.SideBuy,
		Quantity: decimal.NewFromInt(qty),
		Price:    decimal.NewFromInt(price),
		Status:   model.StatusPending,
	}
}

func TestGateAllowsWithinLimits(t *testing.T) {
	gate := NewGate(testLimits(t))
	decision := gate.Check(riskOrder(10, 100), Exposure{})
	assert.True(t, decision.Allowed)
}

func TestGateDeniesOversizedPosition(t *testing.T) {
	gate := NewGate(testLimits(t))

	decision := gate.Check(riskOrder(150, 100), Exposure{})
	require.False(t, decision.Allowed)
	assert.Equal(t, CodeMaxPositionSize, decision.Code)

	// Existing position plus candidate breaching the limit.
	decision = gate.Check(riskOrder(60, 100), Exposure{SymbolPosition: decimal.NewFromInt(50)})
	require.False(t, decision.Allowed)
	assert.Equal(t, CodeMaxPositionSize, decision.Code)
}

func TestGateNetsCandidateBySide(t *testing.T) {
	gate := NewGate(testLimits(t))

	// A sell reducing a near-limit long position must pass.
	sell := riskOrder(50, 100)
	sell.Side = model.SideSell
	decision := gate.Check(sell, Exposure{SymbolPosition: decimal.NewFromInt(90)})
	assert.True(t, decision.Allowed)

	// The same quantity bought breaches the limit.
	decision = gate.Check(riskOrder(50, 100), Exposure{SymbolPosition: decimal.NewFromInt(90)})
	require.False(t, decision.Allowed)
	assert.Equal(t, CodeMaxPositionSize, decision.Code)

	// A sell extending a short position counts against the limit too.
	decision = gate.Check(sell, Exposure{SymbolPosition: decimal.NewFromInt(-90)})
	require.False(t, decision.Allowed)
	assert.Equal(t, CodeMaxPositionSize, decision.Code)
}

func TestGateDeniesDailyLossBreach(t *testing.T) {
	gate := NewGate(testLimits(t))
	decision := gate.Check(riskOrder(1, 100), Exposure{DailyLoss: decimal.NewFromInt(5000)})
	require.False(t, decision.Allowed)
	assert.Equal(t, CodeMaxDailyLoss, decision.Code)
}

func TestGateDeniesOrderRateBreach(t *testing.T) {
	gate := NewGate(testLimits(t))
	decision := gate.Check(riskOrder(1, 100), Exposure{OrdersLastMinute: 3})
	require.False(t, decision.Allowed)
	assert.Equal(t, CodeOrderRate, decision.Code)
}

func TestGateDeniesAggregateExposureBreach(t *testing.T) {
	gate := NewGate(testLimits(t))
	decision := gate.Check(riskOrder(10, 100), Exposure{TotalExposure: decimal.NewFromInt(99500)})
	require.False(t, decision.Allowed)
	assert.Equal(t, CodeMaxExposure, decision.Code)
}

func TestGateCheckOrder(t *testing.T) {
	// Position limit is evaluated first, so a breach there wins even when
	// other limits are also breached.
	gate := NewGate(testLimits(t))
	decision := gate.Check(riskOrder(150, 100), Exposure{
		DailyLoss:        decimal.NewFromInt(9999),
		OrdersLastMinute: 99,
	})
	require.False(t, decision.Allowed)
	assert.Equal(t, CodeMaxPositionSize, decision.Code)
}

func TestExposureBookTracksSubmissions(t *testing.T) {
	book := NewExposureBook()

	buy := riskOrder(10, 100)
	book.RecordSubmit(buy)

	ex := book.SnapshotFor(buy)
	assert.True(t, ex.SymbolPosition.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 1, ex.OrdersLastMinute)
	assert.True(t, ex.TotalExposure.Equal(decimal.NewFromInt(1000)))

	sell := riskOrder(4, 100)
	sell.Side = model.SideSell
	book.RecordSubmit(sell)

	ex = book.SnapshotFor(buy)
	assert.True(t, ex.SymbolPosition.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, 2, ex.OrdersLastMinute)
}

func TestExposureBookDailyLoss(t *testing.T) {
	book := NewExposureBook()
	book.RecordLoss("user-1", decimal.NewFromInt(1200))
	book.RecordLoss("user-1", decimal.NewFromInt(300))

	ex := book.SnapshotFor(riskOrder(1, 1))
	assert.True(t, ex.DailyLoss.Equal(decimal.NewFromInt(1500)))

	book.ResetDaily()
	ex = book.SnapshotFor(riskOrder(1, 1))
	assert.True(t, ex.DailyLoss.IsZero())
}

func TestLimitsFromConfigRejectsGarbage(t *testing.T) {
	_, err := LimitsFromConfig(config.RiskConfig{
		MaxPositionSize:  "not-a-number",
		MaxDailyLoss:     "1",
		MaxTotalExposure: "1",
	})
	assert.Error(t, err)
}

func TestSnapshotRateWindowExpires(t *testing.T) {
	book := NewExposureBook()
	order := riskOrder(1, 1)

	book.mu.Lock()
	book.submits[order.UserID] = []time.Time{
		time.Now().Add(-2 * time.Minute),
		time.Now().Add(-30 * time.Second),
	}
	book.mu.Unlock()

	ex := book.SnapshotFor(order)
	assert.Equal(t, 1, ex.OrdersLastMinute, "entries older than a minute drop out")
}
