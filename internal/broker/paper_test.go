package broker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
	"github.com/jai-bhardwaj/trading-backend-sub001/pkg/errors"
)

func paperOrder(symbol string, qty int64) *model.Order {
	now := time.Now()
	return &model.Order{
		ID:        uuid.New(),
		UserID:    "user-1",
		Symbol:    symbol,
		Side:      model.SideBuy,
		Quantity:  decimal.NewFromInt(qty),
		Price:     decimal.NewFromInt(100),
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSubmitAcceptsAndReportsFill(t *testing.T) {
	b := NewPaperBroker(zap.NewNop().Sugar())
	defer b.Close()
	ctx := context.Background()

	order := paperOrder("INFY", 10)
	result, err := b.SubmitOrder(ctx, order, "INFY")
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.NotEmpty(t, result.BrokerOrderID)

	select {
	case report := <-b.Reports():
		assert.Equal(t, order.ID, report.OrderID)
		assert.True(t, report.FillQuantity.Equal(order.Quantity))
		assert.True(t, report.Final)
	case <-time.After(time.Second):
		t.Fatal("no execution report")
	}

	pos, err := b.GetPosition(ctx, "INFY")
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(10)))
}

func TestSellReducesPosition(t *testing.T) {
	b := NewPaperBroker(zap.NewNop().Sugar())
	defer b.Close()
	ctx := context.Background()

	buy := paperOrder("INFY", 10)
	_, err := b.SubmitOrder(ctx, buy, "INFY")
	require.NoError(t, err)
	<-b.Reports()

	sell := paperOrder("INFY", 4)
	sell.Side = model.SideSell
	_, err = b.SubmitOrder(ctx, sell, "INFY")
	require.NoError(t, err)
	<-b.Reports()

	pos, err := b.GetPosition(ctx, "INFY")
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(6)))
}

func TestPartialFillsEmitTwoReports(t *testing.T) {
	b := NewPaperBroker(zap.NewNop().Sugar())
	b.PartialFills = true
	defer b.Close()

	order := paperOrder("INFY", 10)
	_, err := b.SubmitOrder(context.Background(), order, "INFY")
	require.NoError(t, err)

	first := <-b.Reports()
	assert.False(t, first.Final)
	second := <-b.Reports()
	assert.True(t, second.Final)
	assert.True(t, first.FillQuantity.Add(second.FillQuantity).Equal(order.Quantity))
}

func TestFailSubmitsInjectsTransientError(t *testing.T) {
	b := NewPaperBroker(zap.NewNop().Sugar())
	b.FailSubmits = 1
	defer b.Close()
	ctx := context.Background()

	_, err := b.SubmitOrder(ctx, paperOrder("INFY", 1), "INFY")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	result, err := b.SubmitOrder(ctx, paperOrder("INFY", 1), "INFY")
	require.NoError(t, err, "only the first submit fails")
	assert.True(t, result.Accepted)
}

func TestRejectSymbolsInjectsBusinessRejection(t *testing.T) {
	b := NewPaperBroker(zap.NewNop().Sugar())
	b.RejectSymbols = map[string]string{"BADSYM": "unknown instrument"}
	defer b.Close()

	_, err := b.SubmitOrder(context.Background(), paperOrder("BADSYM", 1), "BADSYM")
	require.Error(t, err)
	assert.Equal(t, errors.KindBusinessRejection, errors.KindOf(err))
}

func TestCancelSuppressesPendingFill(t *testing.T) {
	b := NewPaperBroker(zap.NewNop().Sugar())
	b.FillDelay = 50 * time.Millisecond
	defer b.Close()
	ctx := context.Background()

	result, err := b.SubmitOrder(ctx, paperOrder("INFY", 10), "INFY")
	require.NoError(t, err)
	require.NoError(t, b.CancelOrder(ctx, result.BrokerOrderID))

	select {
	case report := <-b.Reports():
		t.Fatalf("fill emitted for cancelled order: %+v", report)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestCancelUnknownOrderIsBusinessRejection(t *testing.T) {
	b := NewPaperBroker(zap.NewNop().Sugar())
	defer b.Close()

	err := b.CancelOrder(context.Background(), "no-such-order")
	require.Error(t, err)
	assert.Equal(t, errors.KindBusinessRejection, errors.KindOf(err))
}

func TestSubmitAfterCloseFailsTransient(t *testing.T) {
	b := NewPaperBroker(zap.NewNop().Sugar())
	require.NoError(t, b.Close())

	_, err := b.SubmitOrder(context.Background(), paperOrder("INFY", 1), "INFY")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestClassifyCode(t *testing.T) {
	assert.Equal(t, errors.KindTransient, ClassifyCode(CodeTimeout))
	assert.Equal(t, errors.KindTransient, ClassifyCode(CodeRateLimited))
	assert.Equal(t, errors.KindBusinessRejection, ClassifyCode(CodeInvalidSymbol))
	assert.Equal(t, errors.KindBusinessRejection, ClassifyCode(CodeMarketClosed))
	assert.Equal(t, errors.KindFatal, ClassifyCode("SOMETHING_ELSE"))
}

func TestRoutingResolve(t *testing.T) {
	passthrough := NewRouting(nil)
	token, err := passthrough.Resolve("INFY")
	require.NoError(t, err)
	assert.Equal(t, "INFY", token)

	mapped := NewRouting(map[string]string{"RELIANCE": "738561"})
	token, err = mapped.Resolve("RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, "738561", token)

	_, err = mapped.Resolve("UNMAPPED")
	require.Error(t, err)
	assert.Equal(t, errors.KindBusinessRejection, errors.KindOf(err))
}
