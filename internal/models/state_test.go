package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSimulationState(t *testing.T) {
	state := NewSimulationState(1500)

	assert.InDelta(t, 1500, state.InitialInvestment, 1e-9)
	assert.InDelta(t, 1500, state.QuoteBalance, 1e-9)
	assert.Zero(t, state.BaseBalance)
	assert.NotNil(t, state.Orders)
	assert.NotNil(t, state.TradeHistory)
	assert.False(t, state.StartTime.IsZero())
}

func TestWinRate(t *testing.T) {
	state := NewSimulationState(1000)
	assert.Zero(t, state.WinRate())

	state.TotalTrades = 4
	state.WinningTrades = 3
	assert.InDelta(t, 75, state.WinRate(), 1e-9)
}

func TestROIPercent(t *testing.T) {
	state := NewSimulationState(1000)
	assert.Zero(t, state.ROIPercent())

	state.TotalProfit = 25
	assert.InDelta(t, 2.5, state.ROIPercent(), 1e-9)

	var zero SimulationState
	assert.Zero(t, zero.ROIPercent())
}

func TestCopyIsolatesMutations(t *testing.T) {
	state := NewSimulationState(1000)
	state.Orders["a"] = &OrderRecord{
		Order:         Order{ID: "a", Side: Buy, Price: 100, Status: OrderOpen},
		ReservedQuote: 100,
	}
	state.TradeHistory = append(state.TradeHistory, TradeRecord{Type: Buy, Price: 100, Amount: 1})

	cp := state.Copy()
	cp.QuoteBalance = 0
	cp.Orders["a"].Order.Status = OrderFilled
	cp.Orders["b"] = &OrderRecord{}
	cp.TradeHistory[0].Price = 999

	assert.InDelta(t, 1000, state.QuoteBalance, 1e-9)
	assert.Equal(t, OrderOpen, state.Orders["a"].Order.Status)
	assert.Len(t, state.Orders, 1)
	assert.InDelta(t, 100, state.TradeHistory[0].Price, 1e-9)
}

func TestOrderSize(t *testing.T) {
	cfg := Config{Investment: 1000, GridCount: 20}
	assert.InDelta(t, 50, cfg.OrderSize(), 1e-9)

	cfg.GridCount = 0
	assert.Zero(t, cfg.OrderSize())
}

func TestGridStateLevelFilters(t *testing.T) {
	state := GridState{
		LowerLimit: 90,
		UpperLimit: 110,
		Levels: []*GridLevel{
			{Price: 92, Side: Buy, Status: LevelActive},
			{Price: 94, Side: Buy, Status: LevelFilled},
			{Price: 106, Side: Sell, Status: LevelPending},
			{Price: 108, Side: Sell, Status: LevelActive},
		},
	}

	assert.Len(t, state.ActiveLevels(), 2)
	assert.Len(t, state.BuyLevels(), 2)
	assert.Len(t, state.SellLevels(), 2)
	assert.InDelta(t, 2, state.GridStep(10), 1e-9)
}

func TestOrderNotFoundError(t *testing.T) {
	err := OrderNotFoundError("sim_buy_zzz")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOrderNotFound))
	assert.Contains(t, err.Error(), "sim_buy_zzz")
}
