package exchange

import (
	"errors"
	"sync"
	"testing"

	"kash-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPriceSource is a PriceSource with a controllable price and failure mode.
type mockPriceSource struct {
	sync.Mutex
	price    float64
	err      error
	failures int // fail this many calls before succeeding
	calls    int
}

func (m *mockPriceSource) GetPrice(symbol string) (float64, error) {
	m.Lock()
	defer m.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	if m.failures > 0 {
		m.failures--
		return 0, errors.New("transient market error")
	}
	return m.price, nil
}

func (m *mockPriceSource) setPrice(p float64) {
	m.Lock()
	defer m.Unlock()
	m.price = p
}

// mockStateRepository is an in-memory StateRepository that records saves.
type mockStateRepository struct {
	sync.Mutex
	savedState *models.SimulationState
	saveCount  int
	loadState  *models.SimulationState
	saveError  error
}

func (m *mockStateRepository) SaveState(state *models.SimulationState) error {
	m.Lock()
	defer m.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.savedState = state.Copy()
	m.saveCount++
	return nil
}

func (m *mockStateRepository) LoadState() (*models.SimulationState, error) {
	m.Lock()
	defer m.Unlock()
	return m.loadState, nil
}

func (m *mockStateRepository) Close() error { return nil }

func (m *mockStateRepository) saves() int {
	m.Lock()
	defer m.Unlock()
	return m.saveCount
}

func testConfig() *models.Config {
	return &models.Config{
		Symbol:               "BTCUSDT",
		BaseCurrency:         "BTC",
		QuoteCurrency:        "USDT",
		Investment:           1000,
		GridCount:            10,
		GridRangePercent:     10,
		PanicSellBuffer:      5,
		TradingMode:          "simulation",
		CheckIntervalSeconds: 1,
		RetryAttempts:        3,
		RetryInitialDelayMs:  1,
	}
}

func newTestSim(t *testing.T, price float64) (*SimulatedExchange, *mockPriceSource, *mockStateRepository) {
	t.Helper()
	market := &mockPriceSource{price: price}
	repo := &mockStateRepository{}
	sim, err := NewSimulatedExchange(testConfig(), market, repo)
	require.NoError(t, err)
	return sim, market, repo
}

func TestPlaceLimitBuyEscrowsCost(t *testing.T) {
	sim, _, repo := newTestSim(t, 100)

	order, err := sim.PlaceLimitBuy("BTCUSDT", 2, 95)
	require.NoError(t, err)
	assert.Equal(t, models.OrderOpen, order.Status)
	assert.Equal(t, models.Buy, order.Side)

	// 190 escrowed immediately, not just checked
	quote, err := sim.GetBalance("USDT")
	require.NoError(t, err)
	assert.InDelta(t, 810, quote, 1e-9)

	// ledger persisted before the call returned
	assert.GreaterOrEqual(t, repo.saves(), 1)
	rec := repo.savedState.Orders[order.ID]
	require.NotNil(t, rec)
	assert.InDelta(t, 190, rec.ReservedQuote, 1e-9)
}

func TestPlaceLimitBuyInsufficientBalance(t *testing.T) {
	sim, _, repo := newTestSim(t, 100)

	_, err := sim.PlaceLimitBuy("BTCUSDT", 20, 95) // cost 1900 > 1000
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)

	// nothing changed, nothing persisted
	quote, _ := sim.GetBalance("USDT")
	assert.InDelta(t, 1000, quote, 1e-9)
	assert.Equal(t, 0, repo.saves())
}

func TestPlaceLimitSellInsufficientBalance(t *testing.T) {
	sim, _, _ := newTestSim(t, 100)

	// fresh ledger holds no base currency at all
	_, err := sim.PlaceLimitSell("BTCUSDT", 0.5, 105)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)
}

func TestBuyOrderFillsWhenPriceDropsThroughLimit(t *testing.T) {
	sim, market, _ := newTestSim(t, 100)

	order, err := sim.PlaceLimitBuy("BTCUSDT", 1, 95)
	require.NoError(t, err)

	// price above the limit: order must stay open
	checked, err := sim.GetOrderStatus(order.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, models.OrderOpen, checked.Status)

	// price at the limit: boundary is inclusive, order fills
	market.setPrice(95)
	checked, err = sim.GetOrderStatus(order.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, checked.Status)
	assert.InDelta(t, 1, checked.Filled, 1e-9)

	base, _ := sim.GetBalance("BTC")
	assert.InDelta(t, 1, base, 1e-9)

	// a second poll is a no-op on a filled order
	again, err := sim.GetOrderStatus(order.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, again.Status)
}

func TestSellOrderFillsWhenPriceRisesThroughLimit(t *testing.T) {
	sim, market, _ := newTestSim(t, 90)

	// build inventory through a filled buy
	buy, err := sim.PlaceLimitBuy("BTCUSDT", 1, 90)
	require.NoError(t, err)
	_, err = sim.GetOrderStatus(buy.ID, "BTCUSDT")
	require.NoError(t, err)

	sell, err := sim.PlaceLimitSell("BTCUSDT", 1, 100)
	require.NoError(t, err)

	// strictly between limits: no effect
	market.setPrice(99.5)
	checked, err := sim.GetOrderStatus(sell.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, models.OrderOpen, checked.Status)

	market.setPrice(101)
	checked, err = sim.GetOrderStatus(sell.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, checked.Status)

	// profit is computed against the most recent prior buy (90 → 100)
	state := sim.Snapshot()
	assert.Equal(t, 1, state.TotalTrades)
	assert.Equal(t, 1, state.WinningTrades)
	assert.InDelta(t, 10, state.TotalProfit, 1e-9)

	quote, _ := sim.GetBalance("USDT")
	assert.InDelta(t, 1000-90+100, quote, 1e-9)
}

func TestSellFillWithoutPriorBuyRecordsNoTrade(t *testing.T) {
	// inject inventory via a restored ledger rather than a buy fill
	restored := models.NewSimulationState(1000)
	restored.BaseBalance = 2
	repo := &mockStateRepository{loadState: restored}
	market := &mockPriceSource{price: 100}
	sim, err := NewSimulatedExchange(testConfig(), market, repo)
	require.NoError(t, err)

	sell, err := sim.PlaceLimitSell("BTCUSDT", 1, 99)
	require.NoError(t, err)

	checked, err := sim.GetOrderStatus(sell.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, checked.Status)

	// no prior buy in history: proceeds credited but no trade counted
	state := sim.Snapshot()
	assert.Equal(t, 0, state.TotalTrades)
	assert.InDelta(t, 0, state.TotalProfit, 1e-9)
}

func TestGetOrderStatusUnknownOrder(t *testing.T) {
	sim, _, _ := newTestSim(t, 100)

	_, err := sim.GetOrderStatus("sim_buy_missing", "BTCUSDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestPriceFetchFailureLeavesOrderUntouched(t *testing.T) {
	sim, market, _ := newTestSim(t, 100)

	order, err := sim.PlaceLimitBuy("BTCUSDT", 1, 95)
	require.NoError(t, err)

	market.Lock()
	market.err = errors.New("exchange down")
	market.Unlock()

	checked, err := sim.GetOrderStatus(order.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, models.OrderOpen, checked.Status)
}

func TestCancelReturnsExactEscrow(t *testing.T) {
	sim, _, _ := newTestSim(t, 100)

	order, err := sim.PlaceLimitBuy("BTCUSDT", 2, 95)
	require.NoError(t, err)

	ok, err := sim.CancelOrder(order.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, ok)

	quote, _ := sim.GetBalance("USDT")
	assert.InDelta(t, 1000, quote, 1e-9)
}

func TestCancelIsNotIdempotent(t *testing.T) {
	sim, _, _ := newTestSim(t, 100)

	order, err := sim.PlaceLimitBuy("BTCUSDT", 1, 95)
	require.NoError(t, err)

	ok, err := sim.CancelOrder(order.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, ok)

	// second cancel fails without state change
	ok, err = sim.CancelOrder(order.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, ok)

	quote, _ := sim.GetBalance("USDT")
	assert.InDelta(t, 1000, quote, 1e-9)

	// canceling an unknown order surfaces the lookup miss
	_, err = sim.CancelOrder("sim_sell_unknown", "BTCUSDT")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestCancelAllOrders(t *testing.T) {
	sim, _, _ := newTestSim(t, 100)

	_, err := sim.PlaceLimitBuy("BTCUSDT", 1, 95)
	require.NoError(t, err)
	_, err = sim.PlaceLimitBuy("BTCUSDT", 1, 93)
	require.NoError(t, err)

	count, err := sim.CancelAllOrders("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	quote, _ := sim.GetBalance("USDT")
	assert.InDelta(t, 1000, quote, 1e-9)

	// nothing left to cancel
	count, err = sim.CancelAllOrders("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPortfolioValueInvariantUnderPlaceAndCancel(t *testing.T) {
	sim, _, _ := newTestSim(t, 100)
	const price = 100.0

	assert.InDelta(t, 1000, sim.PortfolioValue(price), 1e-9)

	b1, err := sim.PlaceLimitBuy("BTCUSDT", 2, 95)
	require.NoError(t, err)
	assert.InDelta(t, 1000, sim.PortfolioValue(price), 1e-9)

	b2, err := sim.PlaceLimitBuy("BTCUSDT", 1, 93)
	require.NoError(t, err)
	assert.InDelta(t, 1000, sim.PortfolioValue(price), 1e-9)

	_, err = sim.CancelOrder(b1.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 1000, sim.PortfolioValue(price), 1e-9)

	_, err = sim.CancelOrder(b2.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 1000, sim.PortfolioValue(price), 1e-9)
}

func TestGetPriceRetriesTransientFailures(t *testing.T) {
	market := &mockPriceSource{price: 123.45, failures: 2}
	repo := &mockStateRepository{}
	sim, err := NewSimulatedExchange(testConfig(), market, repo)
	require.NoError(t, err)

	price, err := sim.GetPrice("BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 123.45, price, 1e-9)
	assert.Equal(t, 3, market.calls)
}

func TestGetPricePropagatesAfterRetriesExhausted(t *testing.T) {
	market := &mockPriceSource{err: errors.New("permanent outage")}
	repo := &mockStateRepository{}
	sim, err := NewSimulatedExchange(testConfig(), market, repo)
	require.NoError(t, err)

	_, err = sim.GetPrice("BTCUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permanent outage")
	assert.Equal(t, 3, market.calls)
}

func TestLedgerRestoredFromRepository(t *testing.T) {
	restored := models.NewSimulationState(1000)
	restored.QuoteBalance = 440
	restored.BaseBalance = 0.5
	restored.TotalTrades = 7
	repo := &mockStateRepository{loadState: restored}

	sim, err := NewSimulatedExchange(testConfig(), &mockPriceSource{price: 100}, repo)
	require.NoError(t, err)

	quote, _ := sim.GetBalance("USDT")
	base, _ := sim.GetBalance("BTC")
	assert.InDelta(t, 440, quote, 1e-9)
	assert.InDelta(t, 0.5, base, 1e-9)
	assert.Equal(t, 7, sim.Snapshot().TotalTrades)
}

func TestGetBalanceUnknownCurrency(t *testing.T) {
	sim, _, _ := newTestSim(t, 100)

	balance, err := sim.GetBalance("ETH")
	require.NoError(t, err)
	assert.Zero(t, balance)
}
