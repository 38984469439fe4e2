package reporter

import (
	"testing"

	"kash-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestBuildSummary(t *testing.T) {
	state := models.NewSimulationState(1000)
	state.QuoteBalance = 520
	state.BaseBalance = 0.005
	state.TotalProfit = 30
	state.TotalTrades = 10
	state.WinningTrades = 8

	s := BuildSummary(state, 96000, 1050)

	assert.Equal(t, state.StartTime, s.StartTime)
	assert.InDelta(t, 1000, s.InitialInvestment, 1e-9)
	assert.InDelta(t, 1050, s.PortfolioValue, 1e-9)
	assert.InDelta(t, 50, s.UnrealizedPNL, 1e-9)
	assert.InDelta(t, 30, s.RealizedProfit, 1e-9)
	assert.InDelta(t, 3, s.ROIPercent, 1e-9)
	assert.Equal(t, 10, s.TotalTrades)
	assert.Equal(t, 8, s.WinningTrades)
	assert.InDelta(t, 80, s.WinRate, 1e-9)
	assert.InDelta(t, 520, s.QuoteBalance, 1e-9)
	assert.InDelta(t, 0.005, s.BaseBalance, 1e-9)
}

func TestBuildSummaryFreshLedger(t *testing.T) {
	state := models.NewSimulationState(1000)

	s := BuildSummary(state, 96000, 1000)

	assert.Zero(t, s.UnrealizedPNL)
	assert.Zero(t, s.RealizedProfit)
	assert.Zero(t, s.TotalTrades)
	assert.Zero(t, s.WinRate)
}
