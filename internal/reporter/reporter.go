package reporter

import (
	"fmt"
	"os"
	"time"

	"kash-grid-bot-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Summary 汇总一次模拟会话的最终表现。
type Summary struct {
	StartTime         time.Time
	InitialInvestment float64
	PortfolioValue    float64
	UnrealizedPNL     float64
	RealizedProfit    float64
	ROIPercent        float64
	TotalTrades       int
	WinningTrades     int
	WinRate           float64
	QuoteBalance      float64
	BaseBalance       float64
}

// BuildSummary 从账本快照和最新价格计算会话汇总。
func BuildSummary(state *models.SimulationState, currentPrice, portfolioValue float64) Summary {
	return Summary{
		StartTime:         state.StartTime,
		InitialInvestment: state.InitialInvestment,
		PortfolioValue:    portfolioValue,
		UnrealizedPNL:     portfolioValue - state.InitialInvestment,
		RealizedProfit:    state.TotalProfit,
		ROIPercent:        state.ROIPercent(),
		TotalTrades:       state.TotalTrades,
		WinningTrades:     state.WinningTrades,
		WinRate:           state.WinRate(),
		QuoteBalance:      state.QuoteBalance,
		BaseBalance:       state.BaseBalance,
	}
}

// PrintSummary 在进程退出前把会话汇总渲染成表格输出。
func PrintSummary(s Summary, quoteCurrency, baseCurrency string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("SIMULATION SUMMARY")

	t.AppendRows([]table.Row{
		{"Started", s.StartTime.Format("2006-01-02 15:04:05")},
		{"Initial Investment", fmt.Sprintf("%.2f %s", s.InitialInvestment, quoteCurrency)},
		{"Current Portfolio", fmt.Sprintf("%.2f %s", s.PortfolioValue, quoteCurrency)},
		{"Unrealized P&L", fmt.Sprintf("%+.2f %s", s.UnrealizedPNL, quoteCurrency)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Realized Profit", fmt.Sprintf("%+.2f %s (%+.2f%%)", s.RealizedProfit, quoteCurrency, s.ROIPercent)},
		{"Total Trades", s.TotalTrades},
		{"Winning Trades", s.WinningTrades},
		{"Win Rate", fmt.Sprintf("%.1f%%", s.WinRate)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Quote Balance", fmt.Sprintf("%.2f %s", s.QuoteBalance, quoteCurrency)},
		{"Base Balance", fmt.Sprintf("%.6f %s", s.BaseBalance, baseCurrency)},
	})

	t.Render()
}
