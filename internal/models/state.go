package models

import "time"

// TradeHistoryLimit 是持久化时保留的最近成交记录条数。
const TradeHistoryLimit = 100

// OrderRecord 将一笔订单与其托管的资金绑定在一起。
// 挂单时从余额中扣除的部分记录在这里，成交或撤单时按此精确返还/结算。
type OrderRecord struct {
	Order         Order   `json:"order"`
	ReservedQuote float64 `json:"reserved_quote,omitempty"` // 买单托管的计价货币
	ReservedBase  float64 `json:"reserved_base,omitempty"`  // 卖单托管的基础货币
}

// TradeRecord 记录一笔模拟成交
type TradeRecord struct {
	Type      Side      `json:"type"`
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	Profit    float64   `json:"profit,omitempty"` // 仅卖出成交记录利润
	Timestamp time.Time `json:"timestamp"`
}

// SimulationState 是模拟撮合器的持久化账本。
// 每次改变余额的操作都必须在返回前原子地持久化整个结构。
type SimulationState struct {
	InitialInvestment float64                 `json:"initial_investment"`
	QuoteBalance      float64                 `json:"quote_balance"`
	BaseBalance       float64                 `json:"base_balance"`
	TotalTrades       int                     `json:"total_trades"`
	WinningTrades     int                     `json:"winning_trades"`
	TotalProfit       float64                 `json:"total_profit"`
	StartTime         time.Time               `json:"start_time"`
	Orders            map[string]*OrderRecord `json:"orders"`
	TradeHistory      []TradeRecord           `json:"trade_history"`
}

// NewSimulationState 创建一个以给定投资额为起始资金的全新账本。
func NewSimulationState(investment float64) *SimulationState {
	return &SimulationState{
		InitialInvestment: investment,
		QuoteBalance:      investment,
		StartTime:         time.Now(),
		Orders:            make(map[string]*OrderRecord),
		TradeHistory:      make([]TradeRecord, 0),
	}
}

// WinRate 返回盈利交易占比（百分数）。
func (s *SimulationState) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(s.TotalTrades) * 100
}

// ROIPercent 返回已实现利润相对初始投资的百分比。
func (s *SimulationState) ROIPercent() float64 {
	if s.InitialInvestment == 0 {
		return 0
	}
	return s.TotalProfit / s.InitialInvestment * 100
}

// Copy 返回账本的深拷贝，供只读消费方（面板、报告）安全使用。
func (s *SimulationState) Copy() *SimulationState {
	cp := *s
	cp.Orders = make(map[string]*OrderRecord, len(s.Orders))
	for id, rec := range s.Orders {
		recCopy := *rec
		cp.Orders[id] = &recCopy
	}
	cp.TradeHistory = make([]TradeRecord, len(s.TradeHistory))
	copy(cp.TradeHistory, s.TradeHistory)
	return &cp
}

// ActiveOrderView 是面板展示的单个挂单视图
type ActiveOrderView struct {
	ID     string  `json:"id"`
	Side   Side    `json:"side"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Status string  `json:"status"`
}

// StatusSnapshot 是提供给监控面板的只读状态快照。
// 它由 GridState 和 SimulationState 计算得出，读取时允许看到一个
// tick 中间的状态（最终一致），但绝不允许反向修改。
type StatusSnapshot struct {
	TradingPair    string            `json:"trading_pair"`
	BaseCurrency   string            `json:"base_currency"`
	TradingMode    string            `json:"trading_mode"`
	IsRunning      bool              `json:"is_running"`
	PanicTriggered bool              `json:"panic_triggered"`
	CurrentPrice   float64           `json:"current_price"`
	LowerLimit     float64           `json:"lower_limit"`
	UpperLimit     float64           `json:"upper_limit"`
	PortfolioValue float64           `json:"portfolio_value"`
	RealizedProfit float64           `json:"realized_profit"`
	TotalTrades    int               `json:"total_trades"`
	WinRate        float64           `json:"win_rate"`
	QuoteBalance   float64           `json:"quote_balance"`
	BaseBalance    float64           `json:"base_balance"`
	Orders         []ActiveOrderView `json:"orders"`
	TradeHistory   []TradeRecord     `json:"trade_history"`
}
