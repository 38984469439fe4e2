package bot

import (
	"fmt"
	"sync"
	"time"

	"kash-grid-bot-go/internal/exchange"
	"kash-grid-bot-go/internal/logger"
	"kash-grid-bot-go/internal/models"
	"kash-grid-bot-go/internal/risk"

	"go.uber.org/zap"
)

// statusEveryNTicks 控制周期性状态日志的频率。
const statusEveryNTicks = 60

// simStats 是模拟撮合器额外暴露的只读统计口。
// 实盘适配器不实现它，面板快照会退化为只含网格信息。
type simStats interface {
	Snapshot() *models.SimulationState
	PortfolioValue(currentPrice float64) float64
}

// GridTradingBot 是网格交易机器人的核心结构。
// 它持有网格档位账本，每个 tick 依次：取价 → 风险评估 → 轮询挂单 →
// 处理成交并挂反向单。所有对外操作只经过 Exchange 接口。
type GridTradingBot struct {
	config         *models.Config
	exchange       exchange.Exchange
	riskManager    *risk.Manager
	state          models.GridState
	currentPrice   float64
	isRunning      bool
	panicTriggered bool
	mutex          sync.RWMutex
	stopChannel    chan struct{}
	logger         *zap.SugaredLogger
}

// NewGridTradingBot 创建一个新的网格交易机器人实例。
func NewGridTradingBot(cfg *models.Config, ex exchange.Exchange, rm *risk.Manager) *GridTradingBot {
	return &GridTradingBot{
		config:      cfg,
		exchange:    ex,
		riskManager: rm,
		stopChannel: make(chan struct{}),
		logger:      logger.S().Named("grid"),
	}
}

// Initialize 以当前市场价为参考初始化网格并挂出初始订单。
func (b *GridTradingBot) Initialize() error {
	currentPrice, err := b.exchange.GetPrice(b.config.Symbol)
	if err != nil {
		return fmt.Errorf("获取当前价格失败: %w", err)
	}

	b.logger.Infof("当前 %s 价格: %.2f", b.config.Symbol, currentPrice)

	b.riskManager.Initialize(currentPrice)

	b.mutex.Lock()
	b.currentPrice = currentPrice
	b.setupGrid(currentPrice)
	b.mutex.Unlock()

	b.placeInitialOrders()

	b.mutex.Lock()
	b.isRunning = true
	b.mutex.Unlock()
	return nil
}

// setupGrid 计算网格边界并生成候选档位。调用方必须持有锁。
// 严格低于参考价的档位是买入档，严格高于的是卖出档；
// 恰好等于参考价的档位被丢弃（中点不挂单）。
func (b *GridTradingBot) setupGrid(currentPrice float64) {
	b.state = models.GridState{
		InitialPrice: currentPrice,
		UpperLimit:   currentPrice * (1 + b.config.GridRangePercent/100),
		LowerLimit:   currentPrice * (1 - b.config.GridRangePercent/100),
	}

	gridStep := b.state.GridStep(b.config.GridCount)
	orderValue := b.config.OrderSize()

	for i := 0; i <= b.config.GridCount; i++ {
		levelPrice := b.state.LowerLimit + float64(i)*gridStep

		var side models.Side
		switch {
		case levelPrice < currentPrice:
			side = models.Buy
		case levelPrice > currentPrice:
			side = models.Sell
		default:
			continue
		}

		b.state.Levels = append(b.state.Levels, &models.GridLevel{
			Price:  levelPrice,
			Side:   side,
			Status: models.LevelPending,
			Amount: orderValue / levelPrice,
		})
	}

	b.logger.Infof("网格已生成: 区间 %.2f - %.2f, 间距 %.2f, 买入档 %d, 卖出档 %d, 单格价值 %.2f",
		b.state.LowerLimit, b.state.UpperLimit, gridStep,
		len(b.state.BuyLevels()), len(b.state.SellLevels()), orderValue)
}

// placeInitialOrders 挂出初始网格订单。买入档立即按计算数量挂出；
// 卖出档需要已有基础货币库存：没有库存时保持 pending（常见情形，
// 网格从纯计价货币起步，靠成交积累库存），有库存时均分到各卖出档。
// 单个档位挂单失败只记录日志并跳过，不回滚已挂出的档位。
func (b *GridTradingBot) placeInitialOrders() {
	symbol := b.config.Symbol

	b.mutex.Lock()
	defer b.mutex.Unlock()

	for _, level := range b.state.BuyLevels() {
		if level.Status != models.LevelPending {
			continue
		}
		order, err := b.exchange.PlaceLimitBuy(symbol, level.Amount, level.Price)
		if err != nil {
			b.logger.Warnf("买入档 %.2f 挂单失败，跳过: %v", level.Price, err)
			continue
		}
		level.OrderID = order.ID
		level.Status = models.LevelActive
	}

	baseBalance, err := b.exchange.GetBalance(b.config.BaseCurrency)
	if err != nil {
		b.logger.Warnf("读取 %s 余额失败，卖出档保持待挂状态: %v", b.config.BaseCurrency, err)
	} else if baseBalance > 0 {
		sellLevels := b.state.SellLevels()
		if len(sellLevels) > 0 {
			amountPerLevel := baseBalance / float64(len(sellLevels))
			for _, level := range sellLevels {
				if level.Status != models.LevelPending {
					continue
				}
				level.Amount = amountPerLevel
				order, err := b.exchange.PlaceLimitSell(symbol, level.Amount, level.Price)
				if err != nil {
					b.logger.Warnf("卖出档 %.2f 挂单失败，跳过: %v", level.Price, err)
					continue
				}
				level.OrderID = order.ID
				level.Status = models.LevelActive
			}
		}
	}

	b.logger.Infof("初始挂单完成，共 %d 笔活动订单", len(b.state.ActiveLevels()))
}

// CheckAndUpdate 是主循环的一次迭代：取价、评估风险、轮询挂单并处理
// 成交。返回 false 表示交易应当停止（恐慌清仓已触发）。
// 单次取价失败和单笔订单轮询失败都不是致命的，下个 tick 重试。
func (b *GridTradingBot) CheckAndUpdate() bool {
	b.mutex.RLock()
	running, panicked := b.isRunning, b.panicTriggered
	b.mutex.RUnlock()
	if !running || panicked {
		return false
	}

	symbol := b.config.Symbol

	currentPrice, err := b.exchange.GetPrice(symbol)
	if err != nil {
		b.logger.Errorf("获取价格失败，下个周期重试: %v", err)
		return true
	}

	b.mutex.Lock()
	b.currentPrice = currentPrice
	b.mutex.Unlock()

	assessment := b.riskManager.Assess(currentPrice)
	switch assessment.Level {
	case models.RiskPanic:
		b.logger.Warn(assessment.Message)
		b.mutex.Lock()
		b.panicTriggered = true
		b.mutex.Unlock()
		if err := b.riskManager.ExecutePanicSell(); err != nil {
			// 清仓是一次性动作：失败后停止交易，等待人工介入，不自动重试
			b.logger.Errorf("恐慌清仓失败，需要人工处理: %v", err)
		}
		return false
	case models.RiskDanger, models.RiskWarning:
		b.logger.Warn(assessment.Message)
	}

	b.mutex.RLock()
	activeLevels := b.state.ActiveLevels()
	b.mutex.RUnlock()

	for _, level := range activeLevels {
		if level.OrderID == "" {
			continue
		}

		order, err := b.exchange.GetOrderStatus(level.OrderID, symbol)
		if err != nil {
			b.logger.Errorf("查询订单 %s 状态失败: %v", level.OrderID, err)
			continue
		}

		if order.IsFilled() {
			b.handleFilledOrder(level, order, currentPrice)
		}
	}

	return true
}

// handleFilledOrder 处理一笔成交并挂反向单。
// 买单成交 → 在上一格挂同量卖单（收割利润的一腿）；
// 卖单成交 → 在下一格挂新买单，但要求价格不低于下限且风险允许。
// 反向价越界或风险禁止时档位直接退役，网格向边缘收缩是预期行为。
func (b *GridTradingBot) handleFilledOrder(level *models.GridLevel, order *models.Order, currentPrice float64) {
	symbol := b.config.Symbol

	b.mutex.Lock()
	defer b.mutex.Unlock()

	level.Status = models.LevelFilled
	gridStep := b.state.GridStep(b.config.GridCount)

	switch order.Side {
	case models.Buy:
		sellPrice := level.Price + gridStep
		if sellPrice > b.state.UpperLimit {
			return
		}

		newOrder, err := b.exchange.PlaceLimitSell(symbol, order.Amount, sellPrice)
		if err != nil {
			b.logger.Errorf("反向卖单挂单失败: %v", err)
			return
		}
		b.state.Levels = append(b.state.Levels, &models.GridLevel{
			Price:   sellPrice,
			Side:    models.Sell,
			Status:  models.LevelActive,
			OrderID: newOrder.ID,
			Amount:  order.Amount,
		})
		b.logger.Infof("买单成交 → 已在 %.2f 挂出卖单", sellPrice)

	case models.Sell:
		buyPrice := level.Price - gridStep
		if buyPrice < b.state.LowerLimit {
			return
		}
		if b.riskManager.ShouldStopBuying(currentPrice) {
			b.logger.Warnf("跳过 %.2f 的补买单 —— 风险过高", buyPrice)
			return
		}

		amount := b.config.OrderSize() / buyPrice
		newOrder, err := b.exchange.PlaceLimitBuy(symbol, amount, buyPrice)
		if err != nil {
			b.logger.Errorf("反向买单挂单失败: %v", err)
			return
		}
		b.state.Levels = append(b.state.Levels, &models.GridLevel{
			Price:   buyPrice,
			Side:    models.Buy,
			Status:  models.LevelActive,
			OrderID: newOrder.ID,
			Amount:  amount,
		})
		b.logger.Infof("卖单成交 → 已在 %.2f 挂出买单", buyPrice)
	}
}

// Run 是外部节奏驱动的主循环，按配置的间隔调用 CheckAndUpdate，
// 直到策略停止或 Stop 被调用。
func (b *GridTradingBot) Run() {
	interval := time.Duration(b.config.CheckIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.logger.Infof("机器人已启动，每 %ds 检查一次", b.config.CheckIntervalSeconds)

	iteration := 0
	for {
		select {
		case <-b.stopChannel:
			return
		case <-ticker.C:
			if !b.CheckAndUpdate() {
				b.logger.Warn("策略已停止（恐慌清仓触发或机器人已关闭）")
				return
			}
			iteration++
			if iteration%statusEveryNTicks == 0 {
				b.printStatus()
			}
		}
	}
}

// Stop 撤销全部挂单并将机器人置为停止状态；可以安全地重复调用。
func (b *GridTradingBot) Stop() {
	b.mutex.Lock()
	if !b.isRunning {
		b.mutex.Unlock()
		return
	}
	b.isRunning = false
	close(b.stopChannel)
	b.mutex.Unlock()

	canceled, err := b.exchange.CancelAllOrders(b.config.Symbol)
	if err != nil {
		b.logger.Errorf("停止时撤单失败: %v", err)
	} else {
		b.logger.Infof("策略已停止，撤销了 %d 笔挂单", canceled)
	}
}

// IsRunning 报告机器人是否仍在交易。
func (b *GridTradingBot) IsRunning() bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.isRunning
}

// PanicTriggered 报告恐慌清仓是否已被触发。
func (b *GridTradingBot) PanicTriggered() bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.panicTriggered
}

// GridSnapshot 返回网格账本的浅视图，仅供测试与状态展示。
func (b *GridTradingBot) GridSnapshot() models.GridState {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.state
}

// StatusSnapshot 计算提供给监控面板的只读快照。
// 读到的可能是一个 tick 中间的状态，这是允许的（最终一致）。
func (b *GridTradingBot) StatusSnapshot() models.StatusSnapshot {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	snap := models.StatusSnapshot{
		TradingPair:    b.config.Symbol,
		BaseCurrency:   b.config.BaseCurrency,
		TradingMode:    b.config.TradingMode,
		IsRunning:      b.isRunning,
		PanicTriggered: b.panicTriggered,
		CurrentPrice:   b.currentPrice,
		LowerLimit:     b.state.LowerLimit,
		UpperLimit:     b.state.UpperLimit,
		PortfolioValue: b.config.Investment,
	}

	for _, level := range b.state.ActiveLevels() {
		snap.Orders = append(snap.Orders, models.ActiveOrderView{
			ID:     level.OrderID,
			Side:   level.Side,
			Price:  level.Price,
			Amount: level.Amount,
			Status: string(level.Status),
		})
	}

	if stats, ok := b.exchange.(simStats); ok {
		ledger := stats.Snapshot()
		snap.PortfolioValue = stats.PortfolioValue(b.currentPrice)
		snap.RealizedProfit = ledger.TotalProfit
		snap.TotalTrades = ledger.TotalTrades
		snap.WinRate = ledger.WinRate()
		snap.QuoteBalance = ledger.QuoteBalance
		snap.BaseBalance = ledger.BaseBalance
		snap.TradeHistory = ledger.TradeHistory
	}

	return snap
}

// printStatus 打印周期性状态摘要。
func (b *GridTradingBot) printStatus() {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	active := b.state.ActiveLevels()
	buys, sells := 0, 0
	for _, l := range active {
		if l.Side == models.Buy {
			buys++
		} else {
			sells++
		}
	}
	b.logger.Infof("状态: 价格 %.2f | 买单 %d | 卖单 %d | 档位总数 %d",
		b.currentPrice, buys, sells, len(b.state.Levels))
}
