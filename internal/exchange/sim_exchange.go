package exchange

import (
	"fmt"
	"sync"
	"time"

	"kash-grid-bot-go/internal/logger"
	"kash-grid-bot-go/internal/models"
	"kash-grid-bot-go/internal/persistence"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

// SimulatedExchange 实现了 Exchange 接口，基于真实行情做纸面交易。
//
// 它不维护订单簿：一笔挂单是否成交，只取决于观测到的最新成交价是否
// 穿过了挂单价（买单在价格跌到或跌破限价时成交，卖单反之）。没有部分
// 成交，也不考虑成交量。这是刻意的简化，网格策略只需要成交/未成交
// 两种结果。
//
// 所有改变余额的操作都在同一把锁内完成状态变更和持久化，调用返回时
// 账本已落盘。
type SimulatedExchange struct {
	cfg    *models.Config
	market PriceSource
	repo   persistence.StateRepository
	state  *models.SimulationState
	mu     sync.Mutex
	logger *zap.SugaredLogger
}

// NewSimulatedExchange 创建模拟交易所。如果仓库中有历史账本则恢复，
// 否则以配置的投资额建立全新账本。
func NewSimulatedExchange(cfg *models.Config, market PriceSource, repo persistence.StateRepository) (*SimulatedExchange, error) {
	state, err := repo.LoadState()
	if err != nil {
		return nil, fmt.Errorf("加载模拟账本失败: %w", err)
	}

	log := logger.S().Named("sim")
	if state == nil {
		state = models.NewSimulationState(cfg.Investment)
		log.Infof("创建全新模拟账本，起始资金: %.2f %s", cfg.Investment, cfg.QuoteCurrency)
	} else {
		log.Infof("从数据库恢复模拟账本，余额: %.2f %s / %.8f %s",
			state.QuoteBalance, cfg.QuoteCurrency, state.BaseBalance, cfg.BaseCurrency)
	}

	log.Info("==================================================")
	log.Info("模拟交易模式 —— 不会有任何真实订单被提交")
	log.Info("==================================================")

	return &SimulatedExchange{
		cfg:    cfg,
		market: market,
		repo:   repo,
		state:  state,
		logger: log,
	}, nil
}

// GetPrice 获取最新行情，带有界重试。
// 行情源是整个模拟器里唯一真正不稳定的外部依赖，这里用指数退避包一层；
// 重试耗尽后把最后一次错误原样向上传递。
func (e *SimulatedExchange) GetPrice(symbol string) (float64, error) {
	attempts := e.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(e.cfg.RetryInitialDelayMs) * time.Millisecond

	var lastErr error
	for i := 0; i < attempts; i++ {
		price, err := e.market.GetPrice(symbol)
		if err == nil {
			return price, nil
		}
		lastErr = err
		e.logger.Debugf("获取行情失败 (第%d/%d次): %v", i+1, attempts, err)
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return 0, fmt.Errorf("获取 %s 行情重试耗尽: %w", symbol, lastErr)
}

// PlaceLimitBuy 模拟挂限价买单。下单成本立即从计价货币余额中托管扣除。
func (e *SimulatedExchange) PlaceLimitBuy(symbol string, amount, price float64) (*models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cost := amount * price
	if cost > e.state.QuoteBalance {
		return nil, fmt.Errorf("%w: 买入需要 %.2f，可用 %.2f",
			models.ErrInsufficientBalance, cost, e.state.QuoteBalance)
	}

	order := models.Order{
		ID:        newOrderID(models.Buy),
		Symbol:    symbol,
		Side:      models.Buy,
		Price:     price,
		Amount:    amount,
		Status:    models.OrderOpen,
		Timestamp: time.Now(),
	}

	e.state.Orders[order.ID] = &models.OrderRecord{Order: order, ReservedQuote: cost}
	e.state.QuoteBalance -= cost

	if err := e.repo.SaveState(e.state); err != nil {
		return nil, fmt.Errorf("持久化账本失败: %w", err)
	}

	e.logger.Infof("[SIM] 买单已挂: %.6f @ %.2f (托管 %.2f)", amount, price, cost)
	orderCopy := order
	return &orderCopy, nil
}

// PlaceLimitSell 模拟挂限价卖单。卖出数量立即从基础货币余额中托管扣除。
func (e *SimulatedExchange) PlaceLimitSell(symbol string, amount, price float64) (*models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount > e.state.BaseBalance {
		return nil, fmt.Errorf("%w: 卖出需要 %.8f %s，可用 %.8f",
			models.ErrInsufficientBalance, amount, e.cfg.BaseCurrency, e.state.BaseBalance)
	}

	order := models.Order{
		ID:        newOrderID(models.Sell),
		Symbol:    symbol,
		Side:      models.Sell,
		Price:     price,
		Amount:    amount,
		Status:    models.OrderOpen,
		Timestamp: time.Now(),
	}

	e.state.Orders[order.ID] = &models.OrderRecord{Order: order, ReservedBase: amount}
	e.state.BaseBalance -= amount

	if err := e.repo.SaveState(e.state); err != nil {
		return nil, fmt.Errorf("持久化账本失败: %w", err)
	}

	e.logger.Infof("[SIM] 卖单已挂: %.6f @ %.2f", amount, price)
	orderCopy := order
	return &orderCopy, nil
}

// GetOrderStatus 检查一笔挂单按当前行情是否应已成交。
// 买单在行情价跌到或跌破挂单价时成交；卖单在行情价升到或升破挂单价时
// 成交。行情获取失败不改变订单状态，原样返回当前记录。
func (e *SimulatedExchange) GetOrderStatus(orderID, symbol string) (*models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.state.Orders[orderID]
	if !ok {
		return nil, models.OrderNotFoundError(orderID)
	}

	if rec.Order.Status != models.OrderOpen {
		orderCopy := rec.Order
		return &orderCopy, nil
	}

	currentPrice, err := e.market.GetPrice(symbol)
	if err != nil {
		e.logger.Debugf("检查订单 %s 时行情获取失败，跳过本次检查: %v", orderID, err)
		orderCopy := rec.Order
		return &orderCopy, nil
	}

	switch {
	case rec.Order.Side == models.Buy && currentPrice <= rec.Order.Price:
		if err := e.fillBuy(rec); err != nil {
			return nil, err
		}
	case rec.Order.Side == models.Sell && currentPrice >= rec.Order.Price:
		if err := e.fillSell(rec); err != nil {
			return nil, err
		}
	}

	orderCopy := rec.Order
	return &orderCopy, nil
}

// fillBuy 执行买单成交：基础货币入账，记录成交历史。调用方必须持有锁。
func (e *SimulatedExchange) fillBuy(rec *models.OrderRecord) error {
	e.state.BaseBalance += rec.Order.Amount
	rec.Order.Status = models.OrderFilled
	rec.Order.Filled = rec.Order.Amount

	e.state.TradeHistory = append(e.state.TradeHistory, models.TradeRecord{
		Type:      models.Buy,
		Price:     rec.Order.Price,
		Amount:    rec.Order.Amount,
		Timestamp: time.Now(),
	})

	if err := e.repo.SaveState(e.state); err != nil {
		return fmt.Errorf("持久化账本失败: %w", err)
	}

	e.logger.Infof("[SIM] 买单成交: %.6f @ %.2f", rec.Order.Amount, rec.Order.Price)
	return nil
}

// fillSell 执行卖单成交：计价货币入账，利润按成交历史中最近一笔买入
// 计算（近似配对，不做严格的逐笔批次核算）。调用方必须持有锁。
func (e *SimulatedExchange) fillSell(rec *models.OrderRecord) error {
	proceeds := rec.Order.Amount * rec.Order.Price
	e.state.QuoteBalance += proceeds

	var lastBuy *models.TradeRecord
	for i := len(e.state.TradeHistory) - 1; i >= 0; i-- {
		if e.state.TradeHistory[i].Type == models.Buy {
			lastBuy = &e.state.TradeHistory[i]
			break
		}
	}

	var profit float64
	if lastBuy != nil {
		cost := rec.Order.Amount * lastBuy.Price
		profit = proceeds - cost
		e.state.TotalProfit += profit
		e.state.TotalTrades++
		if profit > 0 {
			e.state.WinningTrades++
		}
	}

	rec.Order.Status = models.OrderFilled
	rec.Order.Filled = rec.Order.Amount

	e.state.TradeHistory = append(e.state.TradeHistory, models.TradeRecord{
		Type:      models.Sell,
		Price:     rec.Order.Price,
		Amount:    rec.Order.Amount,
		Profit:    profit,
		Timestamp: time.Now(),
	})

	if err := e.repo.SaveState(e.state); err != nil {
		return fmt.Errorf("持久化账本失败: %w", err)
	}

	e.logger.Infof("[SIM] 卖单成交: %.6f @ %.2f (利润: %.2f)", rec.Order.Amount, rec.Order.Price, profit)
	return nil
}

// CancelOrder 撤销一笔挂单并精确返还托管资金。
// 对已成交/已撤销的订单返回 false 且不改变任何状态。
func (e *SimulatedExchange) CancelOrder(orderID, symbol string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.state.Orders[orderID]
	if !ok {
		return false, models.OrderNotFoundError(orderID)
	}

	if !e.cancelLocked(rec) {
		return false, nil
	}

	if err := e.repo.SaveState(e.state); err != nil {
		return false, fmt.Errorf("持久化账本失败: %w", err)
	}

	e.logger.Infof("[SIM] 订单 %s 已撤销", orderID)
	return true, nil
}

// cancelLocked 撤销单笔挂单并返还托管，不负责持久化。调用方必须持有锁。
func (e *SimulatedExchange) cancelLocked(rec *models.OrderRecord) bool {
	if rec.Order.Status != models.OrderOpen {
		return false
	}

	if rec.Order.Side == models.Buy {
		e.state.QuoteBalance += rec.ReservedQuote
	} else {
		e.state.BaseBalance += rec.ReservedBase
	}
	rec.Order.Status = models.OrderCanceled
	return true
}

// CancelAllOrders 撤销所有挂单，返回实际撤销的数量。
func (e *SimulatedExchange) CancelAllOrders(symbol string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	canceled := 0
	for _, rec := range e.state.Orders {
		if e.cancelLocked(rec) {
			canceled++
		}
	}

	if canceled > 0 {
		if err := e.repo.SaveState(e.state); err != nil {
			return canceled, fmt.Errorf("持久化账本失败: %w", err)
		}
	}

	e.logger.Infof("[SIM] 批量撤销了 %d 笔挂单", canceled)
	return canceled, nil
}

// GetBalance 返回模拟账本中对应货币的可用余额（不含托管部分）。
func (e *SimulatedExchange) GetBalance(currency string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch currency {
	case e.cfg.QuoteCurrency:
		return e.state.QuoteBalance, nil
	case e.cfg.BaseCurrency:
		return e.state.BaseBalance, nil
	}
	return 0, nil
}

// PortfolioValue 按给定价格计算组合总价值（计价货币），
// 包含可用余额和所有挂单中托管的资金。
func (e *SimulatedExchange) PortfolioValue(currentPrice float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	var reservedQuote, reservedBase float64
	for _, rec := range e.state.Orders {
		if rec.Order.Status == models.OrderOpen {
			reservedQuote += rec.ReservedQuote
			reservedBase += rec.ReservedBase
		}
	}

	return e.state.QuoteBalance + reservedQuote +
		(e.state.BaseBalance+reservedBase)*currentPrice
}

// Snapshot 返回账本的深拷贝，供面板和报告只读使用。
func (e *SimulatedExchange) Snapshot() *models.SimulationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Copy()
}

// newOrderID 生成形如 sim_buy_4mPq... 的紧凑订单ID。
func newOrderID(side models.Side) string {
	u := uuid.New()
	prefix := "sim_buy_"
	if side == models.Sell {
		prefix = "sim_sell_"
	}
	return prefix + base62.EncodeToString(u[:8])
}
