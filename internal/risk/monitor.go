package risk

import (
	"fmt"

	"kash-grid-bot-go/internal/exchange"
	"kash-grid-bot-go/internal/models"

	"go.uber.org/zap"
)

// panicSellDiscount 是恐慌清仓时限价相对现价的折扣，确保立即成交。
const panicSellDiscount = 0.995

// warningBand 是下限之上触发预警的比例区间（下限的 2% 以内）。
const warningBand = 1.02

// Manager 是价格阈值风险监控。
// 状态只有两个校准数字：下限价和恐慌价，都在 Initialize 时根据参考价
// 一次性推导。之后的每次评估都是针对这两个边界的纯函数。
type Manager struct {
	cfg      *models.Config
	exchange exchange.Exchange
	logger   *zap.SugaredLogger

	initialPrice float64
	lowerLimit   float64
	panicPrice   float64
}

// NewManager 创建风险监控。使用前必须先 Initialize。
func NewManager(cfg *models.Config, ex exchange.Exchange) *Manager {
	return &Manager{cfg: cfg, exchange: ex}
}

// SetLogger 注入日志记录器，默认使用 zap.NewNop。
func (m *Manager) SetLogger(logger *zap.SugaredLogger) {
	m.logger = logger
}

func (m *Manager) log() *zap.SugaredLogger {
	if m.logger == nil {
		m.logger = zap.NewNop().Sugar()
	}
	return m.logger
}

// Initialize 根据参考价推导两个风险边界。
func (m *Manager) Initialize(referencePrice float64) {
	m.initialPrice = referencePrice
	m.lowerLimit = referencePrice * (1 - m.cfg.GridRangePercent/100)
	m.panicPrice = m.lowerLimit * (1 - m.cfg.PanicSellBuffer/100)

	m.log().Infof("风险监控已校准: 参考价 %.2f, 停止买入下限 %.2f, 恐慌清仓触发价 %.2f",
		referencePrice, m.lowerLimit, m.panicPrice)
}

// LowerLimit 返回停止买入的下限价。
func (m *Manager) LowerLimit() float64 { return m.lowerLimit }

// PanicPrice 返回恐慌清仓的触发价。
func (m *Manager) PanicPrice() float64 { return m.panicPrice }

// Assess 根据当前价格对两个边界做纯函数式的风险分级，无任何副作用。
// 边界本身计入更危险的一级（价格恰好等于恐慌价即为 panic）。
func (m *Manager) Assess(currentPrice float64) models.RiskAssessment {
	if m.lowerLimit == 0 || m.panicPrice == 0 {
		m.Initialize(currentPrice)
	}

	priceVsLower := (currentPrice - m.lowerLimit) / m.lowerLimit * 100

	var level models.RiskLevel
	var message string
	switch {
	case currentPrice <= m.panicPrice:
		level = models.RiskPanic
		message = fmt.Sprintf("PANIC: 价格 %.2f 已跌破恐慌阈值 %.2f！", currentPrice, m.panicPrice)
	case currentPrice <= m.lowerLimit:
		level = models.RiskDanger
		message = fmt.Sprintf("DANGER: 价格 %.2f 低于网格下限 %.2f，停止买入", currentPrice, m.lowerLimit)
	case currentPrice <= m.lowerLimit*warningBand:
		level = models.RiskWarning
		message = fmt.Sprintf("WARNING: 价格接近网格下限（高出 %.2f%%）", priceVsLower)
	default:
		level = models.RiskSafe
		message = fmt.Sprintf("Safe: 价格高出网格下限 %.2f%%", priceVsLower)
	}

	return models.RiskAssessment{
		Level:        level,
		CurrentPrice: currentPrice,
		LowerLimit:   m.lowerLimit,
		PanicPrice:   m.panicPrice,
		PriceVsLower: priceVsLower,
		Message:      message,
	}
}

// ShouldStopBuying 报告当前价格下是否禁止继续买入。
func (m *Manager) ShouldStopBuying(currentPrice float64) bool {
	level := m.Assess(currentPrice).Level
	return level == models.RiskDanger || level == models.RiskPanic
}

// ExecutePanicSell 执行紧急清仓：撤销全部挂单，把基础货币全部以略低于
// 现价的限价卖出。这是一次性动作，失败只上报，不自动重试。
func (m *Manager) ExecutePanicSell() error {
	m.log().Warn("==================================================")
	m.log().Warn("执行恐慌清仓 —— 紧急全部卖出")
	m.log().Warn("==================================================")

	symbol := m.cfg.Symbol

	canceled, err := m.exchange.CancelAllOrders(symbol)
	if err != nil {
		m.log().Errorf("清仓前撤单失败: %v", err)
	} else {
		m.log().Infof("已撤销 %d 笔挂单", canceled)
	}

	baseBalance, err := m.exchange.GetBalance(m.cfg.BaseCurrency)
	if err != nil {
		return fmt.Errorf("读取 %s 余额失败: %w", m.cfg.BaseCurrency, err)
	}

	if baseBalance > 0 {
		currentPrice, err := m.exchange.GetPrice(symbol)
		if err != nil {
			return fmt.Errorf("清仓时获取现价失败: %w", err)
		}

		// 限价压低 0.5% 保证立即成交，等效于市价卖出
		if _, err := m.exchange.PlaceLimitSell(symbol, baseBalance, currentPrice*panicSellDiscount); err != nil {
			return fmt.Errorf("恐慌清仓下单失败: %w", err)
		}
		m.log().Warnf("恐慌清仓单已提交: %.6f %s", baseBalance, m.cfg.BaseCurrency)
	}

	m.log().Warn("恐慌清仓完成，机器人将停止交易")
	return nil
}

// Recalibrate 按新价格重新推导两个风险边界。
// 仅用于价格大幅变动后的手动重启，绝不自动触发。
func (m *Manager) Recalibrate(newPrice float64) {
	oldLower := m.lowerLimit
	m.Initialize(newPrice)
	m.log().Infof("风险边界已重新校准: 下限 %.2f -> %.2f", oldLower, m.lowerLimit)
}
