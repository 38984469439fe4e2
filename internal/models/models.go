package models

import (
	"errors"
	"fmt"
	"time"
)

// Config 定义了机器人的所有配置参数
type Config struct {
	Symbol        string `json:"symbol"`         // 交易对，如 "BTCUSDT"
	BaseCurrency  string `json:"base_currency"`  // 基础货币，如 "BTC"
	QuoteCurrency string `json:"quote_currency"` // 计价货币，如 "USDT"

	Investment       float64 `json:"investment"`         // 初始投资额（计价货币）
	GridCount        int     `json:"grid_count"`         // 网格数量
	GridRangePercent float64 `json:"grid_range_percent"` // 网格区间比例（±%）
	PanicSellBuffer  float64 `json:"panic_sell_buffer"`  // 恐慌清仓缓冲比例（%），价格跌破下限该幅度时触发

	TradingMode          string `json:"trading_mode"`           // "simulation" 或 "live"
	CheckIntervalSeconds int    `json:"check_interval_seconds"` // 主循环检查间隔（秒）
	DBPath               string `json:"db_path"`                // 模拟账本数据库路径

	RetryAttempts       int `json:"retry_attempts"`         // 行情获取失败时的重试次数
	RetryInitialDelayMs int `json:"retry_initial_delay_ms"` // 重试前的初始延迟毫秒数

	IsTestnet     bool   `json:"is_testnet"` // 是否使用测试网
	LiveAPIURL    string `json:"live_api_url"`
	LiveWSURL     string `json:"live_ws_url"`
	TestnetAPIURL string `json:"testnet_api_url"`
	TestnetWSURL  string `json:"testnet_ws_url"`

	Dashboard DashboardConfig `json:"dashboard"`
	LogConfig LogConfig       `json:"log"`
}

// DashboardConfig 定义了监控面板的配置
type DashboardConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// OrderSize 返回单个网格订单的价值（计价货币）。
func (c *Config) OrderSize() float64 {
	if c.GridCount == 0 {
		return 0
	}
	return c.Investment / float64(c.GridCount)
}

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderStatus 定义了订单的生命周期状态
type OrderStatus string

const (
	OrderOpen     OrderStatus = "open"
	OrderFilled   OrderStatus = "filled"
	OrderCanceled OrderStatus = "canceled"
	OrderPartial  OrderStatus = "partial"
)

// Order 定义了订单信息
type Order struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	Price     float64     `json:"price"`
	Amount    float64     `json:"amount"`
	Status    OrderStatus `json:"status"`
	Filled    float64     `json:"filled"`
	Timestamp time.Time   `json:"timestamp"`
}

// IsFilled 报告订单是否已完全成交。
func (o *Order) IsFilled() bool { return o.Status == OrderFilled }

// IsOpen 报告订单是否仍在挂单中。
func (o *Order) IsOpen() bool { return o.Status == OrderOpen }

// LevelStatus 定义了网格档位的状态
type LevelStatus string

const (
	LevelPending LevelStatus = "pending" // 尚未挂单
	LevelActive  LevelStatus = "active"  // 已挂单，等待成交
	LevelFilled  LevelStatus = "filled"  // 已成交，档位不再复用
)

// GridLevel 代表网格中的一个价格档位。
// 不变量：OrderID 非空当且仅当 Status 为 active 或 filled。
type GridLevel struct {
	Price   float64     `json:"price"`
	Side    Side        `json:"side"`
	Status  LevelStatus `json:"status"`
	OrderID string      `json:"order_id,omitempty"`
	Amount  float64     `json:"amount"`
}

// GridState 跟踪本次会话内所有网格档位的状态。
// Levels 只追加不删除；已成交档位的替代单以新档位对象的形式追加。
type GridState struct {
	Levels       []*GridLevel `json:"levels"`
	InitialPrice float64      `json:"initial_price"`
	UpperLimit   float64      `json:"upper_limit"`
	LowerLimit   float64      `json:"lower_limit"`
}

// ActiveLevels 返回所有处于挂单状态的档位。
func (s *GridState) ActiveLevels() []*GridLevel {
	var levels []*GridLevel
	for _, l := range s.Levels {
		if l.Status == LevelActive {
			levels = append(levels, l)
		}
	}
	return levels
}

// BuyLevels 返回所有买入方向的档位。
func (s *GridState) BuyLevels() []*GridLevel {
	var levels []*GridLevel
	for _, l := range s.Levels {
		if l.Side == Buy {
			levels = append(levels, l)
		}
	}
	return levels
}

// SellLevels 返回所有卖出方向的档位。
func (s *GridState) SellLevels() []*GridLevel {
	var levels []*GridLevel
	for _, l := range s.Levels {
		if l.Side == Sell {
			levels = append(levels, l)
		}
	}
	return levels
}

// GridStep 返回相邻档位之间的价格间距。
func (s *GridState) GridStep(gridCount int) float64 {
	if gridCount == 0 {
		return 0
	}
	return (s.UpperLimit - s.LowerLimit) / float64(gridCount)
}

// RiskLevel 定义了风险评估等级
type RiskLevel string

const (
	RiskSafe    RiskLevel = "safe"
	RiskWarning RiskLevel = "warning"
	RiskDanger  RiskLevel = "danger"
	RiskPanic   RiskLevel = "panic"
)

// RiskAssessment 是一次风险评估的结果。
// 每次评估都根据当前价格重新推导，从不持久化。
type RiskAssessment struct {
	Level        RiskLevel `json:"level"`
	CurrentPrice float64   `json:"current_price"`
	LowerLimit   float64   `json:"lower_limit"`
	PanicPrice   float64   `json:"panic_price"`
	PriceVsLower float64   `json:"price_vs_lower"` // 当前价相对下限的百分比距离
	Message      string    `json:"message"`
}

// 错误分类。调用方用 errors.Is 判断后决定跳过还是上报。
var (
	// ErrInsufficientBalance 表示余额不足以托管该笔订单，调用方应跳过此次挂单。
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrOrderNotFound 表示模拟器中不存在该订单，属于一致性错误，需要上报。
	ErrOrderNotFound = errors.New("order not found")
)

// OrderNotFoundError 构造一个携带订单ID的 ErrOrderNotFound。
func OrderNotFoundError(orderID string) error {
	return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
}
