package exchange

import "kash-grid-bot-go/internal/models"

// Exchange 定义了所有执行后端必须提供的通用方法。
// 网格控制器和风险监控只依赖这个接口，从不区分背后是实盘还是模拟。
type Exchange interface {
	// GetPrice 返回交易对的最新成交价。
	GetPrice(symbol string) (float64, error)

	// PlaceLimitBuy 挂一笔限价买单。
	PlaceLimitBuy(symbol string, amount, price float64) (*models.Order, error)

	// PlaceLimitSell 挂一笔限价卖单。
	PlaceLimitSell(symbol string, amount, price float64) (*models.Order, error)

	// GetOrderStatus 查询订单的当前状态。
	GetOrderStatus(orderID, symbol string) (*models.Order, error)

	// CancelOrder 撤销一笔挂单。对非挂单状态的订单返回 false。
	CancelOrder(orderID, symbol string) (bool, error)

	// CancelAllOrders 撤销该交易对的所有挂单，返回撤销数量。
	CancelAllOrders(symbol string) (int, error)

	// GetBalance 返回某一货币的可用余额。
	GetBalance(currency string) (float64, error)
}

// PriceSource 提供交易对的最新成交价。
// 模拟撮合器用它来观测真实行情；测试中用固定价格的假实现替代。
type PriceSource interface {
	GetPrice(symbol string) (float64, error)
}
