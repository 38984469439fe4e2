package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"kash-grid-bot-go/internal/models"

	"github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsPriceMaxAge 是 WebSocket 缓存价格的有效期，超过后退回 REST 查询。
const wsPriceMaxAge = 10 * time.Second

// LiveExchange 实现了 Exchange 接口，是对币安现货 API 的直接封装。
// 除了把调用翻译成 API 请求外不包含任何策略逻辑。
type LiveExchange struct {
	client    *binance.Client
	wsBaseURL string

	mu          sync.RWMutex
	wsConn      *websocket.Conn
	lastPrice   float64
	lastPriceAt time.Time

	stopChannel chan struct{}
	logger      *zap.SugaredLogger
}

// NewLiveExchange 创建实盘交易所适配器，并启动后台行情流。
func NewLiveExchange(apiKey, secretKey, baseURL, wsBaseURL, symbol string, logger *zap.SugaredLogger) (*LiveExchange, error) {
	client := binance.NewClient(apiKey, secretKey)
	if baseURL != "" {
		client.BaseURL = baseURL
	}

	e := &LiveExchange{
		client:      client,
		wsBaseURL:   wsBaseURL,
		stopChannel: make(chan struct{}),
		logger:      logger,
	}

	// 先用 REST 确认连通性，之后由 WebSocket 流维护最新价
	if _, err := e.fetchRestPrice(symbol); err != nil {
		return nil, fmt.Errorf("无法连接币安 API: %w", err)
	}

	go e.priceStreamLoop(symbol)

	return e, nil
}

// GetPrice 返回最新成交价。优先使用 WebSocket 缓存的价格，
// 缓存过期时退回 REST 查询。
func (e *LiveExchange) GetPrice(symbol string) (float64, error) {
	e.mu.RLock()
	price, at := e.lastPrice, e.lastPriceAt
	e.mu.RUnlock()

	if price > 0 && time.Since(at) < wsPriceMaxAge {
		return price, nil
	}
	return e.fetchRestPrice(symbol)
}

func (e *LiveExchange) fetchRestPrice(symbol string) (float64, error) {
	prices, err := e.client.NewListPricesService().Symbol(symbol).Do(context.Background())
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("交易对 %s 没有返回价格", symbol)
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}

// PlaceLimitBuy 挂限价买单。
func (e *LiveExchange) PlaceLimitBuy(symbol string, amount, price float64) (*models.Order, error) {
	return e.placeLimitOrder(symbol, binance.SideTypeBuy, amount, price)
}

// PlaceLimitSell 挂限价卖单。
func (e *LiveExchange) PlaceLimitSell(symbol string, amount, price float64) (*models.Order, error) {
	return e.placeLimitOrder(symbol, binance.SideTypeSell, amount, price)
}

func (e *LiveExchange) placeLimitOrder(symbol string, side binance.SideType, amount, price float64) (*models.Order, error) {
	res, err := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(strconv.FormatFloat(amount, 'f', -1, 64)).
		Price(strconv.FormatFloat(price, 'f', -1, 64)).
		Do(context.Background())
	if err != nil {
		return nil, err
	}

	e.logger.Infof("%s 限价单已提交: %.6f @ %.2f, 订单ID: %d", side, amount, price, res.OrderID)

	return &models.Order{
		ID:        strconv.FormatInt(res.OrderID, 10),
		Symbol:    res.Symbol,
		Side:      models.Side(side),
		Price:     price,
		Amount:    amount,
		Status:    mapOrderStatus(res.Status),
		Timestamp: time.UnixMilli(res.TransactTime),
	}, nil
}

// GetOrderStatus 查询订单状态。
func (e *LiveExchange) GetOrderStatus(orderID, symbol string) (*models.Order, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("非法的订单ID %q: %w", orderID, err)
	}

	o, err := e.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(context.Background())
	if err != nil {
		return nil, err
	}

	price, _ := strconv.ParseFloat(o.Price, 64)
	amount, _ := strconv.ParseFloat(o.OrigQuantity, 64)
	filled, _ := strconv.ParseFloat(o.ExecutedQuantity, 64)

	return &models.Order{
		ID:        orderID,
		Symbol:    o.Symbol,
		Side:      models.Side(o.Side),
		Price:     price,
		Amount:    amount,
		Status:    mapOrderStatus(o.Status),
		Filled:    filled,
		Timestamp: time.UnixMilli(o.Time),
	}, nil
}

// CancelOrder 撤销一笔挂单。
func (e *LiveExchange) CancelOrder(orderID, symbol string) (bool, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("非法的订单ID %q: %w", orderID, err)
	}

	if _, err := e.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(context.Background()); err != nil {
		return false, err
	}
	return true, nil
}

// CancelAllOrders 逐一撤销该交易对的所有挂单，返回成功撤销的数量。
// 单笔撤销失败只记录日志，不中断其余撤销。
func (e *LiveExchange) CancelAllOrders(symbol string) (int, error) {
	orders, err := e.client.NewListOpenOrdersService().Symbol(symbol).Do(context.Background())
	if err != nil {
		return 0, err
	}

	canceled := 0
	for _, o := range orders {
		if _, err := e.client.NewCancelOrderService().Symbol(symbol).OrderID(o.OrderID).Do(context.Background()); err != nil {
			e.logger.Warnf("撤销订单 %d 失败: %v", o.OrderID, err)
			continue
		}
		canceled++
	}
	return canceled, nil
}

// GetBalance 返回某一资产的可用余额。
func (e *LiveExchange) GetBalance(currency string) (float64, error) {
	account, err := e.client.NewGetAccountService().Do(context.Background())
	if err != nil {
		return 0, err
	}

	for _, b := range account.Balances {
		if b.Asset == currency {
			return strconv.ParseFloat(b.Free, 64)
		}
	}
	return 0, nil
}

// Close 停止后台行情流。
func (e *LiveExchange) Close() {
	close(e.stopChannel)
	e.mu.Lock()
	if e.wsConn != nil {
		e.wsConn.Close()
	}
	e.mu.Unlock()
}

// priceStreamLoop 是一个守护循环，负责维持 aggTrade 行情流的连接和重连。
func (e *LiveExchange) priceStreamLoop(symbol string) {
	wsURL := fmt.Sprintf("%s/ws/%s@aggTrade", e.wsBaseURL, strings.ToLower(symbol))

	for {
		select {
		case <-e.stopChannel:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			e.logger.Warnf("行情流连接失败: %v，5秒后重试", err)
			time.Sleep(5 * time.Second)
			continue
		}

		e.mu.Lock()
		e.wsConn = conn
		e.mu.Unlock()
		e.logger.Info("行情流已连接")

		if err := e.readPriceStream(conn); err != nil {
			e.logger.Warnf("行情流中断: %v，准备重连", err)
		}
		conn.Close()
		time.Sleep(5 * time.Second)
	}
}

// readPriceStream 持续读取一条已建立连接上的成交消息，并维护心跳。
// 连接损坏时返回错误，由 priceStreamLoop 负责重连。
func (e *LiveExchange) readPriceStream(conn *websocket.Conn) error {
	const (
		pongWait   = 60 * time.Second
		pingPeriod = (pongWait * 9) / 10
	)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	pingStop := make(chan struct{})
	defer close(pingStop)

	go func() {
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingStop:
				return
			case <-e.stopChannel:
				return
			}
		}
	}()

	for {
		select {
		case <-e.stopChannel:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var trade struct {
			Price json.Number `json:"p"`
		}
		if err := json.Unmarshal(message, &trade); err != nil {
			e.logger.Debugf("解析行情消息失败: %v", err)
			continue
		}
		price, err := trade.Price.Float64()
		if err != nil {
			continue
		}

		e.mu.Lock()
		e.lastPrice = price
		e.lastPriceAt = time.Now()
		e.mu.Unlock()
	}
}

// mapOrderStatus 把币安的订单状态映射到内部状态。
func mapOrderStatus(status binance.OrderStatusType) models.OrderStatus {
	switch status {
	case binance.OrderStatusTypeNew:
		return models.OrderOpen
	case binance.OrderStatusTypePartiallyFilled:
		return models.OrderPartial
	case binance.OrderStatusTypeFilled:
		return models.OrderFilled
	default:
		// CANCELED / REJECTED / EXPIRED 对网格来说都意味着挂单失效
		return models.OrderCanceled
	}
}
