package exchange

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2"
)

// BinancePriceSource 通过币安公共行情接口提供最新成交价。
// 模拟交易模式下，撮合器用它观测真实市场价格，不需要 API 密钥。
type BinancePriceSource struct {
	client *binance.Client
}

// NewBinancePriceSource 创建公共行情源。baseURL 为空时使用币安默认地址。
func NewBinancePriceSource(baseURL string) *BinancePriceSource {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &BinancePriceSource{client: client}
}

// GetPrice 返回交易对的最新成交价。
func (s *BinancePriceSource) GetPrice(symbol string) (float64, error) {
	prices, err := s.client.NewListPricesService().Symbol(symbol).Do(context.Background())
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("交易对 %s 没有返回价格", symbol)
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}
