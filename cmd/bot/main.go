package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"kash-grid-bot-go/internal/bot"
	"kash-grid-bot-go/internal/config"
	"kash-grid-bot-go/internal/dashboard"
	"kash-grid-bot-go/internal/exchange"
	"kash-grid-bot-go/internal/logger"
	"kash-grid-bot-go/internal/models"
	"kash-grid-bot-go/internal/persistence"
	"kash-grid-bot-go/internal/reporter"
	"kash-grid-bot-go/internal/risk"

	"github.com/joho/godotenv"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "", "trading mode override: simulation or live")
	pair := flag.String("pair", "", "trading pair override, e.g. BTC/USDT")
	investment := flag.Float64("investment", 0, "investment amount override (quote currency)")
	grids := flag.Int("grids", 0, "grid count override")
	rangePct := flag.Float64("range", 0, "grid range percent override")
	noDashboard := flag.Bool("no-dashboard", false, "disable the monitoring dashboard")
	flag.Parse()

	// 先用默认配置初始化日志，以便加载配置阶段也有日志可用
	logger.Init(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	}

	// --- 加载 JSON 配置并应用命令行覆盖 ---
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}
	applyOverrides(cfg, *mode, *pair, *investment, *grids, *rangePct, *noDashboard)

	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			logger.S().Errorf("配置错误: %s", e)
		}
		os.Exit(1)
	}

	// --- 使用文件中的配置重新初始化日志 ---
	logger.Init(cfg.LogConfig)
	defer logger.S().Sync()

	logger.S().Info("==================================================")
	logger.S().Info("KASH GRID TRADING BOT")
	logger.S().Info("==================================================")
	logger.S().Infof("模式: %s | 交易对: %s | 投资额: %.2f %s",
		strings.ToUpper(cfg.TradingMode), cfg.Symbol, cfg.Investment, cfg.QuoteCurrency)
	logger.S().Infof("网格数: %d | 区间: ±%.1f%% | 恐慌缓冲: %.1f%%",
		cfg.GridCount, cfg.GridRangePercent, cfg.PanicSellBuffer)

	if strings.ToLower(cfg.TradingMode) == "live" {
		runLive(cfg)
	} else {
		runSimulation(cfg)
	}
}

// applyOverrides 把命令行参数覆盖到配置上。
func applyOverrides(cfg *models.Config, mode, pair string, investment float64, grids int, rangePct float64, noDashboard bool) {
	if mode != "" {
		cfg.TradingMode = mode
	}
	if pair != "" {
		parts := strings.SplitN(pair, "/", 2)
		if len(parts) == 2 {
			cfg.BaseCurrency = parts[0]
			cfg.QuoteCurrency = parts[1]
			cfg.Symbol = parts[0] + parts[1]
		} else {
			logger.S().Fatalf("交易对格式错误: %q，应为 BASE/QUOTE", pair)
		}
	}
	if investment > 0 {
		cfg.Investment = investment
	}
	if grids > 0 {
		cfg.GridCount = grids
	}
	if rangePct > 0 {
		cfg.GridRangePercent = rangePct
	}
	if noDashboard {
		cfg.Dashboard.Enabled = false
	}
}

// runSimulation 以模拟撮合器为执行后端运行机器人。
func runSimulation(cfg *models.Config) {
	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		logger.S().Fatalf("打开模拟账本数据库失败: %v", err)
	}
	defer repo.Close()

	apiURL := cfg.LiveAPIURL
	if cfg.IsTestnet {
		apiURL = cfg.TestnetAPIURL
	}
	market := exchange.NewBinancePriceSource(apiURL)

	simExchange, err := exchange.NewSimulatedExchange(cfg, market, repo)
	if err != nil {
		logger.S().Fatalf("初始化模拟交易所失败: %v", err)
	}

	gridBot := runBot(cfg, simExchange)

	// 退出前输出本次会话的表现汇总
	snapshot := simExchange.Snapshot()
	price, err := simExchange.GetPrice(cfg.Symbol)
	if err != nil {
		logger.S().Warnf("获取最终价格失败，汇总按初始价计算: %v", err)
		price = gridBot.GridSnapshot().InitialPrice
	}
	reporter.PrintSummary(
		reporter.BuildSummary(snapshot, price, simExchange.PortfolioValue(price)),
		cfg.QuoteCurrency, cfg.BaseCurrency,
	)
}

// runLive 以币安实盘为执行后端运行机器人。
func runLive(cfg *models.Config) {
	apiKey := os.Getenv("BINANCE_API_KEY")
	secretKey := os.Getenv("BINANCE_SECRET_KEY")

	apiURL, wsURL := cfg.LiveAPIURL, cfg.LiveWSURL
	if cfg.IsTestnet {
		apiURL, wsURL = cfg.TestnetAPIURL, cfg.TestnetWSURL
		logger.S().Info("正在使用币安测试网...")
	}

	liveExchange, err := exchange.NewLiveExchange(apiKey, secretKey, apiURL, wsURL, cfg.Symbol, logger.S().Named("live"))
	if err != nil {
		logger.S().Fatalf("初始化交易所失败: %v", err)
	}
	defer liveExchange.Close()

	runBot(cfg, liveExchange)
}

// runBot 完成通用装配（风险监控、网格机器人、面板），阻塞运行直到
// 收到退出信号或策略自行停止，返回机器人以便调用方读取最终状态。
func runBot(cfg *models.Config, ex exchange.Exchange) *bot.GridTradingBot {
	riskManager := risk.NewManager(cfg, ex)
	riskManager.SetLogger(logger.S().Named("risk"))

	gridBot := bot.NewGridTradingBot(cfg, ex, riskManager)
	if err := gridBot.Initialize(); err != nil {
		logger.S().Fatalf("初始化网格失败: %v", err)
	}

	if cfg.Dashboard.Enabled {
		dash := dashboard.NewServer(gridBot, logger.S().Named("dashboard"))
		dash.Start(cfg.Dashboard.Host, cfg.Dashboard.Port)
		defer dash.Stop()
	}

	done := make(chan struct{})
	go func() {
		gridBot.Run()
		close(done)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.S().Info("收到退出信号，正在关闭...")
	case <-done:
	}

	// 停机前尽力撤销所有挂单；单笔失败只记日志，不重试
	gridBot.Stop()
	logger.S().Info("机器人已停止。")
	return gridBot
}
