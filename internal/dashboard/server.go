package dashboard

import (
	"fmt"
	"net/http"

	"kash-grid-bot-go/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SnapshotProvider 提供面板展示所需的只读状态快照。
// 面板永远不会通过它修改任何状态。
type SnapshotProvider interface {
	StatusSnapshot() models.StatusSnapshot
}

// Server 是只读监控面板的 HTTP 服务。
type Server struct {
	router   *gin.Engine
	provider SnapshotProvider
	logger   *zap.SugaredLogger
	httpSrv  *http.Server
}

// NewServer 创建面板服务。provider 是启动时注入的快照句柄，
// 面板不持有机器人或模拟器本身。
func NewServer(provider SnapshotProvider, logger *zap.SugaredLogger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:   router,
		provider: provider,
		logger:   logger,
	}

	router.GET("/", s.handleIndex)
	router.GET("/api/status", s.handleStatus)
	router.GET("/api/health", s.handleHealth)

	return s
}

// Start 在后台启动 HTTP 服务。
func (s *Server) Start(host string, port int) {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.httpSrv = &http.Server{Addr: addr, Handler: s.router}

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("面板服务异常退出: %v", err)
		}
	}()

	s.logger.Infof("监控面板已启动: http://%s", addr)
}

// Stop 关闭 HTTP 服务。
func (s *Server) Stop() {
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
}

// Handler 返回底层路由，仅供测试使用。
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.provider.StatusSnapshot())
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

// indexHTML 是一个极简的自刷新页面，数据全部来自 /api/status。
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Kash Grid Bot</title>
<style>
body { background: #111827; color: #e5e7eb; font-family: monospace; margin: 2rem; }
h1 { color: #f9fafb; }
table { border-collapse: collapse; margin-top: 1rem; }
td, th { border: 1px solid #374151; padding: 0.4rem 0.8rem; text-align: right; }
th { background: #1f2937; }
.buy { color: #34d399; } .sell { color: #f87171; }
#badge { padding: 0.2rem 0.6rem; border-radius: 0.4rem; }
.running { background: #064e3b; } .stopped { background: #7f1d1d; }
</style>
</head>
<body>
<h1>Kash Grid Bot <span id="badge" class="stopped">...</span></h1>
<div id="summary"></div>
<table id="orders"><thead><tr><th>Side</th><th>Price</th><th>Amount</th></tr></thead><tbody></tbody></table>
<script>
async function refresh() {
  const res = await fetch('/api/status');
  const d = await res.json();
  const badge = document.getElementById('badge');
  badge.textContent = d.is_running ? 'RUNNING' : 'STOPPED';
  badge.className = d.is_running ? 'running' : 'stopped';
  document.getElementById('summary').innerHTML =
    '<p>' + d.trading_pair + ' @ ' + d.current_price.toFixed(2) +
    ' | range ' + d.lower_limit.toFixed(2) + ' - ' + d.upper_limit.toFixed(2) + '</p>' +
    '<p>portfolio ' + d.portfolio_value.toFixed(2) +
    ' | realized ' + d.realized_profit.toFixed(2) +
    ' | trades ' + d.total_trades +
    ' | win ' + d.win_rate.toFixed(1) + '%</p>' +
    '<p>quote ' + d.quote_balance.toFixed(2) + ' | base ' + d.base_balance.toFixed(6) + '</p>';
  const tbody = document.querySelector('#orders tbody');
  tbody.innerHTML = (d.orders || []).map(o =>
    '<tr><td class="' + o.side.toLowerCase() + '">' + o.side + '</td><td>' +
    o.price.toFixed(2) + '</td><td>' + o.amount.toFixed(6) + '</td></tr>').join('');
}
refresh();
setInterval(refresh, 5000);
</script>
</body>
</html>`
