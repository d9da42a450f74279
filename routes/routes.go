package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"journalsync/controllers"
	"journalsync/metrics"
	"journalsync/middlewares"
)

func SetupRouter(wc *controllers.WebhookController, m *metrics.Metrics, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.Logger(logger), gin.Recovery())

	// 会話データの受信
	r.POST("/webhook", wc.HandleWebhook)

	r.GET("/health", wc.Health)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	return r
}
