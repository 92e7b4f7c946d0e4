package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hiiliketocode/polycopy-sub018/internal/config"
	"github.com/hiiliketocode/polycopy-sub018/internal/engine"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/apperrors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New builds the engine's operational surface: health, metrics, risk
// state inspection and the manual pause/resume transitions. The user
// dashboard is an external consumer; nothing here renders UI and no
// raw internal error text leaves the process.
func New(cfg *config.Config, eng *engine.Engine) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "polycopy-engine"})
	})

	metricsPath := cfg.Server.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	r.GET(metricsPath, gin.WrapH(promhttp.Handler()))

	strategies := r.Group("/strategies")
	{
		strategies.GET("/:id/risk", func(c *gin.Context) {
			state, err := eng.RiskState(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, state)
		})

		strategies.POST("/:id/pause", func(c *gin.Context) {
			if err := eng.PauseStrategy(c.Request.Context(), c.Param("id")); err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "paused"})
		})

		strategies.POST("/:id/resume", func(c *gin.Context) {
			if err := eng.ResumeStrategy(c.Request.Context(), c.Param("id")); err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "active"})
		})
	}

	return r
}

func writeError(c *gin.Context, err error) {
	appErr := apperrors.Wrap(err)
	c.JSON(appErr.HTTPStatus, gin.H{"code": appErr.Type, "message": appErr.Message})
}
