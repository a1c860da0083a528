package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/magickplan"
)

// InitRoutes builds the gin engine serving the planner API
func InitRoutes(h *PlanHandler, log logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), Logger(log))

	v1 := router.Group("/v1")
	v1.POST("/plan", h.Plan)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "magickplan",
			"version": magickplan.Version,
		})
	})
	return router
}
