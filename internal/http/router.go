package http

import (
	"github.com/gin-gonic/gin"
	"github.com/iyhunko/price-tracker/internal/http/controller"
	"github.com/iyhunko/price-tracker/internal/http/middleware"
)

func InitRouter(server *gin.Engine, ctr *controller.Controller, productCtr *controller.ProductController) *gin.Engine {
	// Apply recovery middleware globally to prevent panics from crashing the server
	server.Use(middleware.Recovery(), middleware.RequestID(), middleware.Logger(), middleware.CORS())

	if ctr != nil {
		server.GET("/ping", ctr.Ping)
		server.GET("/ready", ctr.Ready)
	}

	// Scrapers post one store per request
	server.POST("/stores/:store/products", productCtr.StoreProducts)

	products := server.Group("/products")
	{
		products.GET("", productCtr.ListProducts)
		products.GET("/stats", productCtr.ListProductsWithStats)
		products.POST("/latest-prices", productCtr.LatestPrices)
		products.GET("/:id", productCtr.GetProduct)
		products.GET("/:id/history", productCtr.PriceHistory)
		products.GET("/:id/stats", productCtr.PriceStatistics)
		products.DELETE("/:id", productCtr.DeleteProduct)
	}

	reports := server.Group("/reports")
	{
		reports.GET("/:store", productCtr.DownloadReport)
		reports.POST("/:store/send", productCtr.SendReport)
	}

	return server
}
