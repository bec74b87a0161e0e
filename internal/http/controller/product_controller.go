package controller

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iyhunko/price-tracker/internal/model"
	"github.com/iyhunko/price-tracker/internal/report"
	"github.com/iyhunko/price-tracker/internal/repository"
	"github.com/iyhunko/price-tracker/internal/service"
	"github.com/shopspring/decimal"
)

// AllStores selects every store in report routes.
const AllStores = "all"

// ProductController handles HTTP requests for product operations.
type ProductController struct {
	tracker *service.TrackerService
}

// NewProductController creates a new ProductController with the given tracker service.
func NewProductController(tracker *service.TrackerService) *ProductController {
	return &ProductController{
		tracker: tracker,
	}
}

// StoreProductsResponse lists the ids of the upserted products in request order.
type StoreProductsResponse struct {
	IDs []int64 `json:"ids"`
}

// ProductResponse represents the response body for a product.
type ProductResponse struct {
	ID                    int64           `json:"id"`
	Name                  string          `json:"name"`
	Price                 decimal.Decimal `json:"price"`
	Link                  string          `json:"link"`
	ImageURL              string          `json:"image_url"`
	Store                 string          `json:"store"`
	PriceChangePercentage decimal.Decimal `json:"price_change_percentage"`
	CreatedAt             string          `json:"created_at"`
	UpdatedAt             string          `json:"updated_at"`
}

// PriceStatsResponse represents the price statistics of a product.
type PriceStatsResponse struct {
	Lowest  decimal.Decimal `json:"lowest"`
	Highest decimal.Decimal `json:"highest"`
	Average decimal.Decimal `json:"average"`
}

// ProductWithStatsResponse represents a product together with its statistics.
type ProductWithStatsResponse struct {
	ProductResponse
	Stats PriceStatsResponse `json:"stats"`
}

// PricePointResponse represents one price history entry.
type PricePointResponse struct {
	Price      decimal.Decimal `json:"price"`
	RecordedAt string          `json:"recorded_at"`
}

// ListProductsRequest represents the query parameters for listing products.
type ListProductsRequest struct {
	Store string `form:"store"`
	Limit int    `form:"limit"`
}

// LatestPricesRequest represents the request body for looking up latest prices.
type LatestPricesRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

// LatestPricesResponse maps product ids to their newest recorded price.
type LatestPricesResponse struct {
	Prices map[int64]decimal.Decimal `json:"prices"`
}

// StoreProducts handles the HTTP POST request carrying a scraped batch of one store.
func (pc *ProductController) StoreProducts(c *gin.Context) {
	var raws []model.RawProduct
	if err := c.ShouldBindJSON(&raws); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids, err := pc.tracker.StoreProducts(c.Request.Context(), c.Param("store"), raws)
	if err != nil {
		respondError(c, err, "failed to store products")
		return
	}

	c.JSON(http.StatusOK, StoreProductsResponse{IDs: ids})
}

// ListProducts handles the HTTP GET request for listing products of one or all stores.
func (pc *ProductController) ListProducts(c *gin.Context) {
	query, ok := bindListQuery(c)
	if !ok {
		return
	}

	products, err := pc.tracker.Products(c.Request.Context(), *query)
	if err != nil {
		respondError(c, err, "failed to list products")
		return
	}

	response := make([]ProductResponse, 0, len(products))
	for _, product := range products {
		response = append(response, toProductResponse(product))
	}
	c.JSON(http.StatusOK, gin.H{"products": response})
}

// ListProductsWithStats handles the HTTP GET request for listing products with price statistics.
func (pc *ProductController) ListProductsWithStats(c *gin.Context) {
	query, ok := bindListQuery(c)
	if !ok {
		return
	}

	records, err := pc.tracker.ProductsWithStats(c.Request.Context(), *query)
	if err != nil {
		respondError(c, err, "failed to list products")
		return
	}

	response := make([]ProductWithStatsResponse, 0, len(records))
	for _, record := range records {
		response = append(response, ProductWithStatsResponse{
			ProductResponse: toProductResponse(record.Product),
			Stats:           toStatsResponse(record.Stats),
		})
	}
	c.JSON(http.StatusOK, gin.H{"products": response})
}

// GetProduct handles the HTTP GET request for a single product.
func (pc *ProductController) GetProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	product, err := pc.tracker.Product(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to get product")
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}

	c.JSON(http.StatusOK, toProductResponse(*product))
}

// PriceHistory handles the HTTP GET request for the price history of a product, newest first.
func (pc *ProductController) PriceHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	history, err := pc.tracker.PriceHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to get price history")
		return
	}

	response := make([]PricePointResponse, 0, len(history))
	for _, point := range history {
		response = append(response, PricePointResponse{
			Price:      point.Price,
			RecordedAt: point.RecordedAt.Format(time.RFC3339Nano),
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": response})
}

// PriceStatistics handles the HTTP GET request for the price statistics of a product.
func (pc *ProductController) PriceStatistics(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	stats, err := pc.tracker.PriceStatistics(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to get price statistics")
		return
	}
	c.JSON(http.StatusOK, toStatsResponse(stats))
}

// LatestPrices handles the HTTP POST request for the newest prices of several products.
func (pc *ProductController) LatestPrices(c *gin.Context) {
	var req LatestPricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prices, err := pc.tracker.LatestPrices(c.Request.Context(), req.IDs)
	if err != nil {
		respondError(c, err, "failed to get latest prices")
		return
	}
	c.JSON(http.StatusOK, LatestPricesResponse{Prices: prices})
}

// DeleteProduct handles the HTTP DELETE request for deleting a product by ID.
// Deleting an absent product succeeds.
func (pc *ProductController) DeleteProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := pc.tracker.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, err, "failed to delete product")
		return
	}

	c.Status(http.StatusNoContent)
}

// DownloadReport handles the HTTP GET request rendering the report of a store.
func (pc *ProductController) DownloadReport(c *gin.Context) {
	store, format, ok := bindReport(c)
	if !ok {
		return
	}

	data, err := pc.tracker.Report(c.Request.Context(), store, format)
	if err != nil {
		respondError(c, err, "failed to render report")
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": format.FileName(store)}))
	c.Data(http.StatusOK, format.ContentType(), data)
}

// SendReport handles the HTTP POST request delivering the report of a store to the chat.
func (pc *ProductController) SendReport(c *gin.Context) {
	store, format, ok := bindReport(c)
	if !ok {
		return
	}

	err := pc.tracker.SendReport(c.Request.Context(), store, format)
	if errors.Is(err, service.ErrReportDeliveryDisabled) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, err, "failed to send report")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "report sent"})
}

func bindListQuery(c *gin.Context) (*repository.Query, bool) {
	var req ListProductsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return repository.NewQuery().With(repository.StoreField, req.Store).ApplyLimit(req.Limit), true
}

func bindReport(c *gin.Context) (string, report.Format, bool) {
	format, err := report.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}

	store := c.Param("store")
	if store == AllStores {
		store = ""
	}
	return store, format, true
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product ID"})
		return 0, false
	}
	return id, true
}

// respondError maps caller mistakes to 400 and everything else to 500.
func respondError(c *gin.Context, err error, msg string) {
	if errors.Is(err, repository.ErrInvalidArgument) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slog.Error(msg, slog.Any("err", err), slog.String("path", c.Request.URL.Path))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func toProductResponse(product model.Product) ProductResponse {
	return ProductResponse{
		ID:                    product.ID,
		Name:                  product.Name,
		Price:                 product.Price,
		Link:                  product.Link,
		ImageURL:              product.ImageURL,
		Store:                 product.Store,
		PriceChangePercentage: product.PriceChangePercentage,
		CreatedAt:             product.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             product.UpdatedAt.Format(time.RFC3339),
	}
}

func toStatsResponse(stats model.PriceStats) PriceStatsResponse {
	return PriceStatsResponse{
		Lowest:  stats.Lowest,
		Highest: stats.Highest,
		Average: stats.Average,
	}
}
