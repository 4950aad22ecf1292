package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bookstore-service/internal/models"
	"bookstore-service/internal/service"
	"bookstore-service/internal/shipping"
	"bookstore-service/internal/store"
	"bookstore-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService    *service.OrderService
	catalogService  *service.CatalogService
	shippingService *service.ShippingService
	addressStore    *store.Store
	ghn             *shipping.Client
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	catalogService *service.CatalogService,
	shippingService *service.ShippingService,
	st *store.Store,
	ghn *shipping.Client,
) *Handler {
	return &Handler{
		orderService:    orderService,
		catalogService:  catalogService,
		shippingService: shippingService,
		addressStore:    st,
		ghn:             ghn,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/books", h.listBooks)
		v1.GET("/books/:id", h.getBook)
		v1.GET("/books/:id/reviews", h.listBookReviews)
		v1.GET("/stationery", h.listStationery)
		v1.GET("/stationery/:id", h.getStationery)
		v1.GET("/authors", h.listAuthors)
		v1.GET("/categories", h.listCategories)

		v1.POST("/orders", h.createOrder)

		v1.GET("/shipping/provinces", h.listProvinces)
		v1.GET("/shipping/districts", h.listDistricts)
		v1.GET("/shipping/wards", h.listWards)
		v1.POST("/shipping/resolve", h.resolveLocation)
		v1.POST("/shipping/fee", h.quoteShippingFee)

		user := v1.Group("", requireUser())
		{
			user.GET("/orders", h.listOrders)
			user.GET("/orders/:id", h.getOrder)
			user.POST("/orders/:id/cancel", h.cancelOrder)

			user.GET("/addresses", h.listAddresses)
			user.POST("/addresses", h.createAddress)
			user.PUT("/addresses/:id", h.updateAddress)
			user.DELETE("/addresses/:id", h.deleteAddress)
			user.POST("/addresses/:id/default", h.setDefaultAddress)

			user.GET("/wishlist", h.listWishlist)
			user.POST("/wishlist/:bookID", h.addToWishlist)
			user.DELETE("/wishlist/:bookID", h.removeFromWishlist)

			user.POST("/books/:id/reviews", h.submitReview)
			user.DELETE("/reviews/:id", h.deleteReview)
		}

		admin := v1.Group("/admin", requireAdmin())
		{
			admin.POST("/books", h.createBook)
			admin.PUT("/books/:id", h.updateBook)
			admin.DELETE("/books/:id", h.deactivateBook)
			admin.POST("/stationery", h.createStationery)
			admin.PUT("/stationery/:id", h.updateStationery)
			admin.DELETE("/stationery/:id", h.deactivateStationery)
			admin.POST("/authors", h.createAuthor)
			admin.POST("/categories", h.createCategory)

			admin.GET("/orders", h.listAllOrders)
			admin.PATCH("/orders/:id/status", h.updateOrderStatus)
			admin.POST("/shipping/sync", h.syncShippingStatuses)
		}
	}
}

// Identity is established upstream; the gateway forwards it as headers.

func currentUserID(c *gin.Context) *int64 {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

func isAdmin(c *gin.Context) bool {
	return c.GetHeader("X-User-Role") == "admin"
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUserID(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// respondError maps service and store errors onto HTTP statuses with a
// uniform body shape.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.Is(err, store.ErrNotFound):
		status, message = http.StatusNotFound, "Not found"
	case errors.Is(err, store.ErrInsufficientStock):
		status, message = http.StatusConflict, "Insufficient stock"
	case errors.Is(err, store.ErrConflict):
		status, message = http.StatusConflict, "Conflict"
	case errors.Is(err, service.ErrValidation):
		status, message = http.StatusBadRequest, "Invalid request"
	case errors.Is(err, service.ErrForbidden):
		status, message = http.StatusForbidden, "Forbidden"
	case errors.Is(err, shipping.ErrNotConfigured):
		status, message = http.StatusServiceUnavailable, "Shipping service unavailable"
	}

	c.JSON(status, gin.H{"error": message, "details": err.Error()})
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func queryInt64Ptr(c *gin.Context, name string) *int64 {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

// pageLimit caps listing pages so a client cannot request the whole table.
func pageLimit(c *gin.Context) int {
	limit := queryInt(c, "limit", 20)
	if limit > 100 {
		limit = 100
	}
	return limit
}

// Catalog handlers

func (h *Handler) listBooks(c *gin.Context) {
	f := store.BookFilter{
		Skip:       queryInt(c, "skip", 0),
		Limit:      pageLimit(c),
		CategoryID: queryInt64Ptr(c, "category_id"),
		AuthorID:   queryInt64Ptr(c, "author_id"),
		Search:     c.Query("search"),
	}

	books, err := h.catalogService.ListBooks(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": books})
}

func (h *Handler) getBook(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	book, err := h.catalogService.GetBook(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *Handler) createBook(c *gin.Context) {
	var book models.Book
	if err := c.ShouldBindJSON(&book); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := h.catalogService.CreateBook(c.Request.Context(), &book); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *Handler) updateBook(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var book models.Book
	if err := c.ShouldBindJSON(&book); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	book.ID = id
	if err := h.catalogService.UpdateBook(c.Request.Context(), &book); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *Handler) deactivateBook(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.catalogService.DeactivateBook(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listStationery(c *gin.Context) {
	f := store.StationeryFilter{
		Skip:       queryInt(c, "skip", 0),
		Limit:      pageLimit(c),
		CategoryID: queryInt64Ptr(c, "category_id"),
		Search:     c.Query("search"),
	}

	items, err := h.catalogService.ListStationery(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stationery": items})
}

func (h *Handler) getStationery(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	item, err := h.catalogService.GetStationery(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) createStationery(c *gin.Context) {
	var item models.Stationery
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := h.catalogService.CreateStationery(c.Request.Context(), &item); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) updateStationery(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var item models.Stationery
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	item.ID = id
	if err := h.catalogService.UpdateStationery(c.Request.Context(), &item); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) deactivateStationery(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.catalogService.DeactivateStationery(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listAuthors(c *gin.Context) {
	authors, err := h.catalogService.ListAuthors(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authors": authors})
}

func (h *Handler) createAuthor(c *gin.Context) {
	var author models.Author
	if err := c.ShouldBindJSON(&author); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := h.catalogService.CreateAuthor(c.Request.Context(), &author); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, author)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalogService.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *Handler) createCategory(c *gin.Context) {
	var category models.Category
	if err := c.ShouldBindJSON(&category); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := h.catalogService.CreateCategory(c.Request.Context(), &category); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

// Order handlers

func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	req.UserID = currentUserID(c)

	resp, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) listOrders(c *gin.Context) {
	userID := currentUserID(c)
	orders, err := h.orderService.ListOrders(c.Request.Context(),
		*userID, queryInt(c, "skip", 0), pageLimit(c), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, items, err := h.orderService.GetOrder(c.Request.Context(), id, currentUserID(c), isAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

func (h *Handler) cancelOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.orderService.CancelOrder(c.Request.Context(), id, currentUserID(c), isAdmin(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "status": models.OrderStatusCancelled})
}

func (h *Handler) listAllOrders(c *gin.Context) {
	orders, err := h.orderService.ListAllOrders(c.Request.Context(),
		queryInt(c, "skip", 0), pageLimit(c), c.Query("status"), queryInt64Ptr(c, "user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.orderService.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "status": req.Status})
}

// Address handlers

func (h *Handler) listAddresses(c *gin.Context) {
	userID := currentUserID(c)
	addresses, err := h.addressStore.ListAddresses(c.Request.Context(), *userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"addresses": addresses})
}

func (h *Handler) createAddress(c *gin.Context) {
	var address models.Address
	if err := c.ShouldBindJSON(&address); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	address.UserID = *currentUserID(c)

	if err := h.addressStore.CreateAddress(c.Request.Context(), &address); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, address)
}

func (h *Handler) updateAddress(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var address models.Address
	if err := c.ShouldBindJSON(&address); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	address.ID = id
	address.UserID = *currentUserID(c)

	if err := h.addressStore.UpdateAddress(c.Request.Context(), &address); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, address)
}

func (h *Handler) deleteAddress(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.addressStore.DeleteAddress(c.Request.Context(), id, *currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setDefaultAddress(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.addressStore.SetDefaultAddress(c.Request.Context(), id, *currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address_id": id, "is_default_shipping": true})
}

// Wishlist handlers

func (h *Handler) listWishlist(c *gin.Context) {
	entries, err := h.catalogService.ListWishlist(c.Request.Context(), *currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wishlist": entries})
}

func (h *Handler) addToWishlist(c *gin.Context) {
	bookID, ok := pathID(c, "bookID")
	if !ok {
		return
	}
	if err := h.catalogService.AddToWishlist(c.Request.Context(), *currentUserID(c), bookID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"book_id": bookID})
}

func (h *Handler) removeFromWishlist(c *gin.Context) {
	bookID, ok := pathID(c, "bookID")
	if !ok {
		return
	}
	if err := h.catalogService.RemoveFromWishlist(c.Request.Context(), *currentUserID(c), bookID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Review handlers

func (h *Handler) listBookReviews(c *gin.Context) {
	bookID, ok := pathID(c, "id")
	if !ok {
		return
	}
	reviews, err := h.catalogService.ListBookReviews(c.Request.Context(),
		bookID, queryInt(c, "skip", 0), pageLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

func (h *Handler) submitReview(c *gin.Context) {
	bookID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Rating  int     `json:"rating" binding:"required,min=1,max=5"`
		Comment *string `json:"comment,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	review, err := h.catalogService.SubmitReview(c.Request.Context(),
		*currentUserID(c), bookID, req.Rating, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (h *Handler) deleteReview(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.catalogService.DeleteReview(c.Request.Context(), id, *currentUserID(c), isAdmin(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Shipping handlers

func (h *Handler) listProvinces(c *gin.Context) {
	provinces, err := h.ghn.GetProvinces(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provinces": provinces})
}

func (h *Handler) listDistricts(c *gin.Context) {
	provinceID := queryInt(c, "province_id", 0)
	if provinceID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "province_id is required"})
		return
	}
	districts, err := h.ghn.GetDistricts(c.Request.Context(), provinceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"districts": districts})
}

func (h *Handler) listWards(c *gin.Context) {
	districtID := queryInt(c, "district_id", 0)
	if districtID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "district_id is required"})
		return
	}
	wards, err := h.ghn.GetWards(c.Request.Context(), districtID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wards": wards})
}

func (h *Handler) resolveLocation(c *gin.Context) {
	var req struct {
		ProvinceName string `json:"province_name" binding:"required"`
		DistrictName string `json:"district_name" binding:"required"`
		WardName     string `json:"ward_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	location, err := h.shippingService.ResolveLocation(c.Request.Context(),
		req.ProvinceName, req.DistrictName, req.WardName)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, location)
}

func (h *Handler) quoteShippingFee(c *gin.Context) {
	var req service.FeeQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	fee, err := h.shippingService.QuoteFee(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fee)
}

func (h *Handler) syncShippingStatuses(c *gin.Context) {
	result, err := h.shippingService.SyncShippingStatuses(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
