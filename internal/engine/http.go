package engine

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/abduss/inkledger/internal/account"
	"github.com/abduss/inkledger/internal/identity"
	"github.com/abduss/inkledger/internal/ledger"
	"github.com/abduss/inkledger/internal/workspace"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the engine operations under the provided router group.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.GET("/accounts/:accountID/balance", handler.getBalance)
	group.GET("/accounts/:accountID/storage", handler.storageStats)
	group.GET("/accounts/:accountID/transactions", handler.transactionHistory)
	group.POST("/credits/deduct", handler.deduct)
	group.POST("/credits/add", handler.credit)
	group.POST("/items", handler.saveItem)
	group.GET("/items", handler.listItems)
	group.GET("/items/:code", handler.getItem)
	group.DELETE("/items/:code", handler.deleteItem)
}

type httpHandler struct {
	service *Service
}

type deductRequest struct {
	AccountID   string  `json:"account_id" binding:"required"`
	Amount      int64   `json:"amount" binding:"required"`
	Description string  `json:"description"`
	ItemRef     *string `json:"item_ref"`
}

func (h *httpHandler) deduct(c *gin.Context) {
	sourceApp, ok := identity.SourceApp(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req deductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	newBalance, err := h.service.AuthorizeAndDeduct(c.Request.Context(), DeductRequest{
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		SourceApp:   sourceApp,
		Description: req.Description,
		ItemRef:     req.ItemRef,
	})
	if err != nil {
		writeEngineError(c, err, "failed to deduct credits")
		return
	}

	c.JSON(http.StatusOK, gin.H{"new_balance": newBalance})
}

type creditRequest struct {
	AccountID   string `json:"account_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
	Kind        string `json:"kind" binding:"required"`
	Description string `json:"description"`
}

func (h *httpHandler) credit(c *gin.Context) {
	sourceApp, ok := identity.SourceApp(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	newBalance, err := h.service.Credit(c.Request.Context(), CreditRequest{
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Kind:        ledger.Kind(req.Kind),
		SourceApp:   sourceApp,
		Description: req.Description,
	})
	if err != nil {
		writeEngineError(c, err, "failed to add credits")
		return
	}

	c.JSON(http.StatusOK, gin.H{"new_balance": newBalance})
}

func (h *httpHandler) getBalance(c *gin.Context) {
	credits, err := h.service.GetBalance(c.Request.Context(), c.Param("accountID"))
	if err != nil {
		writeEngineError(c, err, "failed to get balance")
		return
	}
	c.JSON(http.StatusOK, gin.H{"credits": credits})
}

type saveItemRequest struct {
	AccountID    string            `json:"account_id" binding:"required"`
	ItemType     string            `json:"item_type"`
	Title        string            `json:"title" binding:"required"`
	Content      string            `json:"content"`
	Metadata     map[string]string `json:"metadata"`
	ExistingCode string            `json:"existing_code"`
}

func (h *httpHandler) saveItem(c *gin.Context) {
	sourceApp, ok := identity.SourceApp(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req saveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	item, err := h.service.SaveItem(c.Request.Context(), SaveRequest{
		AccountID:    req.AccountID,
		SourceApp:    sourceApp,
		ItemType:     req.ItemType,
		Title:        req.Title,
		Content:      req.Content,
		Metadata:     req.Metadata,
		ExistingCode: req.ExistingCode,
	})
	if err != nil {
		writeEngineError(c, err, "failed to save item")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"code": item.Code, "size_bytes": item.SizeBytes})
}

func (h *httpHandler) getItem(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return
	}

	item, err := h.service.GetItem(c.Request.Context(), accountID, c.Param("code"))
	if err != nil {
		writeEngineError(c, err, "failed to get item")
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *httpHandler) listItems(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return
	}

	items, err := h.service.ListItems(c.Request.Context(), accountID, c.Query("source_app"))
	if err != nil {
		writeEngineError(c, err, "failed to list items")
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *httpHandler) deleteItem(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return
	}

	if err := h.service.DeleteItem(c.Request.Context(), accountID, c.Param("code")); err != nil {
		writeEngineError(c, err, "failed to delete item")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *httpHandler) storageStats(c *gin.Context) {
	stats, err := h.service.GetStorageStats(c.Request.Context(), c.Param("accountID"))
	if err != nil {
		writeEngineError(c, err, "failed to get storage stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) transactionHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.service.History(c.Request.Context(), c.Param("accountID"), limit)
	if err != nil {
		writeEngineError(c, err, "failed to get transaction history")
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": entries})
}

// writeEngineError maps business-rule failures to precise statuses so the
// calling app can render an exact message; everything else is opaque.
func writeEngineError(c *gin.Context, err error, fallback string) {
	var quotaErr *QuotaError

	switch {
	case errors.Is(err, ErrInsufficientCredits):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient credits"})
	case errors.As(err, &quotaErr):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":           "storage limit exceeded",
			"used_bytes":      quotaErr.UsedBytes,
			"limit_bytes":     quotaErr.LimitBytes,
			"requested_bytes": quotaErr.RequestedBytes,
		})
	case errors.Is(err, ErrStorageExceeded):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "storage limit exceeded"})
	case errors.Is(err, account.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
	case errors.Is(err, workspace.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidKind), errors.Is(err, ErrTitleRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, workspace.ErrCodeSpaceExhausted):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "item code generation failed"})
	case errors.Is(err, ErrTransientStore):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary failure, safe to retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
