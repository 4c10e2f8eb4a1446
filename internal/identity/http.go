package identity

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts identity operations under the provided router group.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/identity/resolve", handler.resolve)
}

type httpHandler struct {
	service *Service
}

type resolveRequest struct {
	BearerToken  string `json:"bearer_token"`
	ExternalID   string `json:"external_id"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	SessionToken string `json:"session_token"`
}

func (h *httpHandler) resolve(c *gin.Context) {
	sourceApp, ok := SourceApp(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// The Authorization header is an alternative carrier for the bearer
	// credential; an explicit body field wins.
	if req.BearerToken == "" {
		req.BearerToken = c.GetHeader("Authorization")
	}

	ref, err := h.service.Resolve(c.Request.Context(), Claim{
		BearerToken:  req.BearerToken,
		ExternalID:   req.ExternalID,
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		SessionToken: req.SessionToken,
	}, sourceApp)
	if err != nil {
		if errors.Is(err, ErrGuestOnly) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no resolvable identity"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve identity"})
		return
	}

	c.JSON(http.StatusOK, ref)
}
