package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mcollab/internal/coordinator"
	"github.com/xxxsen/mcollab/internal/pkg/errcode"
	"github.com/xxxsen/mcollab/internal/pkg/response"
)

type DocumentHandler struct {
	coord *coordinator.Coordinator
}

func NewDocumentHandler(coord *coordinator.Coordinator) *DocumentHandler {
	return &DocumentHandler{coord: coord}
}

func (h *DocumentHandler) Get(c *gin.Context) {
	docID := strings.TrimSpace(c.Param("id"))
	if docID == "" {
		response.Error(c, errcode.ErrInvalid, "document id required")
		return
	}
	state, err := h.coord.Snapshot(c.Request.Context(), docID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, state)
}

func (h *DocumentHandler) Presence(c *gin.Context) {
	docID := strings.TrimSpace(c.Param("id"))
	if docID == "" {
		response.Error(c, errcode.ErrInvalid, "document id required")
		return
	}
	entries, err := h.coord.Presence(c.Request.Context(), docID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": entries})
}
