package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ragerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/rag"
)

// Messages returned verbatim to clients.
const (
	IndexMessage       = "AI Assistant API is running."
	UnavailableMessage = "RAG System is not available."
)

// AddContextRequest is the body of POST /add_context.
type AddContextRequest struct {
	Text     *string           `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// AddContextBatchRequest is the body of POST /add_context/batch.
type AddContextBatchRequest struct {
	Texts []string `json:"texts"`
}

// GetContextRequest is the body of POST /get_context. Omitted k and
// threshold fall back to the server defaults.
type GetContextRequest struct {
	Query     *string  `json:"query"`
	K         *int     `json:"k"`
	Threshold *float32 `json:"threshold"`
}

func (s *Server) requireKnowledgeBase(c *gin.Context) {
	if s.kb == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": UnavailableMessage})
		return
	}
	c.Next()
}

func (s *Server) handleIndex(c *gin.Context) {
	c.String(http.StatusOK, IndexMessage)
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	if s.kb == nil {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"service": s.opts.Service,
		"version": s.opts.Version,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"state":  s.kb.State().String(),
		"rag":    s.kb.Stats(),
	})
}

func (s *Server) handleAddContext(c *gin.Context) {
	var req AddContextRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request. 'text' key is required."})
		return
	}

	res, err := s.kb.AddDocument(c.Request.Context(), *req.Text, req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}

	msg := "Context added successfully."
	if res.Duplicate {
		msg = "Context already present."
	}
	c.JSON(http.StatusCreated, gin.H{
		"status":    "success",
		"message":   msg,
		"duplicate": res.Duplicate,
		"position":  res.Position,
		"total":     res.Total,
	})
}

func (s *Server) handleAddContextBatch(c *gin.Context) {
	var req AddContextBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Texts == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request. 'texts' key is required."})
		return
	}

	added, err := s.kb.AddDocumentsBatch(c.Request.Context(), req.Texts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "added": added})
}

func (s *Server) handleGetContext(c *gin.Context) {
	var req GetContextRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Query == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request. 'query' key is required."})
		return
	}

	k := s.opts.DefaultK
	if req.K != nil {
		k = *req.K
	}
	threshold := s.opts.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	res, err := s.kb.Retrieve(c.Request.Context(), *req.Query, k, threshold)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.kb.Stats())
}

func (s *Server) handleClear(c *gin.Context) {
	if err := s.kb.Clear(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Knowledge base cleared."})
}

// writeError answers with the status derived from the error category.
func writeError(c *gin.Context, err error) {
	re := ragerrors.Wrap(ragerrors.ErrCodeInternal, err)
	body := gin.H{
		"status": "error",
		"error":  re.Message,
		"code":   re.Code,
	}
	if re.Suggestion != "" {
		body["suggestion"] = re.Suggestion
	}
	c.JSON(ragerrors.HTTPStatus(err), body)
}

var _ KnowledgeBase = (*rag.Service)(nil)
