package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chain-keeper/pkg/chain"
	"chain-keeper/pkg/checksum"
	"chain-keeper/pkg/graph"
	"chain-keeper/pkg/library"
	"chain-keeper/pkg/loader"
)

var maxDocumentBytes int64 = 16 << 20

type loadResponse struct {
	Content  graph.Content    `json:"content"`
	From     int              `json:"from"`
	Revision int              `json:"revision"`
	Checksum checksum.Status  `json:"checksum"`
	Applied  []string         `json:"applied"`
	Warnings []loader.Warning `json:"warnings"`
}

type checksumResponse struct {
	Checksum string          `json:"checksum"`
	Status   checksum.Status `json:"status"`
}

type saveRequest struct {
	Name     string          `json:"name" binding:"required"`
	Document json.RawMessage `json:"document" binding:"required"`
}

func readBody(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxDocumentBytes)
	raw, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, "document too large")
		} else {
			writeError(c, http.StatusBadRequest, "read body: "+err.Error())
		}
		return nil, false
	}
	return raw, true
}

// writeLoadError reports a load failure with its kind and, when known, the
// offending element.
func writeLoadError(c *gin.Context, err error) {
	kind := loader.Kind(err)
	status := http.StatusUnprocessableEntity
	if kind == loader.KindUnknown {
		status = http.StatusInternalServerError
	}
	body := gin.H{"error": err.Error(), "kind": kind}
	if el := loader.Element(err); el != "" {
		body["element"] = el
	}
	c.AbortWithStatusJSON(status, body)
}

func (s *Server) handleChainLoad(c *gin.Context) {
	raw, ok := readBody(c)
	if !ok {
		return
	}
	res, err := s.loader.Load(raw)
	if err != nil {
		writeLoadError(c, err)
		return
	}
	c.JSON(http.StatusOK, newLoadResponse(res))
}

func newLoadResponse(res *loader.Result) loadResponse {
	applied := res.Applied
	if applied == nil {
		applied = []string{}
	}
	warnings := res.Warnings
	if warnings == nil {
		warnings = []loader.Warning{}
	}
	return loadResponse{
		Content:  res.Graph.Content(),
		From:     res.From,
		Revision: res.Document.Revision(),
		Checksum: res.Checksum,
		Applied:  applied,
		Warnings: warnings,
	}
}

func (s *Server) handleChainMigrate(c *gin.Context) {
	raw, ok := readBody(c)
	if !ok {
		return
	}
	doc, err := chain.Decode(raw)
	if err != nil {
		writeLoadError(c, err)
		return
	}
	migrated, err := s.loader.Engine().Migrate(doc)
	if err != nil {
		writeLoadError(c, err)
		return
	}
	c.JSON(http.StatusOK, migrated)
}

func (s *Server) handleChainChecksum(c *gin.Context) {
	raw, ok := readBody(c)
	if !ok {
		return
	}
	doc, err := chain.Decode(raw)
	if err != nil {
		writeLoadError(c, err)
		return
	}
	sum, err := checksum.Compute(doc.Content)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	status, err := checksum.Verify(doc)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, checksumResponse{Checksum: sum, Status: status})
}

// handleChainSave loads the submitted document, re-seals it at the current
// revision and stores the sealed copy.
func (s *Server) handleChainSave(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxDocumentBytes)
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.loader.Load(req.Document)
	if err != nil {
		writeLoadError(c, err)
		return
	}
	sealed, err := s.loader.Seal(res.Graph, s.appVersion, s.now())
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	rec, err := s.library.Save(c.Request.Context(), req.Name, sealed)
	if err != nil {
		s.log.Error("save chain", "name", req.Name, "error", err)
		writeError(c, http.StatusInternalServerError, "save failed")
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleChainList(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(c, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	recs, err := s.library.List(c.Request.Context(), limit)
	if err != nil {
		s.log.Error("list chains", "error", err)
		writeError(c, http.StatusInternalServerError, "list failed")
		return
	}
	if recs == nil {
		recs = []library.Record{}
	}
	c.JSON(http.StatusOK, recs)
}

func (s *Server) handleChainGet(c *gin.Context) {
	rec, err := s.library.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, library.ErrNotFound) {
		writeError(c, http.StatusNotFound, "chain not found")
		return
	}
	if err != nil {
		s.log.Error("get chain", "id", c.Param("id"), "error", err)
		writeError(c, http.StatusInternalServerError, "get failed")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleChainDelete(c *gin.Context) {
	err := s.library.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, library.ErrNotFound) {
		writeError(c, http.StatusNotFound, "chain not found")
		return
	}
	if err != nil {
		s.log.Error("delete chain", "id", c.Param("id"), "error", err)
		writeError(c, http.StatusInternalServerError, "delete failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleChainVerify(c *gin.Context) {
	problems, err := s.library.Verify(c.Request.Context())
	if err != nil {
		s.log.Error("verify chains", "error", err)
		writeError(c, http.StatusInternalServerError, "verify failed")
		return
	}
	if problems == nil {
		problems = []library.Problem{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": len(problems) == 0, "problems": problems})
}

// changeFeed is implemented by stores that publish library changes, such as
// *library.Bus.
type changeFeed interface {
	Subscribe() chan library.Change
	Unsubscribe(chan library.Change)
}

// handleChainStream sends library changes as server-sent events until the
// client goes away.
func (s *Server) handleChainStream(c *gin.Context) {
	feed := s.library.(changeFeed)
	ch := feed.Subscribe()
	defer feed.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case change, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(change.Kind), change)
			return true
		}
	})
}
