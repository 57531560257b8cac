package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chain-keeper/pkg/checksum"
	"chain-keeper/pkg/graph"
	"chain-keeper/pkg/loader"
	"chain-keeper/pkg/preset"
)

type presetSummary struct {
	Name        string           `json:"name"`
	Author      string           `json:"author"`
	Description string           `json:"description"`
	Revision    int              `json:"revision"`
	Checksum    checksum.Status  `json:"checksum"`
	Nodes       int              `json:"nodes"`
	Edges       int              `json:"edges"`
	Warnings    []loader.Warning `json:"warnings,omitempty"`
}

type presetDetail struct {
	presetSummary
	Content graph.Content `json:"content"`
}

func summarize(e preset.Entry) presetSummary {
	nodes, edges := e.Graph.Len()
	return presetSummary{
		Name:        e.Name,
		Author:      e.Author,
		Description: e.Description,
		Revision:    e.Revision,
		Checksum:    e.Checksum,
		Nodes:       nodes,
		Edges:       edges,
		Warnings:    e.Warnings,
	}
}

func (s *Server) handlePresetList(c *gin.Context) {
	entries := s.presets.Entries()
	out := make([]presetSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, summarize(e))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handlePresetGet(c *gin.Context) {
	e, ok := s.presets.Lookup(c.Param("name"))
	if !ok {
		writeError(c, http.StatusNotFound, "preset not found")
		return
	}
	c.JSON(http.StatusOK, presetDetail{presetSummary: summarize(e), Content: e.Graph.Content()})
}
