package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"supply-daddy-api-server/internal/routegraph"
)

type RouteHandler struct {
	Graph *routegraph.Graph
}

type OptimalRouteRequest struct {
	Origin      string `json:"origin" binding:"required"`
	Destination string `json:"destination" binding:"required"`
}

func (h *RouteHandler) ListNodes(c *gin.Context) {
	c.JSON(http.StatusOK, h.Graph.Nodes())
}

// GetGraph returns nodes and links in the shape the dashboard map consumes.
func (h *RouteHandler) GetGraph(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"nodes": h.Graph.Nodes(), "links": h.Graph.Edges()})
}

func (h *RouteHandler) OptimalRoute(c *gin.Context) {
	var req OptimalRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	origin := strings.ToUpper(strings.TrimSpace(req.Origin))
	destination := strings.ToUpper(strings.TrimSpace(req.Destination))

	path, hours, err := h.Graph.ShortestPath(origin, destination)
	if err != nil {
		respondError(c, err)
		return
	}
	stops, err := h.Graph.StopsFor(path, time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"origin":      origin,
		"destination": destination,
		"path":        path,
		"total_hours": hours,
		"stops":       stops,
	})
}
