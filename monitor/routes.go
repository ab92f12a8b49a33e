package monitor

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cyberinferno/go-slp/logger"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"live":           s.conns.Live(),
		"pending":        s.conns.Pending(),
	})
}

func (s *Server) handleConnections(c *gin.Context) {
	conns := s.conns.Connections()
	sort.Slice(conns, func(i, j int) bool { return conns[i].ID < conns[j].ID })

	c.JSON(http.StatusOK, gin.H{
		"count":       len(conns),
		"connections": conns,
	})
}

func (s *Server) handleConnection(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connection id"})
		return
	}

	info, ok := s.conns.Connection(uint32(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}

	c.JSON(http.StatusOK, info)
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "status source not configured"})
		return
	}

	payload, err := s.status.StatusPayload(c.Request.Context())
	if err != nil {
		s.log.Error("status preview failed", logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}
