// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/syntheticmagus/manifold-meeting-space/metrics"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Directory defaults to a fresh NewDirectory.
	Directory *Directory

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Server serves a Directory over HTTP.
type Server struct {
	directory *Directory
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type spaceListing struct {
	Space   string   `json:"space"`
	Members []string `json:"members"`
}

// membershipBinding validates join and leave bodies.
type membershipBinding struct {
	Space string `json:"space" binding:"required"`
	ID    string `json:"id" binding:"required"`
}

// NewServer returns a server over config.Directory.
func NewServer(config ServerConfig) *Server {
	if config.Directory == nil {
		config.Directory = NewDirectory()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Server{directory: config.Directory, logger: config.Logger, metrics: config.Metrics}
}

// Directory returns the table the server serves.
func (s *Server) Directory() *Directory { return s.directory }

// Routes registers the registry endpoints on router.
func (s *Server) Routes(router gin.IRoutes) {
	router.POST("/join", s.handleJoin)
	router.POST("/leave", s.handleLeave)
	router.GET("/spaces", s.handleSpaces)
	router.GET("/spaces/:space", s.handleSpace)
}

func (s *Server) handleJoin(c *gin.Context) {
	var body membershipBinding
	if err := c.ShouldBindJSON(&body); err != nil {
		s.metrics.RegistryJoin("error")
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	others := s.directory.Join(body.Space, body.ID)
	s.metrics.RegistryJoin("ok")
	s.logger.Info("member joined", "space", body.Space, "id", body.ID, "others", len(others))
	c.JSON(http.StatusOK, joinResponse{IDs: others})
}

func (s *Server) handleLeave(c *gin.Context) {
	var body membershipBinding
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if !s.directory.Leave(body.Space, body.ID) {
		c.JSON(http.StatusNotFound, errorBody{Error: "not a member of " + body.Space})
		return
	}
	s.logger.Info("member left", "space", body.Space, "id", body.ID)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSpaces(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"spaces": s.directory.Spaces()})
}

func (s *Server) handleSpace(c *gin.Context) {
	space := c.Param("space")
	c.JSON(http.StatusOK, spaceListing{Space: space, Members: s.directory.Members(space)})
}
