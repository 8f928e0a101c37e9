// Package api exposes the pipeline's control surface over HTTP: submitting
// runs, inspecting their progress, resolving needs_user_decision runs, and
// downloading the two CSV exports.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/leadpipe/pkg/config"
	"github.com/codeready-toolchain/leadpipe/pkg/storage"
	"github.com/codeready-toolchain/leadpipe/pkg/version"
)

// Server is the pipeline's HTTP API.
type Server struct {
	store  *storage.Store
	notify config.NotificationConfig
	engine *gin.Engine
}

// NewServer wires routes onto a fresh gin.Engine.
func NewServer(store *storage.Store, notify config.NotificationConfig) *Server {
	s := &Server{store: store, notify: notify, engine: gin.New()}
	s.engine.Use(gin.Recovery(), gin.Logger())

	s.engine.GET("/healthz", s.health)
	s.engine.POST("/runs", s.createRun)
	s.engine.GET("/runs", s.listRuns)
	s.engine.GET("/runs/:id", s.getRun)
	s.engine.POST("/runs/:id/decision", s.decideRun)
	s.engine.POST("/runs/:id/resume", s.resumeRun)
	s.engine.GET("/runs/:id/export/companies.csv", s.exportCompanies)
	s.engine.GET("/runs/:id/export/contacts.csv", s.exportContacts)

	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Full()})
}
