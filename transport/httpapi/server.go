// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package httpapi exposes a handshake.Engine over HTTP with gin and provides
// the matching initiator client.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/oap-foundation/oaep-go/handshake"
	"github.com/oap-foundation/oaep-go/identity"
	"github.com/oap-foundation/oaep-go/profile"
)

// Routes served by Server.
const (
	WellKnownDocumentPath = "/.well-known/did.json"
	ConnectPath           = "/oaep/v1/connect"
	RespondPath           = "/oaep/v1/respond"
	SessionsPath          = "/oaep/v1/sessions"
	MetricsPath           = "/metrics"
)

// DefaultMaxBodyBytes caps handshake request bodies, matching the DID
// document limit of identity.HTTPFetcher.
const DefaultMaxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	// Logger defaults to logrus.StandardLogger().
	Logger logrus.FieldLogger
	// Gatherer, when set, is exposed at MetricsPath.
	Gatherer prometheus.Gatherer
	// MaxBodyBytes caps request bodies on the handshake routes. Defaults to
	// DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Server is the responder side of the handshake over HTTP. It also publishes
// the local DID document so did:web peers can resolve it.
type Server struct {
	engine *handshake.Engine
	log    logrus.FieldLogger
	router *gin.Engine
}

// NewServer builds the gin router for engine.
func NewServer(engine *handshake.Engine, opts Options) *Server {
	s := &Server{engine: engine, log: opts.Logger}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	docPath := WellKnownDocumentPath
	if web, ok := engine.Local().(*identity.WebIdentity); ok {
		docPath = web.DocumentPath()
	}
	r.GET(docPath, s.document)

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	v1 := r.Group("/oaep/v1", limitBody(maxBody))
	{
		v1.POST("/connect", s.connect)
		v1.POST("/respond", s.respond)
		v1.GET("/sessions/:id", s.getSession)
		v1.DELETE("/sessions/:id", s.deleteSession)
	}
	if opts.Gatherer != nil {
		r.GET(MetricsPath, gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("http request")
	}
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

// bindJSON decodes the request body into v and writes the error response
// when it cannot.
func (s *Server) bindJSON(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{
			Error: "request body exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes",
			Code:  CodeInvalidMessage,
		})
		return false
	}
	c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error(), Code: CodeInvalidMessage})
	return false
}

func (s *Server) document(c *gin.Context) {
	doc, err := s.engine.Local().Resolve(c.Request.Context())
	if err != nil {
		s.writeError(c, "document", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) connect(c *gin.Context) {
	var req handshake.ConnectionRequest
	if !s.bindJSON(c, &req) {
		return
	}
	ch, err := s.engine.ProcessConnectionRequest(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, "connect", err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

type respondResult struct {
	SessionID string `json:"sessionId"`
	Connected bool   `json:"connected"`
}

func (s *Server) respond(c *gin.Context) {
	var resp handshake.ConnectionResponse
	if !s.bindJSON(c, &resp) {
		return
	}
	ok, err := s.engine.VerifyConnectionResponse(c.Request.Context(), &resp)
	if err != nil {
		s.writeError(c, "respond", err)
		return
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusUnauthorized
	}
	c.JSON(status, respondResult{SessionID: resp.SessionID, Connected: ok})
}

type sessionView struct {
	ID            string                `json:"id"`
	RemoteDID     string                `json:"remoteDid"`
	State         string                `json:"state"`
	CreatedAt     string                `json:"createdAt"`
	ConnectedAt   string                `json:"connectedAt,omitempty"`
	RemoteProfile *profile.AgentProfile `json:"remoteProfile,omitempty"`
}

func newSessionView(sess *handshake.Session) sessionView {
	v := sessionView{
		ID:            sess.ID,
		RemoteDID:     sess.RemoteDID,
		State:         string(sess.State),
		CreatedAt:     sess.CreatedAt.UTC().Format(time.RFC3339),
		RemoteProfile: sess.RemoteProfile,
	}
	if !sess.ConnectedAt.IsZero() {
		v.ConnectedAt = sess.ConnectedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func (s *Server) getSession(c *gin.Context) {
	id := c.Param("id")
	sess, ok, err := s.engine.GetSession(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, "get session", err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "session not found: " + id, Code: CodeSessionNotFound})
		return
	}
	c.JSON(http.StatusOK, newSessionView(sess))
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.engine.TerminateSession(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, "delete session", err)
		return
	}
	c.Status(http.StatusNoContent)
}
