// Package api exposes the mirrored snapshot and the send operation over a
// local HTTP interface.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmartins/wamirror/internal/status"
	"github.com/mmartins/wamirror/internal/store"
	"go.uber.org/zap"
)

// Sender is the outbound side of the WhatsApp adapter.
type Sender interface {
	SendText(ctx context.Context, jid, text string) (string, error)
	PhoneNumber() string
	IsConnected() bool
}

// Server serves the read-side queries and the send endpoint.
type Server struct {
	db      *store.DB
	machine *status.Machine
	sender  Sender
	logger  *zap.Logger
	http    *http.Server
}

// NewServer builds the HTTP server on addr.
func NewServer(addr string, db *store.DB, machine *status.Machine, sender Sender, logger *zap.Logger) *Server {
	s := &Server{
		db:      db,
		machine: machine,
		sender:  sender,
		logger:  logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(s.requestID(), s.accessLog(), gin.Recovery())

	v1 := router.Group("/v1")
	{
		v1.GET("/status", s.getStatus)
		v1.GET("/chats", s.listChats)
		v1.GET("/chats/:jid", s.getChat)
		v1.GET("/chats/:jid/messages", s.listMessages)
		v1.GET("/messages/:id/context", s.messageContext)
		v1.GET("/contacts", s.searchContacts)
		v1.GET("/search/messages", s.searchMessages)
		v1.POST("/messages", s.sendMessage)
	}

	s.http = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return s
}

// Start serves until Shutdown. Blocks; run it on its own goroutine.
func (s *Server) Start() error {
	s.logger.Info("http api listening", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
