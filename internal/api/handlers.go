package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmartins/wamirror/internal/store"
	"github.com/mmartins/wamirror/internal/wa"
	"go.uber.org/zap"
)

func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) getStatus(c *gin.Context) {
	chats, err := s.db.ChatCount()
	if err != nil {
		s.fail(c, err)
		return
	}
	messages, err := s.db.MessageCount()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":     string(s.machine.Current()),
		"connected": s.sender.IsConnected(),
		"phone":     s.sender.PhoneNumber(),
		"chats":     chats,
		"messages":  messages,
	})
}

func (s *Server) listChats(c *gin.Context) {
	sort := store.ChatSort(c.DefaultQuery("sort", string(store.SortRecency)))
	if sort != store.SortRecency && sort != store.SortName {
		c.JSON(http.StatusBadRequest, errorJSON{Error: "sort must be recency or name"})
		return
	}

	chats, err := s.db.ListChats(
		intQuery(c, "limit", 20),
		intQuery(c, "page", 0),
		sort,
		c.Query("query"),
		c.Query("include_last_message") == "true",
	)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]chatJSON, len(chats))
	for i := range chats {
		out[i] = toChatJSON(&chats[i])
	}
	c.JSON(http.StatusOK, gin.H{"chats": out})
}

func (s *Server) getChat(c *gin.Context) {
	chat, err := s.db.GetChat(c.Param("jid"), c.DefaultQuery("include_last_message", "true") == "true")
	if err != nil {
		s.fail(c, err)
		return
	}
	if chat == nil {
		c.JSON(http.StatusNotFound, errorJSON{Error: "chat not found"})
		return
	}
	c.JSON(http.StatusOK, toChatJSON(chat))
}

func (s *Server) listMessages(c *gin.Context) {
	msgs, err := s.db.ListMessages(
		c.Param("jid"),
		intQuery(c, "limit", 20),
		intQuery(c, "page", 0),
	)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": toMessagesJSON(msgs)})
}

func (s *Server) messageContext(c *gin.Context) {
	mc, err := s.db.MessagesAround(
		c.Param("id"),
		intQuery(c, "before", 5),
		intQuery(c, "after", 5),
	)
	if err != nil {
		s.fail(c, err)
		return
	}
	if mc.Target == nil {
		c.JSON(http.StatusNotFound, errorJSON{Error: "message not found"})
		return
	}
	target := toMessageJSON(mc.Target)
	c.JSON(http.StatusOK, contextJSON{
		Target: &target,
		Before: toMessagesJSON(mc.Before),
		After:  toMessagesJSON(mc.After),
	})
}

func (s *Server) searchContacts(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, errorJSON{Error: "query is required"})
		return
	}
	contacts, err := s.db.SearchContacts(query, intQuery(c, "limit", 20))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": toContactsJSON(contacts)})
}

func (s *Server) searchMessages(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, errorJSON{Error: "query is required"})
		return
	}
	msgs, err := s.db.SearchMessages(
		query,
		c.Query("chat_jid"),
		intQuery(c, "limit", 10),
		intQuery(c, "page", 0),
	)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": toMessagesJSON(msgs)})
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// sendMessage hands the text to the adapter. The stored copy of the sent
// message arrives later through the event stream; this handler never writes
// to the store.
func (s *Server) sendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return
	}
	if req.Recipient == "" || req.Message == "" {
		c.JSON(http.StatusBadRequest, errorJSON{Error: "recipient and message are required"})
		return
	}

	id, err := s.sender.SendText(c.Request.Context(), req.Recipient, req.Message)
	switch {
	case errors.Is(err, wa.ErrInvalidJID):
		c.JSON(http.StatusBadRequest, errorJSON{Error: err.Error()})
	case errors.Is(err, wa.ErrNotConnected), errors.Is(err, wa.ErrNotLoggedIn):
		c.JSON(http.StatusServiceUnavailable, errorJSON{Error: err.Error()})
	case err != nil:
		s.logger.Error("send failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, errorJSON{Error: "send failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"id": id})
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	s.logger.Error("query failed",
		zap.String("request_id", c.GetString("request_id")),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, errorJSON{Error: "internal error"})
}
