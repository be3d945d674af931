package ingest

import (
	"context"
	"time"

	"github.com/mmartins/wamirror/internal/bus"
	"github.com/mmartins/wamirror/internal/store"
	"go.uber.org/zap"
)

// Engine drains "wa." events from the bus and applies them to the store
// through the reconciler. A single goroutine owns all writes, so database
// access needs no further coordination. A failed item is logged and skipped;
// the stream keeps flowing.
type Engine struct {
	rec    *Reconciler
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc

	// Cumulative history counters, touched only by the engine goroutine
	// outside tests.
	totalChats    int
	totalMessages int
}

// NewEngine creates a new ingestion engine.
func NewEngine(rec *Reconciler, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		rec:    rec,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to inbound WhatsApp events and processes them until the
// context is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("wa.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case "wa.message":
		msg, ok := evt.Payload.(*store.Message)
		if !ok {
			return
		}
		if err := e.rec.ApplyMessage(msg); err != nil {
			e.logger.Error("failed to apply message",
				zap.Error(err),
				zap.String("chat_jid", msg.ChatJID),
				zap.String("msg_id", msg.ID))
		}
	case "wa.contact", "wa.chat":
		patch, ok := evt.Payload.(*store.ChatPatch)
		if !ok {
			return
		}
		if err := e.rec.ApplyChatPatch(patch); err != nil {
			e.logger.Error("failed to apply chat patch",
				zap.Error(err),
				zap.String("jid", patch.JID))
		}
	case "wa.history":
		batch, ok := evt.Payload.(*store.HistoryBatch)
		if !ok {
			return
		}
		e.applyHistory(batch)
	}
}

func (e *Engine) applyHistory(batch *store.HistoryBatch) {
	chats, messages := e.rec.ApplyHistoryBatch(batch)

	e.totalChats += chats
	e.totalMessages += messages
	e.logger.Info("history batch applied",
		zap.Int("chats", chats),
		zap.Int("messages", messages),
		zap.Int("total_chats", e.totalChats),
		zap.Int("total_messages", e.totalMessages))

	e.bus.Publish(bus.Event{
		Kind:      "sync.history_applied",
		Timestamp: time.Now(),
		Payload: map[string]int{
			"chats":    chats,
			"messages": messages,
		},
	})
}
