package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finybot/finybot/internal/agent"
	"github.com/finybot/finybot/internal/domain"
	"github.com/finybot/finybot/internal/store"
)

// ChatHandler owns the conversation endpoints. Send streams the agent's
// work over SSE; the other endpoints are plain JSON.
type ChatHandler struct {
	store store.Store
	loop  *agent.Loop
	model agent.Model
	log   zerolog.Logger
}

// NewChatHandler creates a ChatHandler. The model is used directly for
// title generation; the loop owns everything else.
func NewChatHandler(st store.Store, loop *agent.Loop, model agent.Model, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{store: st, loop: loop, model: model, log: log}
}

// List returns the user's chats, most recently active first.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chats, err := h.store.Chats(ctx, UID(ctx))
	if err != nil {
		h.log.Error().Err(err).Msg("list chats failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load chats")
		return
	}
	if chats == nil {
		chats = []domain.Chat{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

// Delete removes a chat and its messages.
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := UID(ctx)
	chatID := chi.URLParam(r, "chatID")

	chat, err := h.store.Chat(ctx, uid, chatID)
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("load chat failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load chat")
		return
	}
	if chat == nil {
		WriteError(w, http.StatusNotFound, "Chat not found")
		return
	}
	if err := h.store.DeleteChat(ctx, uid, chatID); err != nil {
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("delete chat failed")
		WriteError(w, http.StatusInternalServerError, "Failed to delete chat")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"detail": "Chat deleted"})
}

// Messages returns a chat's full message history.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := UID(ctx)
	chatID := chi.URLParam(r, "chatID")

	chat, err := h.store.Chat(ctx, uid, chatID)
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("load chat failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load chat")
		return
	}
	if chat == nil {
		WriteError(w, http.StatusNotFound, "Chat not found")
		return
	}

	msgs, err := h.store.Messages(ctx, uid, chatID)
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("load messages failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	WriteJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// Send processes one user message and streams the agent run as SSE events:
// chat_id first, then tool_call/tool_result pairs as the agent works, then
// message and done. The assistant's reply is persisted when the run ends.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := UID(ctx)

	var body sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		WriteError(w, http.StatusBadRequest, "message is required")
		return
	}

	chatID := body.ConversationID
	isNewChat := chatID == ""
	if isNewChat {
		chatID = uuid.NewString()
		title := body.Message
		if len(title) > 50 {
			title = title[:50]
		}
		if err := h.store.CreateChat(ctx, uid, chatID, title); err != nil {
			h.log.Error().Err(err).Msg("create chat failed")
			WriteError(w, http.StatusInternalServerError, "Failed to create chat")
			return
		}
	} else {
		chat, err := h.store.Chat(ctx, uid, chatID)
		if err != nil {
			h.log.Error().Err(err).Str("chat_id", chatID).Msg("load chat failed")
			WriteError(w, http.StatusInternalServerError, "Failed to load chat")
			return
		}
		if chat == nil {
			WriteError(w, http.StatusNotFound, "Chat not found")
			return
		}
	}

	// History is loaded before the new message is stored; the message itself
	// goes to the agent directly.
	history, err := h.store.Messages(ctx, uid, chatID)
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("load history failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load chat history")
		return
	}
	if _, err := h.store.AddMessage(ctx, uid, chatID, domain.Message{
		ID:        uuid.NewString(),
		Role:      "user",
		Content:   body.Message,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("persist user message failed")
		WriteError(w, http.StatusInternalServerError, "Failed to store message")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	writeSSE(w, flusher, agent.EventChatID, map[string]string{"chat_id": chatID})

	var assistantContent string
	var assistantToolCalls []domain.ToolCall

	h.loop.Run(ctx, uid, body.Message, history, func(e agent.Event) {
		switch e.Type {
		case agent.EventToolCall:
			writeSSE(w, flusher, e.Type, map[string]any{"name": e.Name, "arguments": e.Arguments})
		case agent.EventToolResult:
			writeSSE(w, flusher, e.Type, map[string]any{"name": e.Name, "result": e.Result})
		case agent.EventMessage:
			assistantContent = e.Content
			assistantToolCalls = e.ToolCalls
			writeSSE(w, flusher, e.Type, map[string]any{"content": e.Content, "tool_calls": e.ToolCalls})
		case agent.EventError:
			h.log.Error().Str("chat_id", chatID).Str("error", e.Err).Msg("agent stream error")
			writeSSE(w, flusher, e.Type, map[string]string{"message": "An error occurred while processing your request."})
		case agent.EventDone:
			writeSSE(w, flusher, e.Type, map[string]any{})
		}
	})

	if assistantContent != "" || len(assistantToolCalls) > 0 {
		if _, err := h.store.AddMessage(ctx, uid, chatID, domain.Message{
			ID:        uuid.NewString(),
			Role:      "assistant",
			Content:   assistantContent,
			ToolCalls: assistantToolCalls,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			h.log.Error().Err(err).Str("chat_id", chatID).Msg("persist assistant message failed")
		}
		if err := h.store.TouchChat(ctx, uid, chatID); err != nil {
			h.log.Error().Err(err).Str("chat_id", chatID).Msg("touch chat failed")
		}
	}

	if isNewChat {
		title := agent.GenerateTitle(ctx, h.model, body.Message, h.log)
		if err := h.store.SetChatTitle(ctx, uid, chatID, title); err != nil {
			h.log.Error().Err(err).Str("chat_id", chatID).Msg("set chat title failed")
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event agent.EventType, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	if flusher != nil {
		flusher.Flush()
	}
}
