package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"gwi.com/ai-chat/internal/auth"
	"gwi.com/ai-chat/internal/config"
	"gwi.com/ai-chat/internal/core"
	"gwi.com/ai-chat/internal/store"
)

type contextKey string

const userIDKey contextKey = "userID"

type APIHandler struct {
	chatService *core.ChatService
	sendLimiter *SendLimiter
}

// NewAPIHandler builds the handlers; a nil limiter leaves sends unthrottled.
func NewAPIHandler(cs *core.ChatService, limiter *SendLimiter) *APIHandler {
	return &APIHandler{chatService: cs, sendLimiter: limiter}
}

func userIDFrom(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey).(string)
	return userID
}

// writeError maps service errors to status codes. Unknown errors are logged
// and reported as 500 with the given fallback message.
func writeError(w http.ResponseWriter, err error, fallback string) {
	var status int
	switch {
	case errors.Is(err, store.ErrDuplicateUser), errors.Is(err, core.ErrSendInProgress):
		status = http.StatusConflict
	case errors.Is(err, store.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, core.ErrMissingCredential):
		status = http.StatusPreconditionRequired
	case errors.Is(err, store.ErrInvalidAPIKey), errors.Is(err, core.ErrEmptyInput), errors.Is(err, store.ErrMissingFields),
		errors.Is(err, store.ErrPasswordTooLong):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrChatNotFound):
		status = http.StatusNotFound
	default:
		log.Printf("%s: %v", fallback, err)
		http.Error(w, fallback, http.StatusInternalServerError)
		return
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		if _, err := h.chatService.GetUser(r.Context(), userID); err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				http.Error(w, "User not found", http.StatusUnauthorized)
				return
			}
			log.Printf("Error in JWTAuthMiddleware for user %s: %v", userID, err)
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type AuthResponse struct {
	User         *store.User `json:"user"`
	Token        string      `json:"token"`
	ActiveChatID string      `json:"active_chat_id"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.chatService.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, err, "Failed to create user")
		return
	}

	token, err := auth.GenerateJWT(user.ID)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", user.ID, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{User: user, Token: token})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, active, err := h.chatService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err, "Failed to log in")
		return
	}

	token, err := auth.GenerateJWT(user.ID)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", user.ID, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{User: user, Token: token, ActiveChatID: active})
}

type SessionResponse struct {
	User         *store.User `json:"user"`
	ActiveChatID string      `json:"active_chat_id"`
}

func (h *APIHandler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)

	user, err := h.chatService.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, err, "Failed to load session")
		return
	}
	active, err := h.chatService.ActiveChat(r.Context(), userID)
	if err != nil {
		writeError(w, err, "Failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{User: user, ActiveChatID: active})
}

type SelectChatRequest struct {
	ChatID string `json:"chat_id"`
}

func (h *APIHandler) SelectChatHandler(w http.ResponseWriter, r *http.Request) {
	var req SelectChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.chatService.SelectChat(r.Context(), userIDFrom(r), req.ChatID); err != nil {
		writeError(w, err, "Failed to select chat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type CreateChatRequest struct {
	Title string `json:"title,omitempty"`
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	chat, err := h.chatService.CreateChat(r.Context(), userIDFrom(r), req.Title)
	if err != nil {
		writeError(w, err, "Failed to create chat")
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chatService.ListChats(r.Context(), userIDFrom(r))
	if err != nil {
		writeError(w, err, "Failed to list chats")
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

type RenameChatRequest struct {
	Title string `json:"title"`
}

func (h *APIHandler) RenameChatHandler(w http.ResponseWriter, r *http.Request) {
	var req RenameChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.chatService.RenameChat(r.Context(), userIDFrom(r), chi.URLParam(r, "chatID"), req.Title); err != nil {
		writeError(w, err, "Failed to rename chat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type DeleteChatResponse struct {
	ActiveChatID string `json:"active_chat_id"`
}

func (h *APIHandler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	active, err := h.chatService.DeleteChat(r.Context(), userIDFrom(r), chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, err, "Failed to delete chat")
		return
	}
	writeJSON(w, http.StatusOK, DeleteChatResponse{ActiveChatID: active})
}

func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatService.GetMessages(r.Context(), userIDFrom(r), chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, err, "Failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type AttachmentPayload struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type PostMessageRequest struct {
	Content    string             `json:"content"`
	Attachment *AttachmentPayload `json:"attachment,omitempty"`
}

type PostMessageResponse struct {
	Chat             *store.Chat    `json:"chat"`
	UserMessage      *store.Message `json:"user_message"`
	AssistantMessage *store.Message `json:"assistant_message"`
	Capability       string         `json:"capability"`
}

// PostMessageHandler serves both /chats/{chatID}/messages and /messages; the
// latter starts a new chat.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	chatID := chi.URLParam(r, "chatID")

	limit := config.AppConfig.MaxMessageBytes
	if limit <= 0 {
		limit = config.DefaultMaxMessageBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("Message body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var att *core.Attachment
	if req.Attachment != nil {
		data, err := base64.StdEncoding.DecodeString(req.Attachment.Data)
		if err != nil {
			http.Error(w, "Attachment data must be base64", http.StatusBadRequest)
			return
		}
		att = &core.Attachment{Name: req.Attachment.Name, MimeType: req.Attachment.MimeType, Data: data}
	}

	res, err := h.chatService.SendMessage(r.Context(), userID, chatID, req.Content, att)
	if err != nil {
		writeError(w, err, "Failed to post message")
		return
	}

	writeJSON(w, http.StatusOK, PostMessageResponse{
		Chat:             res.Chat,
		UserMessage:      res.UserMessage,
		AssistantMessage: res.AssistantMessage,
		Capability:       string(res.Capability),
	})
}

type APIKeyRequest struct {
	APIKey string `json:"api_key"`
}

func (h *APIHandler) SetAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	var req APIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.chatService.SetAPIKey(r.Context(), req.APIKey); err != nil {
		writeError(w, err, "Failed to save API key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	configured, err := h.chatService.HasAPIKey(r.Context())
	if err != nil {
		writeError(w, err, "Failed to load API key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"configured": configured})
}
