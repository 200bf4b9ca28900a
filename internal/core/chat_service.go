package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"gwi.com/ai-chat/internal/config"
	"gwi.com/ai-chat/internal/store"
	"gwi.com/ai-chat/internal/utils"
)

const (
	// HistoryLimit caps the text-chat payload; oldest messages are dropped first.
	HistoryLimit   = 10
	TitleMaxLength = 30

	imageReplyText = "Here is your generated image:"
)

type SendResult struct {
	Chat             *store.Chat
	UserMessage      *store.Message
	AssistantMessage *store.Message
	Capability       Capability
}

type ChatService struct {
	credentials *store.CredentialStore
	chats       *store.ChatStore
	messages    *store.MessageStore
	settings    *store.SettingsStore
	llm         LLMProvider
	router      *Router

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewChatService wires the stores to a provider. A nil router means
// DefaultRouter.
func NewChatService(credentials *store.CredentialStore, chats *store.ChatStore, messages *store.MessageStore,
	settings *store.SettingsStore, llm LLMProvider, router *Router) *ChatService {
	if router == nil {
		router = DefaultRouter()
	}
	return &ChatService{
		credentials: credentials,
		chats:       chats,
		messages:    messages,
		settings:    settings,
		llm:         llm,
		router:      router,
		inFlight:    make(map[string]struct{}),
	}
}

func (s *ChatService) Signup(ctx context.Context, email, password, name string) (*store.User, error) {
	return s.credentials.Register(ctx, email, password, name)
}

// Login authenticates the user and selects their newest chat, if any.
func (s *ChatService) Login(ctx context.Context, email, password string) (*store.User, string, error) {
	user, err := s.credentials.Authenticate(ctx, email, password)
	if err != nil {
		return nil, "", err
	}

	chats, err := s.chats.ListChats(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	active := ""
	if len(chats) > 0 {
		active = chats[0].ID
	}
	if err := s.settings.SetActiveChat(ctx, user.ID, active); err != nil {
		return nil, "", err
	}
	return user, active, nil
}

func (s *ChatService) GetUser(ctx context.Context, userID string) (*store.User, error) {
	return s.credentials.GetUser(ctx, userID)
}

// ActiveChat returns the selected chat id, or "" when nothing is selected or
// the selection points at a chat that no longer exists.
func (s *ChatService) ActiveChat(ctx context.Context, userID string) (string, error) {
	chatID, err := s.settings.ActiveChat(ctx, userID)
	if err != nil || chatID == "" {
		return "", err
	}
	if _, err := s.chats.GetChat(ctx, userID, chatID); err != nil {
		if errors.Is(err, store.ErrChatNotFound) {
			return "", nil
		}
		return "", err
	}
	return chatID, nil
}

func (s *ChatService) SelectChat(ctx context.Context, userID, chatID string) error {
	if chatID != "" {
		if _, err := s.chats.GetChat(ctx, userID, chatID); err != nil {
			return err
		}
	}
	return s.settings.SetActiveChat(ctx, userID, chatID)
}

func (s *ChatService) ListChats(ctx context.Context, userID string) ([]store.Chat, error) {
	return s.chats.ListChats(ctx, userID)
}

// CreateChat prepends a new chat and makes it the active selection.
func (s *ChatService) CreateChat(ctx context.Context, userID, title string) (*store.Chat, error) {
	chat, err := s.chats.CreateChat(ctx, userID, strings.TrimSpace(title))
	if err != nil {
		return nil, err
	}
	if err := s.settings.SetActiveChat(ctx, userID, chat.ID); err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *ChatService) RenameChat(ctx context.Context, userID, chatID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return store.ErrMissingFields
	}
	if _, err := s.chats.GetChat(ctx, userID, chatID); err != nil {
		return err
	}
	return s.chats.RenameChat(ctx, userID, chatID, title)
}

// DeleteChat removes the chat and its transcript. When the deleted chat was
// selected, the selection moves to the new head of the list or to none.
// It returns the resulting active chat id.
func (s *ChatService) DeleteChat(ctx context.Context, userID, chatID string) (string, error) {
	active, err := s.settings.ActiveChat(ctx, userID)
	if err != nil {
		return "", err
	}

	remaining, err := s.chats.DeleteChat(ctx, userID, chatID)
	if err != nil {
		return "", err
	}

	if active != chatID {
		return active, nil
	}
	next := ""
	if len(remaining) > 0 {
		next = remaining[0].ID
	}
	if err := s.settings.SetActiveChat(ctx, userID, next); err != nil {
		return "", err
	}
	return next, nil
}

func (s *ChatService) GetMessages(ctx context.Context, userID, chatID string) ([]store.Message, error) {
	if _, err := s.chats.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.messages.ListMessages(ctx, userID, chatID)
}

func (s *ChatService) SetAPIKey(ctx context.Context, key string) error {
	return s.settings.SetAPIKey(ctx, key)
}

func (s *ChatService) HasAPIKey(ctx context.Context) (bool, error) {
	key, err := s.settings.APIKey(ctx)
	if err != nil {
		return false, err
	}
	return key != "", nil
}

// SendMessage appends the user's message, makes exactly one remote call and
// appends the assistant's reply. Remote failures are recorded in the
// transcript as an error message and do not surface as an error here.
// An empty chatID sends to the active chat, or creates one when none is
// selected.
func (s *ChatService) SendMessage(ctx context.Context, userID, chatID, input string, att *Attachment) (*SendResult, error) {
	if err := validateAttachment(att); err != nil {
		log.Printf("Ignoring attachment %q for user %s: %v", att.Name, userID, err)
		att = nil
	}
	if strings.TrimSpace(input) == "" && att == nil {
		return nil, ErrEmptyInput
	}

	apiKey, err := s.settings.APIKey(ctx)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, ErrMissingCredential
	}

	if chatID == "" {
		if chatID, err = s.ActiveChat(ctx, userID); err != nil {
			return nil, err
		}
	}
	var chat *store.Chat
	if chatID == "" {
		chat, err = s.CreateChat(ctx, userID, utils.Truncate(input, TitleMaxLength))
	} else {
		chat, err = s.chats.GetChat(ctx, userID, chatID)
	}
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(userID, chat.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	userMsg := &store.Message{Role: store.RoleUser, Content: input}
	if att != nil {
		userMsg.Image = att.DataURI()
	}
	if err := s.messages.AppendMessage(ctx, userID, chat.ID, userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	// Once the user message is recorded the send runs to completion even if
	// the caller goes away; only the provider timeout bounds it.
	ctx = context.WithoutCancel(ctx)
	dispatchCtx := ctx
	if timeout := config.AppConfig.LLMTimeout; timeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	capability := s.router.Route(RouteInput{Text: input, HasImage: att != nil})
	if config.AppConfig.Debug() {
		log.Printf("DEBUG: chat %s routed to %s via %s", chat.ID, capability, s.llm.Name())
	}

	assistantMsg, err := s.dispatch(dispatchCtx, apiKey, userID, chat.ID, capability, input, userMsg.Image)
	if err != nil {
		log.Printf("Provider %s failed for chat %s: %v", s.llm.Name(), chat.ID, err)
		assistantMsg = &store.Message{
			Role:    store.RoleAssistant,
			Content: errorReply(err),
			IsError: true,
		}
	}
	if err := s.messages.AppendMessage(ctx, userID, chat.ID, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}

	if !assistantMsg.IsError {
		if title := utils.Truncate(input, TitleMaxLength); strings.TrimSpace(title) != "" {
			// The title may have been changed while the provider was working.
			renamed, err := s.chats.RenameChatIf(ctx, userID, chat.ID, store.DefaultChatTitle, title)
			if err != nil {
				log.Printf("Failed to rename chat %s: %v", chat.ID, err)
			}
			if current, err := s.chats.GetChat(ctx, userID, chat.ID); err == nil {
				chat = current
			} else if renamed {
				chat.Title = title
			}
		}
	}

	return &SendResult{
		Chat:             chat,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Capability:       capability,
	}, nil
}

func (s *ChatService) dispatch(ctx context.Context, apiKey, userID, chatID string, capability Capability, input, imageURI string) (*store.Message, error) {
	switch capability {
	case CapabilityImageGeneration:
		url, err := s.llm.GenerateImage(ctx, apiKey, ImageRequest{Prompt: input, Size: defaultImageSize})
		if err != nil {
			return nil, err
		}
		return &store.Message{Role: store.RoleAssistant, Content: imageReplyText, Image: url}, nil

	case CapabilityVision:
		reply, err := s.llm.ChatCompletion(ctx, apiKey, CompletionRequest{
			Capability: CapabilityVision,
			Messages:   []ChatMessage{{Role: store.RoleUser, Content: input, ImageURL: imageURI}},
		})
		if err != nil {
			return nil, err
		}
		return &store.Message{Role: store.RoleAssistant, Content: reply}, nil

	default:
		history, err := s.messages.ListMessages(ctx, userID, chatID)
		if err != nil {
			return nil, err
		}
		reply, err := s.llm.ChatCompletion(ctx, apiKey, CompletionRequest{
			Capability: CapabilityTextChat,
			Messages:   buildHistory(history, HistoryLimit),
		})
		if err != nil {
			return nil, err
		}
		return &store.Message{Role: store.RoleAssistant, Content: reply}, nil
	}
}

// buildHistory keeps role and content of the last limit messages.
func buildHistory(messages []store.Message, limit int) []ChatMessage {
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	out := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func errorReply(err error) string {
	msg := err.Error()
	var remote *RemoteError
	if errors.As(err, &remote) {
		msg = remote.Message
	}
	return fmt.Sprintf("❌ Error: %s\n\nPlease check:\n• Your API key is valid\n• You have sufficient credits\n• The model is available", msg)
}

func (s *ChatService) acquire(userID, chatID string) (func(), error) {
	key := userID + "\x00" + chatID

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return nil, ErrSendInProgress
	}
	s.inFlight[key] = struct{}{}

	return func() {
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
	}, nil
}
