package core

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/ai-chat/internal/store"
)

type fakeProvider struct {
	mu         sync.Mutex
	chatCalls  []CompletionRequest
	imageCalls []ImageRequest
	reply      string
	imageURL   string
	err        error
	block      chan struct{}
	started    chan struct{}
	onCall     func(ctx context.Context) error
}

func (f *fakeProvider) ChatCompletion(ctx context.Context, apiKey string, req CompletionRequest) (string, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls = append(f.chatCalls, req)
	if f.onCall != nil {
		if err := f.onCall(ctx); err != nil {
			return "", err
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeProvider) GenerateImage(ctx context.Context, apiKey string, req ImageRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls = append(f.imageCalls, req)
	if f.err != nil {
		return "", f.err
	}
	return f.imageURL, nil
}

func (f *fakeProvider) APIKeyPrefix() string { return "sk-" }
func (f *fakeProvider) Name() string         { return "fake" }

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chatCalls) + len(f.imageCalls)
}

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "h:" + p, nil }
func (plainHasher) Compare(h, p string) bool      { return h == "h:"+p }

func newTestService(t *testing.T, llm *fakeProvider, withKey bool) *ChatService {
	t.Helper()
	return newTestServiceWithKV(t, store.NewMemoryStore(), llm, withKey)
}

func newTestServiceWithKV(t *testing.T, kv store.KV, llm *fakeProvider, withKey bool) *ChatService {
	t.Helper()
	messages := store.NewMessageStore(kv)
	settings := store.NewSettingsStore(kv, llm.APIKeyPrefix())
	svc := NewChatService(
		store.NewCredentialStore(kv, plainHasher{}),
		store.NewChatStore(kv, messages),
		messages,
		settings,
		llm,
		nil,
	)
	if withKey {
		require.NoError(t, svc.SetAPIKey(context.Background(), "sk-test"))
	}
	return svc
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n0000")

func TestSendMessage_MissingCredential(t *testing.T) {
	llm := &fakeProvider{reply: "hi"}
	svc := newTestService(t, llm, false)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, "u", "", "hello", nil)
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Zero(t, llm.calls())

	chats, err := svc.ListChats(ctx, "u")
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestSendMessage_EmptyInput(t *testing.T) {
	llm := &fakeProvider{reply: "hi"}
	svc := newTestService(t, llm, true)

	_, err := svc.SendMessage(context.Background(), "u", "", "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Zero(t, llm.calls())
}

func TestSendMessage_CreatesChatWhenNoneSelected(t *testing.T) {
	llm := &fakeProvider{reply: "hello back"}
	svc := newTestService(t, llm, true)
	ctx := context.Background()

	res, err := svc.SendMessage(ctx, "u", "", "hello there", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello there", res.Chat.Title)
	assert.Equal(t, CapabilityTextChat, res.Capability)

	active, err := svc.ActiveChat(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, res.Chat.ID, active)

	msgs, err := svc.GetMessages(ctx, "u", res.Chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hello back", msgs[1].Content)
}

func TestSendMessage_RoutesImageKeywords(t *testing.T) {
	for _, input := range []string{"draw a cat", "Please DRAW a cat now", "a Picture Of the sea", "create image of a dog"} {
		t.Run(input, func(t *testing.T) {
			llm := &fakeProvider{imageURL: "https://img.example/1.png"}
			svc := newTestService(t, llm, true)

			res, err := svc.SendMessage(context.Background(), "u", "", input, &Attachment{MimeType: "image/png", Data: pngBytes})
			require.NoError(t, err)
			assert.Equal(t, CapabilityImageGeneration, res.Capability)
			assert.Equal(t, "Here is your generated image:", res.AssistantMessage.Content)
			assert.Equal(t, "https://img.example/1.png", res.AssistantMessage.Image)
			require.Len(t, llm.imageCalls, 1)
			assert.Equal(t, input, llm.imageCalls[0].Prompt)
			assert.Equal(t, "1024x1024", llm.imageCalls[0].Size)
			assert.Empty(t, llm.chatCalls)
		})
	}
}

func TestSendMessage_VisionWithAttachment(t *testing.T) {
	llm := &fakeProvider{reply: "a cat"}
	svc := newTestService(t, llm, true)
	ctx := context.Background()

	chat, err := svc.CreateChat(ctx, "u", "")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, "u", chat.ID, "earlier", nil)
	require.NoError(t, err)

	res, err := svc.SendMessage(ctx, "u", chat.ID, "what is this?", &Attachment{Name: "cat.png", MimeType: "image/png", Data: pngBytes})
	require.NoError(t, err)
	assert.Equal(t, CapabilityVision, res.Capability)
	assert.True(t, strings.HasPrefix(res.UserMessage.Image, "data:image/png;base64,"))

	require.Len(t, llm.chatCalls, 2)
	req := llm.chatCalls[1]
	assert.Equal(t, CapabilityVision, req.Capability)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "what is this?", req.Messages[0].Content)
	assert.Equal(t, res.UserMessage.Image, req.Messages[0].ImageURL)
}

func TestSendMessage_NonImageAttachmentIgnored(t *testing.T) {
	llm := &fakeProvider{reply: "ok"}
	svc := newTestService(t, llm, true)

	res, err := svc.SendMessage(context.Background(), "u", "", "summarize", &Attachment{Name: "notes.txt", MimeType: "text/plain", Data: []byte("hi")})
	require.NoError(t, err)
	assert.Equal(t, CapabilityTextChat, res.Capability)
	assert.Empty(t, res.UserMessage.Image)

	_, err = svc.SendMessage(context.Background(), "u", "", "", &Attachment{Name: "notes.txt", MimeType: "text/plain", Data: []byte("hi")})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestSendMessage_HistoryCappedAtTen(t *testing.T) {
	llm := &fakeProvider{reply: "ok"}
	svc := newTestService(t, llm, true)
	ctx := context.Background()

	chat, err := svc.CreateChat(ctx, "u", "")
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		_, err := svc.SendMessage(ctx, "u", chat.ID, "message", nil)
		require.NoError(t, err)
	}

	for _, req := range llm.chatCalls {
		assert.LessOrEqual(t, len(req.Messages), HistoryLimit)
	}
	last := llm.chatCalls[len(llm.chatCalls)-1]
	require.Len(t, last.Messages, HistoryLimit)
	assert.Equal(t, store.RoleUser, last.Messages[HistoryLimit-1].Role)
}

func TestSendMessage_RemoteFailureRecorded(t *testing.T) {
	llm := &fakeProvider{err: &RemoteError{StatusCode: 401, Message: "Incorrect API key provided"}}
	svc := newTestService(t, llm, true)
	ctx := context.Background()

	chat, err := svc.CreateChat(ctx, "u", "")
	require.NoError(t, err)

	res, err := svc.SendMessage(ctx, "u", chat.ID, "hello", nil)
	require.NoError(t, err)
	assert.True(t, res.AssistantMessage.IsError)
	assert.True(t, strings.HasPrefix(res.AssistantMessage.Content, "❌ Error: Incorrect API key provided"))
	assert.Equal(t, 1, llm.calls())

	msgs, err := svc.GetMessages(ctx, "u", chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsError)

	got, err := svc.chats.GetChat(ctx, "u", chat.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultChatTitle, got.Title)
}

func TestSendMessage_RenamesDefaultTitleOnce(t *testing.T) {
	llm := &fakeProvider{reply: "ok"}
	svc := newTestService(t, llm, true)
	ctx := context.Background()

	chat, err := svc.CreateChat(ctx, "u", "")
	require.NoError(t, err)
	require.Equal(t, store.DefaultChatTitle, chat.Title)

	first := "this first message is definitely longer than thirty characters"
	_, err = svc.SendMessage(ctx, "u", chat.ID, first, nil)
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, "u", chat.ID, "second message", nil)
	require.NoError(t, err)

	got, err := svc.chats.GetChat(ctx, "u", chat.ID)
	require.NoError(t, err)
	assert.Equal(t, first[:30], got.Title)
}

func TestSendMessage_UnknownChat(t *testing.T) {
	svc := newTestService(t, &fakeProvider{reply: "ok"}, true)
	_, err := svc.SendMessage(context.Background(), "u", "missing", "hello", nil)
	assert.ErrorIs(t, err, store.ErrChatNotFound)
}

func TestSendMessage_OneInFlightPerChat(t *testing.T) {
	llm := &fakeProvider{reply: "ok", block: make(chan struct{}), started: make(chan struct{}, 1)}
	svc := newTestService(t, llm, true)
	ctx := context.Background()

	chat, err := svc.CreateChat(ctx, "u", "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.SendMessage(ctx, "u", chat.ID, "first", nil)
		done <- err
	}()
	<-llm.started

	_, err = svc.SendMessage(ctx, "u", chat.ID, "second", nil)
	assert.ErrorIs(t, err, ErrSendInProgress)

	close(llm.block)
	require.NoError(t, <-done)

	msgs, err := svc.GetMessages(ctx, "u", chat.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestLoginSelectsNewestChat(t *testing.T) {
	svc := newTestService(t, &fakeProvider{}, false)
	ctx := context.Background()

	user, err := svc.Signup(ctx, "Alice@Example.com", "pw", "Alice")
	require.NoError(t, err)

	_, active, err := svc.Login(ctx, "alice@example.com", "pw")
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = svc.CreateChat(ctx, user.ID, "older")
	require.NoError(t, err)
	newer, err := svc.CreateChat(ctx, user.ID, "newer")
	require.NoError(t, err)
	chats, err := svc.ListChats(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, svc.SelectChat(ctx, user.ID, chats[1].ID))

	_, active, err = svc.Login(ctx, "ALICE@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, active)

	_, _, err = svc.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)
}

func TestDeleteChatMovesSelection(t *testing.T) {
	svc := newTestService(t, &fakeProvider{reply: "ok"}, true)
	ctx := context.Background()

	a, err := svc.CreateChat(ctx, "u", "a")
	require.NoError(t, err)
	b, err := svc.CreateChat(ctx, "u", "b")
	require.NoError(t, err)

	// b is active; deleting a leaves it alone.
	active, err := svc.DeleteChat(ctx, "u", a.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active)

	c, err := svc.CreateChat(ctx, "u", "c")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, "u", c.ID, "hello", nil)
	require.NoError(t, err)

	active, err = svc.DeleteChat(ctx, "u", c.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active)

	_, err = svc.GetMessages(ctx, "u", c.ID)
	assert.ErrorIs(t, err, store.ErrChatNotFound)
	msgs, err := svc.messages.ListMessages(ctx, "u", c.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	active, err = svc.DeleteChat(ctx, "u", b.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSelectAndRenameUnknownChat(t *testing.T) {
	svc := newTestService(t, &fakeProvider{}, false)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SelectChat(ctx, "u", "nope"), store.ErrChatNotFound)
	assert.ErrorIs(t, svc.RenameChat(ctx, "u", "nope", "x"), store.ErrChatNotFound)

	chat, err := svc.CreateChat(ctx, "u", "")
	require.NoError(t, err)
	assert.ErrorIs(t, svc.RenameChat(ctx, "u", chat.ID, "  "), store.ErrMissingFields)
	require.NoError(t, svc.RenameChat(ctx, "u", chat.ID, "Renamed"))

	chats, err := svc.ListChats(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", chats[0].Title)
}

func TestHasAPIKey(t *testing.T) {
	svc := newTestService(t, &fakeProvider{}, false)
	ctx := context.Background()

	ok, err := svc.HasAPIKey(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, svc.SetAPIKey(ctx, "bad-key"), store.ErrInvalidAPIKey)
	require.NoError(t, svc.SetAPIKey(ctx, "sk-abc"))

	ok, err = svc.HasAPIKey(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSendMessage_CallerCancelStillRecordsReply(t *testing.T) {
	kv, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var providerCtxErr error
	llm := &fakeProvider{onCall: func(callCtx context.Context) error {
		// The client disconnects while the provider is working.
		cancel()
		providerCtxErr = callCtx.Err()
		return context.Canceled
	}}
	svc := newTestServiceWithKV(t, kv, llm, true)

	chat, err := svc.CreateChat(context.Background(), "u", "")
	require.NoError(t, err)

	res, err := svc.SendMessage(ctx, "u", chat.ID, "hello", nil)
	require.NoError(t, err)
	assert.NoError(t, providerCtxErr)
	assert.True(t, res.AssistantMessage.IsError)

	msgs, err := svc.GetMessages(context.Background(), "u", chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.True(t, msgs[1].IsError)
}

func TestSendMessage_CallerCancelAfterSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	llm := &fakeProvider{reply: "done", onCall: func(context.Context) error {
		cancel()
		return nil
	}}
	svc := newTestService(t, llm, true)

	chat, err := svc.CreateChat(context.Background(), "u", "")
	require.NoError(t, err)

	res, err := svc.SendMessage(ctx, "u", chat.ID, "hello", nil)
	require.NoError(t, err)
	assert.False(t, res.AssistantMessage.IsError)
	assert.Equal(t, "hello", res.Chat.Title)
}

func TestSendMessage_ManualRenameDuringSendWins(t *testing.T) {
	llm := &fakeProvider{reply: "ok", block: make(chan struct{}), started: make(chan struct{}, 1)}
	svc := newTestService(t, llm, true)
	ctx := context.Background()

	chat, err := svc.CreateChat(ctx, "u", "")
	require.NoError(t, err)

	done := make(chan *SendResult, 1)
	go func() {
		res, err := svc.SendMessage(ctx, "u", chat.ID, "auto title from input", nil)
		assert.NoError(t, err)
		done <- res
	}()
	<-llm.started

	require.NoError(t, svc.RenameChat(ctx, "u", chat.ID, "My manual title"))
	close(llm.block)
	res := <-done

	require.NotNil(t, res)
	assert.Equal(t, "My manual title", res.Chat.Title)
	got, err := svc.chats.GetChat(ctx, "u", chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "My manual title", got.Title)
}

func TestSendMessage_UsesActiveChatWhenNoneGiven(t *testing.T) {
	llm := &fakeProvider{reply: "ok"}
	svc := newTestService(t, llm, true)
	ctx := context.Background()

	first, err := svc.SendMessage(ctx, "u", "", "hello", nil)
	require.NoError(t, err)
	second, err := svc.SendMessage(ctx, "u", "", "again", nil)
	require.NoError(t, err)
	assert.Equal(t, first.Chat.ID, second.Chat.ID)

	other, err := svc.CreateChat(ctx, "u", "Other")
	require.NoError(t, err)
	third, err := svc.SendMessage(ctx, "u", "", "into other", nil)
	require.NoError(t, err)
	assert.Equal(t, other.ID, third.Chat.ID)

	chats, err := svc.ListChats(ctx, "u")
	require.NoError(t, err)
	assert.Len(t, chats, 2)

	// A selection pointing at a deleted chat starts a fresh one.
	require.NoError(t, svc.settings.SetActiveChat(ctx, "u", "gone"))
	fourth, err := svc.SendMessage(ctx, "u", "", "fresh", nil)
	require.NoError(t, err)
	assert.NotEqual(t, other.ID, fourth.Chat.ID)
	assert.NotEqual(t, first.Chat.ID, fourth.Chat.ID)
}
