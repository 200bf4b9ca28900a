package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"gwi.com/ai-chat/internal/utils"
)

const defaultGeminiModel = "gemini-1.5-flash-latest"

// GeminiProvider opens a client per call since the API key is supplied by
// the user at runtime and can change between requests.
type GeminiProvider struct {
	model string
}

func NewGeminiProvider(model string) *GeminiProvider {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{model: model}
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) APIKeyPrefix() string {
	return "AIza"
}

func (p *GeminiProvider) ChatCompletion(ctx context.Context, apiKey string, req CompletionRequest) (string, error) {
	history, last, err := toGeminiContents(req.Messages)
	if err != nil {
		return "", err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create GenAI client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}()

	model := client.GenerativeModel(p.model)
	temp := float32(defaultTemperature)
	maxTokens := int32(defaultMaxTokens)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	chatSession := model.StartChat()
	chatSession.History = history

	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", &RemoteError{Message: err.Error()}
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &RemoteError{Message: "empty response from gemini"}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}
	if responseText.Len() == 0 {
		return "", &RemoteError{Message: "gemini returned no text"}
	}
	return responseText.String(), nil
}

func (p *GeminiProvider) GenerateImage(ctx context.Context, apiKey string, req ImageRequest) (string, error) {
	return "", &RemoteError{Message: fmt.Sprintf("image generation is not supported by model %s", p.model)}
}

// toGeminiContents splits the conversation into history and the final user
// turn that SendMessage expects.
func toGeminiContents(messages []ChatMessage) ([]*genai.Content, *genai.Content, error) {
	if len(messages) == 0 {
		return nil, nil, fmt.Errorf("prompt history is empty for chat completion")
	}

	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}

		// Gemini rejects empty text parts; image-only turns carry just the blob.
		var parts []genai.Part
		if m.Content != "" {
			parts = append(parts, genai.Text(m.Content))
		}
		if m.ImageURL != "" {
			mime, data, err := utils.DecodeDataURI(m.ImageURL)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrMalformedAttachment, err)
			}
			parts = append(parts, genai.ImageData(strings.TrimPrefix(mime, "image/"), data))
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("prompt history has no content for chat completion")
	}
	last := contents[len(contents)-1]
	if last.Role != "user" {
		return nil, nil, fmt.Errorf("last message in history is not from 'user', cannot proceed with chat completion")
	}
	return contents[:len(contents)-1], last, nil
}
