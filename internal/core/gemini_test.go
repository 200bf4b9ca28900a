package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToGeminiContents(t *testing.T) {
	history, last, err := toGeminiContents([]ChatMessage{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
		{Role: "user", Content: "what is this?", ImageURL: "data:image/png;base64,AAEC"},
	})
	require.NoError(t, err)

	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, genai.Text("hi"), history[1].Parts[0])

	assert.Equal(t, "user", last.Role)
	require.Len(t, last.Parts, 2)
	blob, ok := last.Parts[1].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/png", blob.MIMEType)
	assert.Equal(t, []byte{0, 1, 2}, blob.Data)
}

func TestToGeminiContents_SkipsEmptyText(t *testing.T) {
	history, last, err := toGeminiContents([]ChatMessage{
		{Role: "user", Content: "", ImageURL: "data:image/png;base64,AAEC"},
		{Role: "assistant", Content: "a small square"},
		{Role: "user", Content: ""},
		{Role: "user", Content: "and now?"},
	})
	require.NoError(t, err)

	require.Len(t, history, 2)
	require.Len(t, history[0].Parts, 1)
	_, isBlob := history[0].Parts[0].(genai.Blob)
	assert.True(t, isBlob)
	for _, c := range append(history, last) {
		for _, p := range c.Parts {
			if txt, ok := p.(genai.Text); ok {
				assert.NotEmpty(t, string(txt))
			}
		}
	}
	assert.Equal(t, []genai.Part{genai.Text("and now?")}, last.Parts)
}

func TestToGeminiContents_Errors(t *testing.T) {
	_, _, err := toGeminiContents(nil)
	assert.Error(t, err)

	_, _, err = toGeminiContents([]ChatMessage{{Role: "assistant", Content: "hi"}})
	assert.Error(t, err)

	_, _, err = toGeminiContents([]ChatMessage{{Role: "user", Content: ""}})
	assert.Error(t, err)

	_, _, err = toGeminiContents([]ChatMessage{{Role: "user", Content: "x", ImageURL: "https://not-inline"}})
	assert.ErrorIs(t, err, ErrMalformedAttachment)
}

func TestGemini_ImageGenerationUnsupported(t *testing.T) {
	p := NewGeminiProvider("")
	assert.Equal(t, "AIza", p.APIKeyPrefix())

	_, err := p.GenerateImage(context.Background(), "AIza-key", ImageRequest{Prompt: "draw a cat"})
	var remote *RemoteError
	assert.True(t, errors.As(err, &remote))
}
