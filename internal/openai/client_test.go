package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportcore/internal/config"
	"supportcore/internal/models"
)

type fakeAPI struct {
	embedErr   error
	chatErr    error
	reply      string
	lastChat   openai.ChatCompletionRequest
	lastEmbed  openai.EmbeddingRequest
	embedCalls int
	chatCalls  int
}

func (f *fakeAPI) CreateEmbeddings(_ context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.embedCalls++
	req := conv.Convert()
	f.lastEmbed = req
	if f.embedErr != nil {
		return openai.EmbeddingResponse{}, f.embedErr
	}
	inputs, _ := req.Input.([]string)
	resp := openai.EmbeddingResponse{Usage: openai.Usage{PromptTokens: 3, TotalTokens: 3}}
	// Return out of order to exercise index placement
	for i := len(inputs) - 1; i >= 0; i-- {
		resp.Data = append(resp.Data, openai.Embedding{Index: i, Embedding: []float32{float32(i), 0.5}})
	}
	return resp, nil
}

func (f *fakeAPI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.chatCalls++
	f.lastChat = req
	if f.chatErr != nil {
		return openai.ChatCompletionResponse{}, f.chatErr
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}},
		Usage:   openai.Usage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14},
	}, nil
}

type usageSpy struct {
	operations []string
}

func (u *usageSpy) RecordOpenAIUsage(_ context.Context, operation string, _ models.OpenAIUsage) {
	u.operations = append(u.operations, operation)
}

func newTestClient(primary, fallback api) *Client {
	return &Client{
		primary:      primary,
		fallback:     fallback,
		gptModel:     "gpt-test",
		embedModel:   openai.SmallEmbedding3,
		providerName: "test",
		logger:       zerolog.Nop(),
	}
}

func TestNewClient_NoProvider(t *testing.T) {
	client, err := NewClient(&config.Config{OpenAITimeout: 5}, zerolog.Nop())
	assert.Nil(t, client)
	assert.Error(t, err)
}

func TestNewClient_ProviderSelection(t *testing.T) {
	client, err := NewClient(&config.Config{OpenAIKey: "sk-test", OpenAITimeout: 5}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "OpenAI", client.GetProviderName())
	assert.Nil(t, client.fallback)

	client, err = NewClient(&config.Config{
		OpenAIKey:                      "sk-test",
		AzureOpenAIEndpoint:            "https://example.openai.azure.com",
		AzureOpenAIKey:                 "azure-key",
		AzureOpenAIGPTDeployment:       "gpt-deploy",
		AzureOpenAIEmbeddingDeployment: "embed-deploy",
		OpenAITimeout:                  5,
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "Azure OpenAI", client.GetProviderName())
	assert.Equal(t, "gpt-deploy", client.GetGPTModel())
	assert.Equal(t, "embed-deploy", client.GetEmbeddingModel())
	assert.NotNil(t, client.fallback)
}

func TestClient_CreateEmbeddingsOrdersByIndex(t *testing.T) {
	client := newTestClient(&fakeAPI{}, nil)

	embeddings, err := client.CreateEmbeddings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, embeddings, 3)
	assert.Equal(t, float32(0), embeddings[0][0])
	assert.Equal(t, float32(2), embeddings[2][0])
}

func TestClient_EmbedFallback(t *testing.T) {
	primary := &fakeAPI{embedErr: errors.New("azure unavailable")}
	fallback := &fakeAPI{}
	spy := &usageSpy{}
	client := newTestClient(primary, fallback)
	client.SetUsageRecorder(spy)

	embedding, err := client.Embed(context.Background(), "  refund policy  ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5}, embedding)
	assert.Equal(t, 1, primary.embedCalls)
	assert.Equal(t, 1, fallback.embedCalls)
	assert.Equal(t, openai.SmallEmbedding3, fallback.lastEmbed.Model)
	assert.Equal(t, []string{"embedding"}, spy.operations)
}

func TestClient_EmbedEmptyText(t *testing.T) {
	primary := &fakeAPI{}
	client := newTestClient(primary, nil)

	_, err := client.Embed(context.Background(), "   ")
	assert.Error(t, err)
	assert.Equal(t, 0, primary.embedCalls)
}

func TestClient_Query(t *testing.T) {
	primary := &fakeAPI{reply: "true: customer thanked the agent"}
	client := newTestClient(primary, nil)

	reply, err := client.Query(context.Background(), "classify", []models.ChatMessage{
		{Role: "user", Content: "It works, thanks!"},
	}, 100, 0.1)
	require.NoError(t, err)
	assert.Equal(t, "true: customer thanked the agent", reply)

	require.Len(t, primary.lastChat.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, primary.lastChat.Messages[0].Role)
	assert.Equal(t, "classify", primary.lastChat.Messages[0].Content)
	assert.Equal(t, 100, primary.lastChat.MaxTokens)
	assert.Equal(t, float32(0.1), primary.lastChat.Temperature)
}

func TestClient_QueryBothProvidersFail(t *testing.T) {
	client := newTestClient(&fakeAPI{chatErr: errors.New("primary")}, &fakeAPI{chatErr: errors.New("fallback")})

	_, err := client.Query(context.Background(), "classify", nil, 100, 0.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both providers failed")
}
