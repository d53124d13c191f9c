// Package openai provides a unified client for OpenAI API access
// with support for both Azure OpenAI (primary) and OpenAI platform (fallback).
// It backs both the embedding provider and the LLM query service.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"supportcore/internal/config"
	"supportcore/internal/models"
	"supportcore/internal/utils"
)

// maxEmbeddingInputRunes keeps embedding input under the model context window
const maxEmbeddingInputRunes = 24000

// api is the subset of the go-openai client used here
type api interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// UsageRecorder receives token usage after each successful call
type UsageRecorder interface {
	RecordOpenAIUsage(ctx context.Context, operation string, usage models.OpenAIUsage)
}

// Client wraps OpenAI client with Azure OpenAI support and fallback capability
type Client struct {
	primary      api
	fallback     api
	gptModel     string
	embedModel   openai.EmbeddingModel
	providerName string
	usage        UsageRecorder
	logger       zerolog.Logger
}

// NewClient creates a new OpenAI client with Azure as primary and OpenAI as fallback
func NewClient(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	client := &Client{
		logger: logger.With().Str("component", "openai").Logger(),
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.OpenAITimeout) * time.Second}

	if cfg.UseAzureOpenAI() {
		azureConfig := openai.DefaultAzureConfig(cfg.AzureOpenAIKey, cfg.AzureOpenAIEndpoint)
		azureConfig.HTTPClient = httpClient
		client.primary = openai.NewClientWithConfig(azureConfig)
		client.gptModel = cfg.AzureOpenAIGPTDeployment
		client.embedModel = openai.EmbeddingModel(cfg.AzureOpenAIEmbeddingDeployment)
		client.providerName = "Azure OpenAI"

		client.logger.Info().Str("endpoint", cfg.AzureOpenAIEndpoint).Msg("Primary provider: Azure OpenAI")
	}

	if cfg.HasOpenAIFallback() {
		openaiConfig := openai.DefaultConfig(cfg.OpenAIKey)
		openaiConfig.HTTPClient = httpClient
		platform := openai.NewClientWithConfig(openaiConfig)

		if client.primary == nil {
			client.primary = platform
			client.gptModel = openai.GPT4oMini
			client.embedModel = openai.SmallEmbedding3
			client.providerName = "OpenAI"

			client.logger.Info().Msg("Primary provider: OpenAI (Azure not configured)")
		} else {
			client.fallback = platform
			client.logger.Info().Msg("Fallback provider: OpenAI")
		}
	}

	if client.primary == nil {
		return nil, fmt.Errorf("no OpenAI provider configured: set AZURE_OPENAI_ENDPOINT + AZURE_OPENAI_KEY or OPENAI_API_KEY")
	}

	return client, nil
}

// SetUsageRecorder attaches a recorder for token usage
func (c *Client) SetUsageRecorder(recorder UsageRecorder) {
	c.usage = recorder
}

func (c *Client) recordUsage(ctx context.Context, operation, model string, usage openai.Usage) {
	if c.usage == nil {
		return
	}
	c.usage.RecordOpenAIUsage(ctx, operation, models.OpenAIUsage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		Model:            model,
	})
}

// CreateEmbeddings generates embeddings for the given texts
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	model := c.embedModel
	resp, err := c.primary.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: model,
	})

	if err != nil && c.fallback != nil {
		c.logger.Warn().Err(err).Msg("Primary embeddings failed, trying fallback")
		model = openai.SmallEmbedding3
		resp, err = c.fallback.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: model,
		})
		if err != nil {
			return nil, fmt.Errorf("both providers failed: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}

	c.recordUsage(ctx, "embedding", string(model), resp.Usage)
	return embeddings, nil
}

// Embed generates the embedding of a single text
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}

	embeddings, err := c.CreateEmbeddings(ctx, []string{utils.TruncateRunes(text, maxEmbeddingInputRunes)})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// CreateChatCompletion generates a chat completion
func (c *Client) CreateChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int, temperature float32) (*openai.ChatCompletionResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.gptModel,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	resp, err := c.primary.CreateChatCompletion(ctx, req)
	if err != nil && c.fallback != nil {
		c.logger.Warn().Err(err).Msg("Primary chat failed, trying fallback")
		req.Model = openai.GPT4oMini
		resp, err = c.fallback.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("both providers failed: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	c.recordUsage(ctx, "chat", req.Model, resp.Usage)
	return &resp, nil
}

// Query sends a system prompt and conversation turns and returns the reply text
func (c *Client) Query(ctx context.Context, systemPrompt string, messages []models.ChatMessage, maxTokens int, temperature float32) (string, error) {
	chat := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	chat = append(chat, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, m := range messages {
		chat = append(chat, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.CreateChatCompletion(ctx, chat, maxTokens, temperature)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GetProviderName returns the current primary provider name
func (c *Client) GetProviderName() string {
	return c.providerName
}

// GetGPTModel returns the GPT model/deployment name being used
func (c *Client) GetGPTModel() string {
	return c.gptModel
}

// GetEmbeddingModel returns the embedding model/deployment name being used
func (c *Client) GetEmbeddingModel() string {
	return string(c.embedModel)
}
