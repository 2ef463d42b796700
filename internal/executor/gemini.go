package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"schedbot/pkg/logx"
)

// Generator is the AI collaborator behind prompt broadcasts.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

type GenerateRequest struct {
	Prompt string
	// ConversationID continues a prior exchange; empty starts a new one.
	ConversationID string
}

type GenerateResult struct {
	Text           string
	Image          []byte
	ImageMIME      string
	ConversationID string
	TotalTokens    int32
}

type GeminiConfig struct {
	APIKey          string
	Model           string
	MaxOutputTokens int32
	Temperature     float32
	// HistoryLimit bounds retained turns per conversation (a turn is one
	// user message plus one model reply).
	HistoryLimit int
}

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini implements Generator on google.golang.org/genai.
//
// Conversation continuity is an in-process history cache keyed by an opaque
// token; the token is what gets persisted on the schedule record, so after a
// restart a conversation simply starts fresh under the same token.
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
	log    logx.Logger

	mu      sync.Mutex
	history map[string][]*genai.Content
}

func NewGemini(ctx context.Context, cfg GeminiConfig, log logx.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 8192
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, cfg: cfg, log: log, history: map[string][]*genai.Content{}}, nil
}

func (g *Gemini) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	userMsg := genai.NewContentFromText(req.Prompt, genai.RoleUser)

	g.mu.Lock()
	contents := append(append([]*genai.Content(nil), g.history[convID]...), userMsg)
	g.mu.Unlock()

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: g.cfg.MaxOutputTokens,
		Temperature:     genai.Ptr(g.cfg.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	out := &GenerateResult{ConversationID: convID, Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.TotalTokens = resp.UsageMetadata.TotalTokenCount
	}
	var reply *genai.Content
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		reply = resp.Candidates[0].Content
		for _, part := range reply.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				out.Image = part.InlineData.Data
				out.ImageMIME = part.InlineData.MIMEType
				break
			}
		}
	}

	g.mu.Lock()
	hist := append(g.history[convID], userMsg)
	if reply != nil {
		hist = append(hist, reply)
	}
	if limit := g.cfg.HistoryLimit * 2; len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	g.history[convID] = hist
	g.mu.Unlock()

	return out, nil
}

// Forget drops a conversation's cached history.
func (g *Gemini) Forget(convID string) {
	g.mu.Lock()
	delete(g.history, convID)
	g.mu.Unlock()
}
