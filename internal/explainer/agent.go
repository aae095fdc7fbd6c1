package explainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/agent-api/core/pkg/agent"
	"github.com/agent-api/core/types"
	"github.com/agent-api/ollama"
)

var ErrOllamaUnavailable = errors.New("ollama is not reachable")

const systemPrompt = "You explain the results of an automated age and gender estimate from a photo of a hand. " +
	"Write two or three short sentences in plain language for the person who was scanned. " +
	"Mention how confident the estimate is. Never claim certainty the numbers do not support."

type AgentConfig struct {
	BaseURL string
	Port    int
	Model   string
	Logger  *slog.Logger
}

// NewAgent checks that Ollama is running and returns a vision agent for cfg.Model
func NewAgent(ctx context.Context, cfg AgentConfig) (*agent.DefaultAgent, error) {
	if err := checkOllama(ctx, cfg.BaseURL, cfg.Port); err != nil {
		return nil, err
	}

	provider := ollama.NewProvider(&ollama.ProviderOpts{
		Logger:  cfg.Logger,
		BaseURL: cfg.BaseURL,
		Port:    cfg.Port,
	})
	provider.UseModel(ctx, &types.Model{ID: cfg.Model})

	return agent.NewAgent(&agent.NewAgentConfig{
		Provider:     provider,
		Logger:       cfg.Logger,
		SystemPrompt: systemPrompt,
	}), nil
}

// AgentAsker adapts a vision agent to the Asker used by Explainer
func AgentAsker(a *agent.DefaultAgent) Asker {
	return func(ctx context.Context, prompt, imagePath string) (string, error) {
		if imagePath == "" {
			response := a.Run(ctx, agent.WithInput(prompt))
			if response.Err != nil {
				return "", response.Err
			}
			if len(response.Messages) == 0 {
				return "", fmt.Errorf("no response messages received from model")
			}
			return response.Messages[len(response.Messages)-1].Content, nil
		}

		response := a.Run(ctx, agent.WithInput(prompt), agent.WithImagePath(imagePath))
		if response.Err != nil {
			return "", response.Err
		}
		if len(response.Messages) == 0 {
			return "", fmt.Errorf("no response messages received from model")
		}
		return response.Messages[len(response.Messages)-1].Content, nil
	}
}

func checkOllama(ctx context.Context, baseURL string, port int) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s:%d/api/tags", baseURL, port), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOllamaUnavailable, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOllamaUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrOllamaUnavailable, resp.StatusCode)
	}
	return nil
}
