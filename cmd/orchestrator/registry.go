package main

import (
	"os"
	"strings"
	"time"

	"github.com/nth-layer/orchestra/engine"
	"github.com/nth-layer/orchestra/provider"

	"go.uber.org/zap"
)

// providerSpec names one hosted vendor this binary knows how to wire from
// environment variables (spec §6: "<PROVIDER>_API_KEY" convention).
type providerSpec struct {
	envPrefix    string
	kind         engine.ProviderKind
	defaultModel string
	build        func(apiKey, apiBase, defaultModel string, logger *zap.Logger) provider.Adapter
}

var providerSpecs = []providerSpec{
	{
		envPrefix:    "OPENAI",
		kind:         engine.ProviderOpenAI,
		defaultModel: "gpt-4o-mini",
		build: func(apiKey, apiBase, model string, logger *zap.Logger) provider.Adapter {
			return provider.NewOpenAI(provider.OpenAIConfig{
				APIKey:       apiKey,
				APIBase:      apiBase,
				DefaultModel: model,
			}, logger)
		},
	},
	{
		envPrefix:    "ANTHROPIC",
		kind:         engine.ProviderAnthropic,
		defaultModel: "claude-3-5-sonnet-latest",
		build: func(apiKey, apiBase, model string, logger *zap.Logger) provider.Adapter {
			return provider.NewAnthropic(provider.AnthropicConfig{
				APIKey:       apiKey,
				APIBase:      apiBase,
				DefaultModel: model,
			}, logger)
		},
	},
	{
		envPrefix:    "GOOGLE",
		kind:         engine.ProviderGoogle,
		defaultModel: "gemini-1.5-pro",
		build: func(apiKey, apiBase, model string, logger *zap.Logger) provider.Adapter {
			return provider.NewGoogle(provider.GoogleConfig{
				APIKey:       apiKey,
				APIBase:      apiBase,
				DefaultModel: model,
			}, logger)
		},
	},
	{
		envPrefix:    "COHERE",
		kind:         engine.ProviderCohere,
		defaultModel: "command-r-plus",
		build: func(apiKey, apiBase, model string, logger *zap.Logger) provider.Adapter {
			return provider.NewCohere(provider.CohereConfig{
				APIKey:       apiKey,
				APIBase:      apiBase,
				DefaultModel: model,
			}, logger)
		},
	},
	{
		envPrefix:    "MISTRAL",
		kind:         engine.ProviderMistral,
		defaultModel: "mistral-large-latest",
		build: func(apiKey, apiBase, model string, logger *zap.Logger) provider.Adapter {
			return provider.NewMistral(provider.MistralConfig{
				APIKey:       apiKey,
				APIBase:      apiBase,
				DefaultModel: model,
			}, logger)
		},
	},
	{
		envPrefix:    "CUSTOM",
		kind:         engine.ProviderCustom,
		defaultModel: "custom-model",
		build: func(apiKey, apiBase, model string, logger *zap.Logger) provider.Adapter {
			return provider.NewCustom(provider.CustomConfig{
				Name:         "custom",
				APIKey:       apiKey,
				APIBase:      apiBase,
				DefaultModel: model,
			}, logger)
		},
	},
	{
		envPrefix:    "LOCAL_RUNNER",
		kind:         engine.ProviderLocalRunner,
		defaultModel: "llama3",
		build: func(apiKey, apiBase, model string, logger *zap.Logger) provider.Adapter {
			return provider.NewLocalRunner(provider.LocalRunnerConfig{
				APIKey:       apiKey,
				APIBase:      apiBase,
				DefaultModel: model,
			}, logger)
		},
	},
}

// buildRegistry scans the process environment for "<PROVIDER>_API_KEY" and
// registers an adapter for every vendor that has one, plus the loopback
// runner (which needs no key). When USE_MOCK=true, a deterministic Mock is
// registered in place of every hosted vendor whose key is missing, so the
// engine still has candidates to dispatch to (spec §6); without it, such
// vendors are skipped. A single "mock:default" Mock is registered only if
// nothing else was.
func buildRegistry(logger *zap.Logger) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	forceMock := strings.EqualFold(os.Getenv("USE_MOCK"), "true")

	registered := 0
	for _, spec := range providerSpecs {
		apiKey := os.Getenv(spec.envPrefix + "_API_KEY")
		apiBase := os.Getenv(spec.envPrefix + "_API_BASE")
		model := os.Getenv(spec.envPrefix + "_MODEL")
		if model == "" {
			model = spec.defaultModel
		}

		missingKey := spec.envPrefix != "LOCAL_RUNNER" && apiKey == ""
		if missingKey && !forceMock {
			continue
		}

		var adapter provider.Adapter
		if missingKey {
			adapter = provider.NewMock(provider.MockConfig{Name: string(spec.kind)})
		} else {
			adapter = spec.build(apiKey, apiBase, model, logger)
		}

		cfg := engine.ModelConfig{
			Provider:    spec.kind,
			ModelID:     string(spec.kind) + ":" + model,
			APIKey:      apiKey,
			APIBase:     apiBase,
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     30 * time.Second,
			Weight:      1,
			IsPrimary:   registered == 0,
		}
		if err := reg.Register(cfg, adapter); err != nil {
			return nil, err
		}
		registered++
	}

	if registered == 0 {
		mock := provider.NewMock(provider.MockConfig{Name: "mock"})
		cfg := engine.ModelConfig{
			Provider:    engine.ProviderMock,
			ModelID:     "mock:default",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     30 * time.Second,
			Weight:      1,
			IsPrimary:   true,
		}
		if err := reg.Register(cfg, mock); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// buildMockFallback returns the Adapter the Fallback Service falls back to
// as a last resort (spec §4.8 step 5), independent of buildRegistry's
// per-provider mocks.
func buildMockFallback() provider.Adapter {
	return provider.NewMock(provider.MockConfig{
		Name:            "mock",
		DefaultResponse: "no provider was able to answer; this is a placeholder response",
	})
}
