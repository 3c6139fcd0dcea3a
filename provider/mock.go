package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/nth-layer/orchestra/engine"
)

// MockConfig configures a deterministic Mock adapter.
type MockConfig struct {
	Name string

	// Responses maps a lowercased keyword found in the prompt to a canned
	// response. The first matching keyword (in map iteration over a sorted
	// key list) wins; if none match, DefaultResponse is used.
	Responses map[string]string

	// DefaultResponse is returned when no keyword in Responses matches.
	DefaultResponse string

	// FailureProbability in [0,1]: the fraction of calls that fail with
	// ProviderUnavailable instead of succeeding.
	FailureProbability float64

	// FailWithCode overrides the error code used on a simulated failure;
	// defaults to ErrProviderUnavailable.
	FailWithCode engine.ErrorCode

	// Latency simulates call duration; zero means immediate.
	Latency time.Duration
}

// Mock is a deterministic keyword-driven responder used in tests and as the
// Fallback Service's last-resort adapter (spec §4.1, §4.8). Its RNG is
// seeded from a hash of the prompt so identical inputs yield identical
// outputs even with FailureProbability > 0.
type Mock struct {
	cfg MockConfig
}

// NewMock builds a Mock adapter from cfg, filling in defaults.
func NewMock(cfg MockConfig) *Mock {
	if cfg.Name == "" {
		cfg.Name = "mock"
	}
	if cfg.DefaultResponse == "" {
		cfg.DefaultResponse = "mock response"
	}
	if cfg.FailWithCode == "" {
		cfg.FailWithCode = engine.ErrProviderUnavailable
	}
	return &Mock{cfg: cfg}
}

func (m *Mock) Name() string { return m.cfg.Name }

func (m *Mock) IsAvailable() bool { return true }

func (m *Mock) Capabilities() Capabilities {
	return Capabilities{
		Name:               m.cfg.Name,
		SupportsStreaming:  true,
		SupportsEmbeddings: true,
		SupportsVision:     false,
		MaxTokens:          8192,
	}
}

// seedFor derives a deterministic seed from the prompt via FNV-1a.
func seedFor(prompt string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(prompt))
	return h.Sum64()
}

func (m *Mock) shouldFail(prompt string) bool {
	if m.cfg.FailureProbability <= 0 {
		return false
	}
	seed := seedFor(prompt)
	r := rand.New(rand.NewPCG(seed, seed>>32))
	return r.Float64() < m.cfg.FailureProbability
}

func (m *Mock) respond(prompt string) string {
	lower := strings.ToLower(prompt)

	keywords := make([]string, 0, len(m.cfg.Responses))
	for keyword := range m.cfg.Responses {
		keywords = append(keywords, keyword)
	}
	sort.Strings(keywords)

	for _, keyword := range keywords {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return m.cfg.Responses[keyword]
		}
	}
	return m.cfg.DefaultResponse
}

func (m *Mock) Generate(ctx context.Context, prompt string, opts engine.GenerateOptions) (string, error) {
	if m.cfg.Latency > 0 {
		select {
		case <-time.After(m.cfg.Latency):
		case <-ctx.Done():
			return "", engine.NewError(engine.ErrCancelled, "cancelled").WithProvider(m.cfg.Name)
		}
	}
	if m.shouldFail(prompt) {
		return "", engine.NewError(m.cfg.FailWithCode, "simulated mock failure").WithProvider(m.cfg.Name)
	}
	return m.respond(prompt), nil
}

func (m *Mock) StreamGenerate(ctx context.Context, prompt string, opts engine.GenerateOptions) (<-chan StreamChunk, error) {
	if m.shouldFail(prompt) {
		return nil, engine.NewError(m.cfg.FailWithCode, "simulated mock failure").WithProvider(m.cfg.Name)
	}

	full := m.respond(prompt)
	chunks := splitPreservingWhitespace(full)
	out := make(chan StreamChunk)

	go func() {
		defer close(out)
		for _, chunk := range chunks {
			select {
			case out <- StreamChunk{Content: chunk}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// splitPreservingWhitespace breaks s into chunks on word boundaries, each
// chunk carrying any whitespace (including newlines) that follows it, so
// that concatenating the chunks reproduces s exactly — unlike
// strings.Fields, which discards the original separators.
func splitPreservingWhitespace(s string) []string {
	if s == "" {
		return nil
	}
	var chunks []string
	start := 0
	inSpace := unicode.IsSpace(rune(s[0]))
	for i, r := range s {
		if unicode.IsSpace(r) != inSpace {
			chunks = appendChunk(chunks, s[start:i], inSpace)
			start = i
			inSpace = !inSpace
		}
	}
	chunks = appendChunk(chunks, s[start:], inSpace)
	return chunks
}

// appendChunk merges a trailing whitespace run into the previous word chunk
// so each emitted chunk ends on a natural boundary, matching how a real
// token-streaming provider would flush.
func appendChunk(chunks []string, run string, isSpace bool) []string {
	if isSpace && len(chunks) > 0 {
		chunks[len(chunks)-1] += run
		return chunks
	}
	return append(chunks, run)
}

func (m *Mock) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	seed := seedFor(text)
	r := rand.New(rand.NewPCG(seed, seed>>32))
	vec := make([]float32, 16)
	for i := range vec {
		vec[i] = float32(r.Float64())
	}
	return vec, nil
}

// String implements fmt.Stringer for debug logging.
func (m *Mock) String() string {
	return fmt.Sprintf("Mock(%s)", m.cfg.Name)
}
