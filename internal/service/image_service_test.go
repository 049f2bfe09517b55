package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gemchat-go/internal/config"
	"gemchat-go/pkg/gemini"
	"gemchat-go/pkg/unsplash"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLLM 返回固定的模型调用结果。
type stubLLM struct {
	result gemini.Result
}

func (s *stubLLM) Converse(ctx context.Context, prompt string, history []gemini.Turn, imageData string) gemini.Result {
	return s.result
}

// stubStock 模拟图库搜索客户端。
type stubStock struct {
	enabled bool
	photo   *unsplash.Photo
	err     error
}

func (s *stubStock) Enabled() bool { return s.enabled }

func (s *stubStock) SearchPhoto(ctx context.Context, query string) (*unsplash.Photo, error) {
	return s.photo, s.err
}

func TestPromptSeedDeterministic(t *testing.T) {
	// hash = hash*31 + code，按 UTF-16 码元：((97*31)+98)*31+99
	assert.Equal(t, int64(96354), promptSeed("abc"))
	assert.Equal(t, int64(0), promptSeed(""))

	// 同一提示词永远得到同一个种子
	assert.Equal(t, promptSeed("a sunset over mountains"), promptSeed("a sunset over mountains"))
	assert.NotEqual(t, promptSeed("a sunset over mountains"), promptSeed("a cat in the rain"))
}

func TestPromptSeedNeverNegative(t *testing.T) {
	prompts := []string{
		"abc",
		"a very long prompt that should overflow the 32-bit accumulator multiple times over and over again",
		"日落时分的群山，金色的光芒洒满山谷",
		"🎨 painting with emoji",
	}
	for _, p := range prompts {
		assert.GreaterOrEqual(t, promptSeed(p), int64(0), "prompt %q", p)
	}
}

func TestResolvePrefersStockPhoto(t *testing.T) {
	svc := NewImageService(
		&stubStock{enabled: true, photo: &unsplash.Photo{URL: "https://images.example/cat.jpg", Description: "a cat"}},
		&stubLLM{result: gemini.Result{Outcome: gemini.OutcomeProviderError}},
		config.PlaceholderConfig{},
	)

	got := svc.Resolve(context.Background(), "a cat")
	assert.Equal(t, "https://images.example/cat.jpg", got.ImageURL)
	assert.Equal(t, "a cat", got.Description)
	assert.Equal(t, ImageSourceStock, got.Source)
}

func TestResolveFallsBackToDescribedPlaceholder(t *testing.T) {
	svc := NewImageService(
		&stubStock{enabled: true, err: errors.New("no images found")},
		&stubLLM{result: gemini.Result{Outcome: gemini.OutcomeOK, Type: gemini.TypeText, Content: "A vivid golden sunset."}},
		config.PlaceholderConfig{BaseURL: "https://picsum.photos", Width: 800, Height: 600},
	)

	got := svc.Resolve(context.Background(), "sunset")
	require.Equal(t, ImageSourceAIDescribedPlaceholder, got.Source)
	assert.Equal(t, "A vivid golden sunset.", got.Description)
	assert.Equal(t, fmt.Sprintf("https://picsum.photos/seed/%d/800/600", promptSeed("sunset")), got.ImageURL)
}

func TestResolveBarePlaceholderWhenEverythingFails(t *testing.T) {
	svc := NewImageService(
		&stubStock{enabled: false},
		&stubLLM{result: gemini.Result{Outcome: gemini.OutcomeQuotaExceeded, Err: "quota"}},
		config.PlaceholderConfig{},
	)

	got := svc.Resolve(context.Background(), "sunset")
	assert.Equal(t, ImageSourceBarePlaceholder, got.Source)
	assert.Equal(t, "Generated image for: sunset", got.Description)
	assert.Equal(t, fmt.Sprintf("https://picsum.photos/seed/%d/800/600", promptSeed("sunset")), got.ImageURL)
}

func TestResolveURLStableAcrossCalls(t *testing.T) {
	svc := NewImageService(
		&stubStock{enabled: false},
		&stubLLM{result: gemini.Result{Outcome: gemini.OutcomeOK, Type: gemini.TypeText, Content: "desc"}},
		config.PlaceholderConfig{},
	)

	first := svc.Resolve(context.Background(), "the same prompt")
	second := svc.Resolve(context.Background(), "the same prompt")
	assert.Equal(t, first.ImageURL, second.ImageURL)
}
