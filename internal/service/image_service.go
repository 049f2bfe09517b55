// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"unicode/utf16"

	"gemchat-go/internal/config"
	"gemchat-go/pkg/gemini"
	"gemchat-go/pkg/log"
	"gemchat-go/pkg/unsplash"
)

// 图片结果的来源标签。
const (
	ImageSourceStock                  = "stock"
	ImageSourceAIDescribedPlaceholder = "ai-described-placeholder"
	ImageSourceBarePlaceholder        = "bare-placeholder"
)

// ImageResult 是一次图片解析的结果。
type ImageResult struct {
	ImageURL    string `json:"imageUrl"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// ImageService 把文本提示词解析为一张可展示的图片。
type ImageService interface {
	// Resolve 永远返回一个可用的图片 URL：优先图库照片，
	// 其次是"AI 描述 + 确定性占位图"，最后退化为纯占位图。
	Resolve(ctx context.Context, prompt string) ImageResult
}

// StockPhotoSearcher 抽象图库搜索客户端，便于在测试中替换。
type StockPhotoSearcher interface {
	Enabled() bool
	SearchPhoto(ctx context.Context, query string) (*unsplash.Photo, error)
}

type imageService struct {
	stock     StockPhotoSearcher
	llmClient gemini.Client
	cfg       config.PlaceholderConfig
}

// NewImageService 创建一个新的 ImageService 实例。
func NewImageService(stock StockPhotoSearcher, llmClient gemini.Client, cfg config.PlaceholderConfig) ImageService {
	return &imageService{stock: stock, llmClient: llmClient, cfg: cfg}
}

// Resolve 依次尝试三条路径，任何一条失败都降级到下一条，绝不整体失败。
func (s *imageService) Resolve(ctx context.Context, prompt string) ImageResult {
	// 1. 配置了图库凭证时优先检索真实照片
	if s.stock != nil && s.stock.Enabled() {
		photo, err := s.stock.SearchPhoto(ctx, prompt)
		if err == nil && photo != nil && photo.URL != "" {
			return ImageResult{
				ImageURL:    photo.URL,
				Description: photo.Description,
				Source:      ImageSourceStock,
			}
		}
		if err != nil {
			log.Warnf("图库搜索失败，降级到占位图: %v", err)
		}
	}

	placeholderURL := s.placeholderURL(prompt)

	// 2. 请模型生成一段生动的图片描述，配合确定性占位图
	descriptionPrompt := fmt.Sprintf(`Create a detailed, vivid description of an image based on this prompt: %q. `+
		`Describe colors, composition, lighting, mood, and specific details that would make this image compelling and beautiful. `+
		`Write it as if you're describing a real photograph or artwork.`, prompt)

	result := s.llmClient.Converse(ctx, descriptionPrompt, nil, "")
	if result.Outcome == gemini.OutcomeOK && result.Type == gemini.TypeText && result.Content != "" {
		return ImageResult{
			ImageURL:    placeholderURL,
			Description: result.Content,
			Source:      ImageSourceAIDescribedPlaceholder,
		}
	}
	log.Warnf("生成图片描述失败，退化为纯占位图: %s", result.Err)

	// 3. 最终兜底：占位图 + 通用说明
	return ImageResult{
		ImageURL:    placeholderURL,
		Description: fmt.Sprintf("Generated image for: %s", prompt),
		Source:      ImageSourceBarePlaceholder,
	}
}

// placeholderURL 构造确定性的占位图 URL：种子是提示词的纯函数，
// 同一个提示词永远得到同一张图。
func (s *imageService) placeholderURL(prompt string) string {
	baseURL := s.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://picsum.photos"
	}
	width, height := s.cfg.Width, s.cfg.Height
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 600
	}
	return fmt.Sprintf("%s/seed/%d/%d/%d", baseURL, promptSeed(prompt), width, height)
}

// promptSeed 把提示词哈希为占位图种子：逐字符 hash = hash*31 + code，
// 折叠到 32 位后取绝对值。按 UTF-16 码元迭代，不依赖时间或随机数。
func promptSeed(prompt string) int64 {
	var h int32
	for _, u := range utf16.Encode([]rune(prompt)) {
		h = h*31 + int32(u)
	}
	seed := int64(h)
	if seed < 0 {
		seed = -seed
	}
	return seed
}
