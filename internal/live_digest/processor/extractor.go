package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"live-digest/internal/live_digest/model"
	"live-digest/pkg/config"
)

// ErrExtractionService 抽取服务网络/HTTP 失败或返回空内容；调用方跳过该条并继续
var ErrExtractionService = errors.New("extraction service error")

// errEmptyReply 服务返回成功但没有任何内容，按服务故障处理
var errEmptyReply = errors.New("empty reply")

// Extractor 调用外部大模型把微博正文抽成结构化字段
type Extractor struct {
	Log *zap.Logger
	LLM llms.Model

	Temperature float64
	MaxAttempts int
	RetryBase   time.Duration
	// nil 表示不限速
	Limiter *rate.Limiter
}

// NewExtractor 按配置创建 OpenAI 兼容客户端（千帆 v2 / 混元 / 豆包 均可）
func NewExtractor(cfg config.ExtractorConfig, log *zap.Logger) (*Extractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("extractor api key not set (extractor.apiKey or LLM_API_KEY)")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	llm, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	e := &Extractor{
		Log:         log,
		LLM:         llm,
		Temperature: cfg.Temperature,
		MaxAttempts: cfg.MaxAttempts,
		RetryBase:   cfg.RetryBase,
	}
	if cfg.MinInterval > 0 {
		e.Limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	return e, nil
}

// Extract 抽取并合并元信息。只有服务调用失败才返回错误；
// 输出无法解析时退化为只有 main_text 的记录。
func (e *Extractor) Extract(ctx context.Context, post model.RawPost) (*model.EventRecord, error) {
	prompt := buildPrompt(post)

	text, err := e.generateWithRetry(ctx, post.ID, prompt)
	if err != nil {
		return nil, err
	}

	cleaned := stripCodeFences(text)
	frag, ok := parseFragment(cleaned)
	if !ok {
		e.Log.Warn("Malformed extraction output, keeping raw text",
			zap.String("weiboId", post.ID),
			zap.Int("textLen", len(cleaned)),
		)
		frag = fallbackFragment(cleaned)
	} else if strings.TrimSpace(frag.MainText) == "" {
		frag.MainText = post.Content
	}

	return model.NewEventRecord(post, frag), nil
}

// generateWithRetry 首次立即请求，失败后按 base * 2^(n-1) 等待重试
func (e *Extractor) generateWithRetry(ctx context.Context, weiboID, prompt string) (string, error) {
	attempts := e.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := calculateRetryDelay(e.RetryBase, attempt-1)
			e.Log.Info("Extraction retry scheduled",
				zap.String("weiboId", weiboID),
				zap.Int("attempt", attempt),
				zap.Int("maxAttempts", attempts),
				zap.Duration("delay", delay),
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}

		if e.Limiter != nil {
			if err := e.Limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		text, err := e.generate(ctx, prompt)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errEmptyReply
		}
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		e.Log.Warn("Extraction request failed",
			zap.String("weiboId", weiboID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return "", fmt.Errorf("%w: weibo %s after %d attempt(s): %w", ErrExtractionService, weiboID, attempts, lastErr)
}

func (e *Extractor) generate(ctx context.Context, prompt string) (string, error) {
	var opts []llms.CallOption
	if e.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(e.Temperature))
	}
	return llms.GenerateFromSinglePrompt(ctx, e.LLM, prompt, opts...)
}

// calculateRetryDelay 计算重试延迟时间：base * 2^(n-1)
func calculateRetryDelay(base time.Duration, retryCount int) time.Duration {
	if retryCount <= 0 {
		return base
	}
	delay := base
	for i := 1; i < retryCount; i++ {
		delay *= 2
	}
	return delay
}

// buildPrompt 要求模型只输出一个 JSON 对象，并给出发布日期用于推断年份
func buildPrompt(post model.RawPost) string {
	var sb strings.Builder

	sb.WriteString("提取微博内容中的以下字段:\n")
	sb.WriteString("1. live日期 (输出的json中对应的key用 live_date 替换) 请按照%Y-%m-%d格式输出, 如2023-08-22\n")
	sb.WriteString("2. live地点 (输出的json中对应的key用 live_location 替换)\n")
	sb.WriteString("3. 团体全员 (输出的json中对应的key用 groups 替换, 字符串数组)\n")
	sb.WriteString("4. 正文 (输出的json中对应的key用 main_text 替换) (保持换行美观)\n")
	sb.WriteString("**只输出一个可以被直接解析的 JSON 对象, 不要有任何其他文字**!!!\n")
	sb.WriteString("请不要在开头和结尾生成形如```,json 的字符, 以正常的大括号作为开头结尾\n")
	if post.PublishedAt != "" {
		sb.WriteString("微博发布时间为 ")
		sb.WriteString(post.PublishedAt)
		sb.WriteString(", 如果正文中的日期没有写年份, 请据此推断年份\n")
	}
	sb.WriteString("\n如果没有某个字段，请留空。内容如下：\n")
	sb.WriteString(post.Content)
	sb.WriteString("\n")

	return sb.String()
}
