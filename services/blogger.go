package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"scholarlink/apperr"
	"scholarlink/config"
)

// chunkSize ist die feste Chunk-Größe in Zeichen; Grenzen sind rohe
// Offsets, nicht satzbewusst.
const chunkSize = 8000

// BlogGenerator macht aus einer PDF einen fertigen Markdown-Blogartikel:
// Download → Textextraktion → Chunk-Zusammenfassungen → finale Komposition.
// Jeder Netzwerk- oder Extraktionsfehler bricht die Generierung komplett ab,
// es gibt keine Teilergebnisse.
type BlogGenerator struct {
	Config *config.Config
	Logger *zap.Logger

	client *openai.Client
	http   *http.Client
}

// NewBlogGenerator erstellt einen BlogGenerator. Ohne API-Key gibt es keinen
// sinnvollen Betrieb, daher ist das ein Konstruktionsfehler.
func NewBlogGenerator(cfg *config.Config, logger *zap.Logger) (*BlogGenerator, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY fehlt: in config.yaml oder .env konfigurieren")
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.OpenAITimeout) * time.Second}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("proxy-url parsen: %w", err)
		}
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	apiCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		apiCfg.BaseURL = cfg.OpenAIBaseURL
	}
	apiCfg.HTTPClient = httpClient

	return &BlogGenerator{
		Config: cfg,
		Logger: logger,
		client: openai.NewClientWithConfig(apiCfg),
		http:   httpClient,
	}, nil
}

// GenerateFromPDFURL führt die komplette Pipeline für eine PDF-URL aus und
// liefert den fertigen Markdown-Artikel.
func (g *BlogGenerator) GenerateFromPDFURL(ctx context.Context, pdfURL string) (string, error) {
	log := g.Logger.With(zap.String("pdf_url", pdfURL))
	log.Info("Starte Blog-Generierung.")

	data, err := g.downloadPDF(ctx, pdfURL)
	if err != nil {
		return "", err
	}

	text, err := extractText(data)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", apperr.NewUpstream("aus der PDF konnte kein Text extrahiert werden", nil)
	}

	chunks := chunkText(text, chunkSize)
	log.Info("Text extrahiert", zap.Int("characters", len(text)), zap.Int("chunks", len(chunks)))

	var points []string
	for i, chunk := range chunks {
		summary, err := g.complete(ctx, chunkPrompt(chunk, g.Config.BlogLanguage), 0.3)
		if err != nil {
			return "", apperr.NewUpstream(fmt.Sprintf("chunk %d zusammenfassen", i+1), err)
		}
		points = append(points, summary)
	}
	merged := strings.Join(points, "\n\n")

	article, err := g.complete(ctx, finalPrompt(merged, pdfURL, g.Config.BlogLanguage), 0.4)
	if err != nil {
		return "", apperr.NewUpstream("finalen Artikel komponieren", err)
	}

	log.Info("Blog-Generierung abgeschlossen", zap.Int("article_length", len(article)))
	return article, nil
}

// downloadPDF lädt die PDF-Bytes herunter.
func (g *BlogGenerator) downloadPDF(ctx context.Context, pdfURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, apperr.NewUpstream("pdf-request bauen", err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, apperr.NewUpstream("pdf-download fehlgeschlagen", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.NewUpstream(
			fmt.Sprintf("pdf-download fehlgeschlagen: status %d", resp.StatusCode), nil)
	}
	return io.ReadAll(resp.Body)
}

// extractText extrahiert den Text seitenweise, best effort: nicht lesbare
// Seiten liefern leeren Text statt die Extraktion abzubrechen.
func extractText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", apperr.NewUpstream("pdf nicht lesbar", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || text == "" {
			continue
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n\n"), nil
}

// chunkText zerlegt den Text in Stücke fester Zeichenbreite. Geschnitten
// wird über Runen, damit eine Chunk-Grenze kein Multibyte-Zeichen zerteilt.
func chunkText(text string, size int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	var chunks []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// complete führt einen einzelnen Chat-Completion-Aufruf aus.
func (g *BlogGenerator) complete(ctx context.Context, messages []openai.ChatCompletionMessage, temperature float32) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.Config.OpenAIChatModel,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("leere antwort vom modell")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func isChinese(lang string) bool {
	return strings.HasPrefix(strings.ToLower(lang), "zh")
}

func systemPrompt(lang string) string {
	if isChinese(lang) {
		return "你是一名资深的学术科普写作者，擅长将论文内容转化为通俗易懂、结构清晰的技术博客。" +
			"请严格按照要求输出高质量、可直接发布的 Markdown 中文博客。"
	}
	return "You are a senior technical writer who turns academic papers into clear, engaging blog posts. " +
		"Output high-quality, publish-ready Markdown."
}

// chunkPrompt baut die Nachricht für die Zusammenfassung eines Chunks.
func chunkPrompt(chunk, lang string) []openai.ChatCompletionMessage {
	var user string
	if isChinese(lang) {
		user = "请阅读以下论文片段，提取核心要点（中文）：\n\n" + chunk + "\n\n" +
			"请输出：\n- 关键术语\n- 主要方法或思想\n- 实验或评估要点\n- 结论/启示\n（用紧凑的要点列表，勿超过200字）"
	} else {
		user = "Read the following paper chunk and extract key points (English):\n\n" + chunk + "\n\n" +
			"Output bullet points: terms, methods/ideas, experiments/evaluations, conclusions (<= 120 words)."
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(lang)},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
}

// finalPrompt baut die Nachricht für die finale Artikel-Komposition mit dem
// festen Abschnitts-Template.
func finalPrompt(merged, pdfURL, lang string) []openai.ChatCompletionMessage {
	var user string
	if isChinese(lang) {
		user = fmt.Sprintf(`
根据以下要点，撰写一篇结构完整的中文技术博客（Markdown）：
原文链接：%s

要点汇总：
%s

写作要求：
- 面向有一定基础的工程师与研究生
- 采用通俗、准确、具体的语言，不要空话
- 必须包含以下章节（使用二级与三级标题组织）：
  1. 摘要与核心贡献
  2. 背景与动机
  3. 方法原理（文本化解释关键公式/流程）
  4. 实验设置与结果解读（定量/定性，对比方法）
  5. 局限性与潜在改进
  6. 应用场景与实践建议
  7. 相关工作与对比
  8. TL;DR（3-5条要点）
- 输出纯 Markdown
`, pdfURL, merged)
	} else {
		user = fmt.Sprintf(`
Based on the following points, write a well-structured technical blog post in Markdown.
Link: %s

Key points:
%s

Sections: Summary, Background, Method, Experiments, Limitations, Applications, Related Work, TL;DR (3-5 bullets)
`, pdfURL, merged)
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(lang)},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
}
