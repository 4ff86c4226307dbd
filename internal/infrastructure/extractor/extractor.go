package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/cjhyy/interview-QA-help/internal/domain"
	"github.com/cjhyy/interview-QA-help/internal/ports"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxRedirects     = 5
	defaultMaxContentLength = 50000
	defaultKeywordCount     = 10
	maxBodyBytes            = 10 << 20

	minContainerRunes = 200
	minParagraphRunes = 100
	untitled          = "Untitled"
)

// DefaultUserAgents are rotated across requests.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

var noiseSelectors = []string{
	"script", "style", "noscript", "iframe", "nav", "header", "footer", "aside", "form",
	".advertisement", ".ads", ".ad", ".sidebar", ".menu", ".navigation", ".comments",
}

var contentSelectors = []string{
	"article", ".content", ".post-content", ".entry-content", ".article-content",
	"main", ".main-content", "#content", ".post-body", ".article-body",
}

// Config tunes fetching and text limits.
type Config struct {
	Timeout          time.Duration
	MaxRedirects     int
	UserAgents       []string
	MaxContentLength int
	KeywordCount     int
}

// Extractor fetches static markup and reduces it to text and metadata.
type Extractor struct {
	client *http.Client
	cfg    Config
	next   atomic.Uint64
	logger *slog.Logger
}

var _ ports.ContentExtractor = (*Extractor)(nil)

// New wires an HTTP client; a nil client gets one with the configured timeout.
// The redirect policy is always installed on a copy of the client.
func New(cfg Config, client *http.Client, logger *slog.Logger) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = DefaultUserAgents
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = defaultMaxContentLength
	}
	if cfg.KeywordCount <= 0 {
		cfg.KeywordCount = defaultKeywordCount
	}

	var c http.Client
	if client != nil {
		c = *client
	}
	if c.Timeout <= 0 {
		c.Timeout = cfg.Timeout
	}
	maxRedirects := cfg.MaxRedirects
	c.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	return &Extractor{client: &c, cfg: cfg, logger: logger}
}

// Extract fetches rawURL and returns its title, text, keywords and language.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (domain.Extraction, error) {
	doc, err := e.fetchDocument(ctx, rawURL)
	if err != nil {
		return domain.Extraction{}, err
	}

	title := extractTitle(doc)
	doc.Find(strings.Join(noiseSelectors, ", ")).Remove()
	content := domain.Truncate(cleanText(selectContent(doc)), e.cfg.MaxContentLength)

	ext := domain.Extraction{
		Title:    title,
		Content:  content,
		Keywords: Keywords(content, e.cfg.KeywordCount),
		Language: DetectLanguage(content),
	}
	e.debug("page extracted", "url", rawURL, "title", title, "runes", len([]rune(content)), "language", ext.Language)
	return ext, nil
}

func (e *Extractor) fetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &domain.ExtractionError{Kind: domain.ExtractionUnknown, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", e.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classify(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &domain.ExtractionError{
			Kind:       domain.ExtractionHTTP,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &domain.ExtractionError{Kind: domain.ExtractionUnknown, URL: rawURL, Err: fmt.Errorf("decode charset: %w", err)}
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, classify(rawURL, fmt.Errorf("parse document: %w", err))
	}
	return doc, nil
}

func (e *Extractor) userAgent() string {
	n := e.next.Add(1) - 1
	return e.cfg.UserAgents[n%uint64(len(e.cfg.UserAgents))]
}

// classify maps transport failures onto extraction error kinds.
func classify(rawURL string, err error) *domain.ExtractionError {
	kind := domain.ExtractionUnknown
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		kind = domain.ExtractionDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = domain.ExtractionRefused
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.ExtractionTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = domain.ExtractionTimeout
	}
	return &domain.ExtractionError{Kind: kind, URL: rawURL, Err: err}
}

func extractTitle(doc *goquery.Document) string {
	candidates := []string{
		doc.Find("title").First().Text(),
		doc.Find("h1").First().Text(),
		doc.Find(`meta[property="og:title"]`).AttrOr("content", ""),
	}
	for _, c := range candidates {
		if title := collapseSpaces(c); title != "" {
			return domain.Truncate(title, domain.MaxTitleLength)
		}
	}
	return untitled
}

// selectContent probes known content containers, then paragraphs, then the body.
func selectContent(doc *goquery.Document) string {
	for _, selector := range contentSelectors {
		text := collapseSpaces(doc.Find(selector).First().Text())
		if runeLen(text) >= minContainerRunes {
			return text
		}
	}

	var paragraphs []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := collapseSpaces(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if joined := strings.Join(paragraphs, "\n"); runeLen(joined) >= minParagraphRunes {
		return joined
	}

	return doc.Find("body").Text()
}

func (e *Extractor) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
