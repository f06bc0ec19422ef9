package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/japaniel/readmark/pkg/analyze"
)

// DefaultMaxBodySize limits how much HTML is read from an untrusted URL.
const DefaultMaxBodySize = 10 * 1024 * 1024

const excerptRunes = 200

// ErrBodyTooLarge is returned when a page exceeds the fetcher's size limit.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError reports a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Article is the readable part of a web page.
type Article struct {
	URL      string
	Title    string
	Byline   string
	SiteName string
	Excerpt  string
	Text     string
	Language string // "ja" when the text is mostly Japanese, else ""
}

// Fetcher downloads pages and extracts their article text.
type Fetcher struct {
	Client      *http.Client
	MaxBodySize int64
	Log         *zap.Logger
}

// NewFetcher returns a fetcher with a 30 second timeout and the default size limit.
func NewFetcher(log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		Client:      &http.Client{Timeout: 30 * time.Second},
		MaxBodySize: DefaultMaxBodySize,
		Log:         log,
	}
}

// setBrowserHeaders mimics desktop Chrome; several news sites answer 403 to
// anything else.
func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7,ja;q=0.6")
	req.Header.Set("Referer", "https://www.google.com/")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// Fetch downloads rawURL and extracts its article.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Article, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") {
		return Article{}, fmt.Errorf("invalid article url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Article{}, err
	}
	setBrowserHeaders(req)

	resp, err := f.Client.Do(req)
	if err != nil {
		return Article{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Article{}, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	limit := f.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	if resp.ContentLength > limit {
		return Article{}, fmt.Errorf("%w: content-length %d exceeds %d bytes", ErrBodyTooLarge, resp.ContentLength, limit)
	}
	// Read one byte past the limit to tell a full body from a truncated one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return Article{}, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(body)) > limit {
		return Article{}, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}

	article, err := Extract(body, pageURL)
	if err != nil {
		return Article{}, err
	}
	f.Log.Debug("article fetched",
		zap.String("url", rawURL),
		zap.String("title", article.Title),
		zap.Int("runes", len([]rune(article.Text))))
	return article, nil
}

// Extract runs readability over an HTML page after removing furigana.
func Extract(page []byte, pageURL *url.URL) (Article, error) {
	parsed, err := readability.FromReader(bytes.NewReader(analyze.SanitizeRuby(page)), pageURL)
	if err != nil {
		return Article{}, fmt.Errorf("extract article: %w", err)
	}
	text := strings.TrimSpace(parsed.TextContent)
	if text == "" {
		return Article{}, fmt.Errorf("extract article: no readable text")
	}
	a := Article{
		Title:    strings.TrimSpace(parsed.Title),
		Byline:   strings.TrimSpace(parsed.Byline),
		SiteName: strings.TrimSpace(parsed.SiteName),
		Text:     text,
		Excerpt:  excerpt(text),
		Language: DetectLanguage(text),
	}
	if pageURL != nil {
		a.URL = pageURL.String()
	}
	return a, nil
}

func excerpt(text string) string {
	first := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	r := []rune(first)
	if len(r) <= excerptRunes {
		return first
	}
	return string(r[:excerptRunes]) + "…"
}

// DetectLanguage returns "ja" when at least a fifth of the letters are Han or
// kana, which is enough to decide whether vocabulary extraction applies.
func DetectLanguage(text string) string {
	var letters, japanese int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			japanese++
		}
	}
	if letters > 0 && japanese*5 >= letters {
		return "ja"
	}
	return ""
}
