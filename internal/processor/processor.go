package processor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// UserAgent 请求和浏览器共用的 UA
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"

// Page 抓取到的页面
type Page struct {
	URL string
	Doc *goquery.Document
	Err error
}

// Fetcher 带 Cookie 的页面抓取器
type Fetcher struct {
	cookie string
	jar    http.CookieJar
	client *http.Client

	// MinDelay/MaxDelay 批量抓取时两次请求之间的随机间隔
	MinDelay time.Duration
	MaxDelay time.Duration
}

// NewFetcher 创建抓取器
func NewFetcher(cookie string) (*Fetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("创建cookie jar失败: %w", err)
	}

	return &Fetcher{
		cookie: cookie,
		jar:    jar,
		client: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		MinDelay: time.Second,
		MaxDelay: 3 * time.Second,
	}, nil
}

// ParseCookies 解析 "a=b; c=d" 格式的 cookie 字符串
func ParseCookies(cookieStr string) []*http.Cookie {
	var cookies []*http.Cookie
	pairs := strings.Split(cookieStr, ";")
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			cookies = append(cookies, &http.Cookie{
				Name:  strings.TrimSpace(parts[0]),
				Value: strings.TrimSpace(parts[1]),
			})
		}
	}
	return cookies
}

// FetchDocument GET 页面并解析为文档，非 200 状态视为错误
func (f *Fetcher) FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("无效的URL %q: %w", rawURL, err)
	}
	if f.cookie != "" && len(f.jar.Cookies(u)) == 0 {
		f.jar.SetCookies(u, ParseCookies(f.cookie))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Referer", u.Scheme+"://"+u.Host)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("请求失败，状态码: %d", resp.StatusCode)
	}

	slog.Debug("页面已获取", "url", rawURL)
	return goquery.NewDocumentFromReader(resp.Body)
}

// FetchAll 依次抓取多个页面，请求之间随机等待
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []Page {
	pages := make([]Page, 0, len(urls))
	for i, u := range urls {
		if i > 0 {
			if err := f.pause(ctx); err != nil {
				pages = append(pages, Page{URL: u, Err: err})
				continue
			}
		}
		doc, err := f.FetchDocument(ctx, u)
		if err != nil {
			slog.Warn("获取页面失败", "url", u, "error", err)
		}
		pages = append(pages, Page{URL: u, Doc: doc, Err: err})
	}
	return pages
}

func (f *Fetcher) pause(ctx context.Context) error {
	d := f.MinDelay
	if span := f.MaxDelay - f.MinDelay; span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LoadDocument 读取本地保存的 HTML 文件
func LoadDocument(path string) (*goquery.Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer file.Close()

	doc, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}
	return doc, nil
}
