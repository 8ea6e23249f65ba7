package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/markusmobius/go-trafilatura"
	cache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

const (
	fetcherUserAgent   = "NoteBridge-Bot/1.0 (+https://notebridge.app/bot)"
	fetchTimeout       = 15 * time.Second
	maxPageBodySize    = 10 * 1024 * 1024
	maxRobotsSize      = 1 * 1024 * 1024
	maxPageContentSize = 200 * 1024
)

// PageFetcher downloads pages for the web-search tool and reduces them to
// article text with trafilatura. It respects robots.txt, rate-limits per
// host, and caches extracted text so repeated searches don't re-fetch.
type PageFetcher struct {
	client       *http.Client
	robotsClient *http.Client
	globalLimit  *rate.Limiter
	hostLimits   *cache.Cache // host -> *rate.Limiter
	robotsCache  *cache.Cache // host -> *robotstxt.RobotsData
	pageCache    *cache.Cache // url -> extracted text
}

func NewPageFetcher() *PageFetcher {
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &PageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		robotsClient: &http.Client{Timeout: 10 * time.Second},
		globalLimit:  rate.NewLimiter(rate.Limit(10), 20),
		hostLimits:   cache.New(30*time.Minute, 10*time.Minute),
		robotsCache:  cache.New(24*time.Hour, 1*time.Hour),
		pageCache:    cache.New(1*time.Hour, 10*time.Minute),
	}
}

// FetchText returns the extracted article text for a URL, or an error
// describing why the page was skipped.
func (f *PageFetcher) FetchText(ctx context.Context, pageURL string) (string, error) {
	parsed, err := validatePublicURL(pageURL)
	if err != nil {
		return "", err
	}

	if cached, found := f.pageCache.Get(pageURL); found {
		return cached.(string), nil
	}

	allowed, crawlDelay := f.robotsAllow(ctx, parsed)
	if !allowed {
		return "", fmt.Errorf("blocked by robots.txt: %s", pageURL)
	}

	if err := f.globalLimit.Wait(ctx); err != nil {
		return "", err
	}
	if err := f.hostLimiter(parsed.Host, crawlDelay).Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", fetcherUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, parsed.Host)
	}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text/html") &&
		!strings.Contains(contentType, "text/plain") &&
		!strings.Contains(contentType, "application/xhtml+xml") {
		return "", fmt.Errorf("unsupported content type %s", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBodySize))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{OriginalURL: parsed})
	if err != nil {
		return "", fmt.Errorf("extraction failed: %w", err)
	}
	if result == nil || result.ContentText == "" {
		return "", fmt.Errorf("no article text in %s", pageURL)
	}

	text := result.ContentText
	if len(text) > maxPageContentSize {
		text = text[:maxPageContentSize]
	}
	if result.Metadata.Title != "" {
		text = result.Metadata.Title + "\n\n" + text
	}

	f.pageCache.Set(pageURL, text, cache.DefaultExpiration)
	return text, nil
}

// robotsAllow checks robots.txt, caching parse results per host. Missing
// or unreadable robots.txt allows the fetch with a default delay.
func (f *PageFetcher) robotsAllow(ctx context.Context, parsed *url.URL) (bool, time.Duration) {
	const defaultDelay = time.Second
	hostKey := parsed.Scheme + "://" + parsed.Host

	var data *robotstxt.RobotsData
	if cached, found := f.robotsCache.Get(hostKey); found {
		data = cached.(*robotstxt.RobotsData)
	} else {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, hostKey+"/robots.txt", nil)
		if err != nil {
			return true, defaultDelay
		}
		req.Header.Set("User-Agent", fetcherUserAgent)
		resp, err := f.robotsClient.Do(req)
		if err != nil {
			return true, defaultDelay
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return true, defaultDelay
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
		if err != nil {
			return true, defaultDelay
		}
		data, err = robotstxt.FromBytes(body)
		if err != nil {
			return true, defaultDelay
		}
		f.robotsCache.Set(hostKey, data, cache.DefaultExpiration)
	}

	group := data.FindGroup(fetcherUserAgent)
	delay := defaultDelay
	if group.CrawlDelay > 0 {
		delay = group.CrawlDelay
		if delay > 10*time.Second {
			delay = 10 * time.Second
		}
	}
	return group.Test(parsed.Path), delay
}

func (f *PageFetcher) hostLimiter(host string, crawlDelay time.Duration) *rate.Limiter {
	if cached, found := f.hostLimits.Get(host); found {
		return cached.(*rate.Limiter)
	}
	rps := 1.0 / crawlDelay.Seconds()
	if rps > 5 {
		rps = 5
	}
	if rps < 0.2 {
		rps = 0.2
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	f.hostLimits.Set(host, limiter, cache.DefaultExpiration)
	return limiter
}

// validatePublicURL rejects anything that could reach internal services.
func validatePublicURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("only http/https URLs are fetchable")
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "localhost" || host == "::1" {
		return nil, fmt.Errorf("localhost URLs are not allowed")
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return nil, fmt.Errorf("private addresses are not allowed")
		}
	}
	return parsed, nil
}
