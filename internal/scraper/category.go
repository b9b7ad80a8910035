package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/shopee-price-tracker/internal/jsontree"
	"github.com/maltedev/shopee-price-tracker/internal/parser"
)

const defaultSearchLimit = 20

var productLinkSelectors = []string{
	`a[href*="-i."][href*="."]`,
	`a.shopee-search-item-result__item`,
	`a[data-testid*="product"]`,
}

// CategoryScanner discovers product URLs for a category or search page.
type CategoryScanner struct {
	fetcher *Fetcher
	opts    Options
	logger  *slog.Logger
}

func NewCategoryScanner(fetcher *Fetcher, opts Options, logger *slog.Logger) *CategoryScanner {
	return &CategoryScanner{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.With("component", "category_scanner"),
	}
}

// Discover asks the keyword search API first and scans the category page when
// the API yields nothing. limit <= 0 means no limit.
func (c *CategoryScanner) Discover(ctx context.Context, categoryURL string, limit int) ([]string, error) {
	keyword := categoryKeyword(categoryURL)
	c.logger.Info("searching for products", "keyword", keyword)

	links, err := c.searchAPI(ctx, keyword, limit)
	if err != nil {
		c.logger.Debug("search API failed", "error", err)
	}
	if len(links) == 0 {
		c.logger.Info("falling back to category page scan", "url", categoryURL)
		links, err = c.scanPage(ctx, categoryURL)
		if err != nil {
			return nil, err
		}
	}

	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	return links, nil
}

func categoryKeyword(categoryURL string) string {
	path := categoryURL
	if u, err := url.Parse(categoryURL); err == nil {
		path = u.Path
	}
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	return strings.ReplaceAll(strings.Trim(path, "/"), "-", " ")
}

func (c *CategoryScanner) searchAPI(ctx context.Context, keyword string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	q := url.Values{}
	q.Set("by", "relevancy")
	q.Set("keyword", keyword)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", "0")
	endpoint := strings.TrimRight(c.opts.APIBaseURL, "/") + "/api/v2/search_items?" + q.Encode()

	resp, err := c.fetcher.Get(ctx, endpoint, c.fetcher.apiHeaders(c.opts.UserAgent, ""))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	root, err := jsontree.Decode(resp.Body, apiPayloadDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	items, ok := root.Get("items")
	if !ok || items.Kind != jsontree.Array {
		return nil, nil
	}

	base := strings.TrimRight(c.opts.BaseURL, "/")
	var links []string
	for _, item := range items.Items {
		shopVal, _ := item.Get("shop_id")
		itemVal, _ := item.Get("item_id")
		if !shopVal.Truthy() || !itemVal.Truthy() {
			continue
		}
		nameVal, _ := item.Get("name")
		name := strings.ReplaceAll(nameVal.Text(), " ", "-")
		links = appendUnique(links, fmt.Sprintf("%s/%s-i.%s.%s", base, name, shopVal.Text(), itemVal.Text()))
	}

	c.logger.Info("search API returned products", "count", len(links))
	return links, nil
}

func (c *CategoryScanner) scanPage(ctx context.Context, categoryURL string) ([]string, error) {
	body, err := c.fetcher.FetchPage(ctx, categoryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch category page: %w", err)
	}
	return ExtractProductLinks(body, c.opts.BaseURL)
}

// ExtractProductLinks returns absolute product URLs found in page, deduplicated
// and in document order.
func ExtractProductLinks(page []byte, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base := strings.TrimRight(baseURL, "/")
	var links []string
	for _, selector := range productLinkSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok || href == "" {
				return
			}

			switch {
			case strings.HasPrefix(href, "/"):
				href = base + href
			case !strings.HasPrefix(href, "http"):
				href = base + "/" + href
			}

			if parser.IsProductURL(href) {
				links = appendUnique(links, href)
			}
		})
	}
	return links, nil
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
