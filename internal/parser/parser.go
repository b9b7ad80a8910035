package parser

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/maltedev/shopee-price-tracker/internal/models"
)

var (
	// Listing URLs end in "<slug>-i.<shopId>.<itemId>"; the hyphen is sometimes missing.
	identifierPatterns = []*regexp.Regexp{
		regexp.MustCompile(`-i\.(\d+)\.(\d+)`),
		regexp.MustCompile(`i\.(\d+)\.(\d+)`),
	}

	slugSuffixPattern = regexp.MustCompile(`-i\.\d+\.\d+$`)

	productLinkPattern = regexp.MustCompile(`-i\.\d+\.\d+`)
)

// ParseIdentifiers extracts the shop/item identifier pair and a readable name
// fragment from a product URL. It never fails; missing parts are left empty.
func ParseIdentifiers(rawURL string) models.ParsedIDs {
	var ids models.ParsedIDs

	for _, pattern := range identifierPatterns {
		if matches := pattern.FindStringSubmatch(rawURL); len(matches) == 3 {
			ids.ShopID = matches[1]
			ids.ItemID = matches[2]
			break
		}
	}

	ids.NameSlug = nameSlug(rawURL)
	return ids
}

// IsProductURL reports whether href looks like a product listing link.
func IsProductURL(href string) bool {
	return productLinkPattern.MatchString(href)
}

func nameSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	slug := strings.Trim(u.Path, "/")
	slug = slugSuffixPattern.ReplaceAllString(slug, "")
	slug = strings.ReplaceAll(slug, "-", " ")

	return strings.TrimSpace(slug)
}
