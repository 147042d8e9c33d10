package agent

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/l3ad-solutions/intake/internal/model"
)

const (
	// fetchTimeout bounds the wall-clock time of a single page fetch.
	fetchTimeout = 10 * time.Second

	// contentBudget caps cleaned page text to bound downstream token cost.
	contentBudget = 8000

	// fetchUserAgent identifies the crawler to page owners.
	fetchUserAgent = "Mozilla/5.0 (compatible; L3adBot/1.0; +https://l3adsolutions.com)"

	// maxFetchBody limits how much of a response body is read.
	maxFetchBody = 2 * 1024 * 1024
)

// failedFetchPrefix marks content that stands in for an unfetchable page.
// Downstream stages treat such pages as low-information text, not errors.
const failedFetchPrefix = "[Failed to fetch: "

// emptyPageContent marks a page that fetched fine but cleaned to nothing.
const emptyPageContent = "[Page loaded but no text content found]"

// socialDomains maps registrable domains to the platform name recorded on
// discovered links.
var socialDomains = map[string]string{
	"facebook.com":    "Facebook",
	"instagram.com":   "Instagram",
	"linkedin.com":    "LinkedIn",
	"twitter.com":     "Twitter",
	"x.com":           "Twitter",
	"youtube.com":     "YouTube",
	"tiktok.com":      "TikTok",
	"yelp.com":        "Yelp",
	"nextdoor.com":    "Nextdoor",
	"bbb.org":         "BBB",
	"homeadvisor.com": "HomeAdvisor",
	"houzz.com":       "Houzz",
	"thumbtack.com":   "Thumbtack",
	"angieslist.com":  "Angie's List",
	"angi.com":        "Angi",
	"google.com":      "Google Business",
}

// Fetcher retrieves third-party pages and reduces them to bounded plain text.
type Fetcher struct {
	http     *http.Client
	validate func(string) error
}

// NewFetcher creates a Fetcher with a client tuned for untrusted hosts.
func NewFetcher() *Fetcher {
	return &Fetcher{
		validate: ValidateURL,
		http: &http.Client{
			Timeout: fetchTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: fetchTimeout,
				}).DialContext,
				TLSHandshakeTimeout: fetchTimeout,
			},
		},
	}
}

// FetchPage validates, fetches, and cleans one page. It never returns an
// error: guard rejections, timeouts, and HTTP failures all come back as a
// placeholder content string so callers handle one shape.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) model.FetchResult {
	if err := f.validate(pageURL); err != nil {
		return failedFetch(err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return failedFetch(err.Error())
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.http.Do(req)
	if err != nil {
		zap.L().Debug("agent: fetch failed",
			zap.String("url", pageURL),
			zap.Error(err),
		)
		return failedFetch(err.Error())
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return failedFetch(fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return failedFetch(err.Error())
	}
	html := string(body)

	// Links are scanned from raw markup before tags are stripped.
	sourceHost := ""
	if u, err := url.Parse(pageURL); err == nil {
		sourceHost = u.Hostname()
	}
	links := extractSocialLinks(html, sourceHost)

	content := cleanHTML(html)
	if content == "" {
		content = emptyPageContent
	}

	return model.FetchResult{Content: content, DiscoveredLinks: links}
}

func failedFetch(msg string) model.FetchResult {
	return model.FetchResult{Content: failedFetchPrefix + msg + "]"}
}

// HasContent reports whether fetched page content carries real text, as
// opposed to a failure placeholder or an empty-page sentinel.
func HasContent(content string) bool {
	return !strings.HasPrefix(content, "[Failed") &&
		!strings.HasPrefix(content, "[Page loaded but no")
}

var (
	scriptRe     = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	styleRe      = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// cleanHTML strips script and style blocks, drops remaining tags, collapses
// whitespace, and truncates to the content budget.
func cleanHTML(html string) string {
	text := scriptRe.ReplaceAllString(html, "")
	text = styleRe.ReplaceAllString(text, "")
	text = tagRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	return truncate(text, contentBudget)
}

// truncate cuts s to at most limit bytes without splitting a UTF-8 rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// extractSocialLinks scans raw HTML for anchors pointing at recognized
// social or business-directory domains, excluding same-site links.
// Duplicates collapse on the URL with any trailing slash removed.
func extractSocialLinks(html, sourceHost string) []model.SocialLink {
	base := &url.URL{Scheme: "https", Host: sourceHost}
	selfHost := strings.ToLower(strings.TrimPrefix(sourceHost, "www."))

	seen := make(map[string]bool)
	var links []model.SocialLink

	idx := 0
	for {
		pos := strings.Index(html[idx:], "href=")
		if pos == -1 {
			break
		}
		idx += pos + 5
		if idx >= len(html) {
			break
		}

		quote := html[idx]
		if quote != '"' && quote != '\'' {
			continue
		}
		idx++

		end := strings.IndexByte(html[idx:], quote)
		if end == -1 {
			break
		}
		href := html[idx : idx+end]
		idx += end + 1

		resolved, err := url.Parse(href)
		if err != nil {
			continue
		}
		absolute := base.ResolveReference(resolved)
		if absolute.Scheme != "http" && absolute.Scheme != "https" {
			continue
		}

		hostname := strings.ToLower(strings.TrimPrefix(absolute.Hostname(), "www."))
		if hostname == "" || hostname == selfHost {
			continue
		}

		platform := matchSocialDomain(hostname)
		if platform == "" {
			continue
		}

		normalized := strings.TrimSuffix(absolute.String(), "/")
		if seen[normalized] {
			continue
		}
		seen[normalized] = true

		links = append(links, model.SocialLink{Platform: platform, URL: normalized})
	}

	return links
}

// matchSocialDomain returns the platform for a hostname that equals a known
// domain or is a subdomain of one, or "".
func matchSocialDomain(hostname string) string {
	for domain, platform := range socialDomains {
		if hostname == domain || strings.HasSuffix(hostname, "."+domain) {
			return platform
		}
	}
	return ""
}

// PlatformFor labels a URL with its social platform name, falling back to
// the bare hostname for unrecognized sites.
func PlatformFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "Website"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if platform := matchSocialDomain(host); platform != "" {
		return platform
	}
	return host
}
