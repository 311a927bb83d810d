// Package media selects and validates the images attached to a note.
// Unreliable external image links are the biggest source of publish
// failures, so every candidate gets checked before selection.
package media

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"auto_xhs_publisher/logger"
)

// Candidate is a media reference plus its validation outcome.
type Candidate struct {
	URL    string
	Width  int
	Height int
	Format string
	Valid  bool
	Reason string
}

const maxImageBytes = 20 * 1024 * 1024

// 这些域名要么是占位符，要么开了防盗链：Python 端验证能过，
// 发布端下载会 403，所以直接拒掉。
var blockedDomains = []string{
	"example.com", "placeholder",
	"freepik.com", "shutterstock.com", "gettyimages.com",
	"istockphoto.com", "dreamstime.com", "stock.adobe.com", "123rf.com",
	"smzdm.com", "zdmimg.com", "qiantucdn.com",
	"gtimg.com", "sinaimg.cn", "mmbiz.qpic.cn",
	"xinhuanet.com", "cctv.com", "thepaper.cn", "36kr.com", "geekpark.net",
}

var allowedFormats = map[string]bool{
	"jpeg": true,
	"jpg":  true,
	"png":  true,
	"webp": true,
	"gif":  true,
}

// Validator checks one candidate for reachability, format and size.
// Stateless apart from its HTTP client; safe for concurrent use.
type Validator struct {
	client    *http.Client
	log       *logger.Logger
	minWidth  int
	minHeight int
}

func NewValidator(client *http.Client, log *logger.Logger) *Validator {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if log == nil {
		log = logger.New("info")
	}
	return &Validator{
		client:    client,
		log:       log,
		minWidth:  200,
		minHeight: 200,
	}
}

// Validate fills in the candidate's Valid flag and Reason. It never
// returns an error: an unreachable URL is a verdict, not a failure.
func (v *Validator) Validate(ctx context.Context, c *Candidate) {
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		c.Reason = "not an http(s) url"
		return
	}

	lower := strings.ToLower(c.URL)
	for _, domain := range blockedDomains {
		if strings.Contains(lower, domain) {
			c.Reason = "blocked domain: " + domain
			return
		}
	}

	// 图片声明了分辨率时先过门槛，省一次网络请求。
	if c.Width > 0 && c.Height > 0 && (c.Width < v.minWidth || c.Height < v.minHeight) {
		c.Reason = "below minimum resolution"
		return
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.URL, nil)
	if err != nil {
		c.Reason = "bad url: " + err.Error()
		return
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := v.client.Do(req)
	if err != nil {
		c.Reason = "unreachable: " + err.Error()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		c.Reason = "status " + resp.Status
		return
	}

	if resp.ContentLength > maxImageBytes {
		c.Reason = "image too large"
		return
	}

	format := formatOf(resp.Header.Get("Content-Type"), c.URL)
	if format == "" {
		c.Reason = "not an image content type"
		return
	}
	if !allowedFormats[format] {
		c.Reason = "format not allowed: " + format
		return
	}

	c.Format = format
	c.Valid = true
}

// formatOf resolves the image format from content type, falling back to
// the URL extension when the server reports a generic type.
func formatOf(contentType, url string) string {
	mainType := strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
	if strings.HasPrefix(mainType, "image/") {
		return strings.TrimPrefix(mainType, "image/")
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(strings.Split(url, "?")[0]), "."))
	if allowedFormats[ext] {
		return ext
	}
	return ""
}
