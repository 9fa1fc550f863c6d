// Package fetch pulls numbered pages from a remote API.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/auth"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/retry"
)

// Config holds the inputs for a Fetcher.
// MaxPages defaults to constants.MaxPagesDefault when zero; a negative value removes the ceiling.
type Config struct {
	Log         logger.Logger
	Client      *http.Client
	URLTemplate string
	Auth        auth.Applier
	MaxPages    int
	Format      string // json|xml
	StartPage   int
}

// Fetcher requests pages until the API repeats itself or stops answering 200.
type Fetcher struct {
	cfg Config
}

func New(cfg Config) *Fetcher {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = constants.MaxPagesDefault
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.StartPage == 0 {
		cfg.StartPage = constants.PageStart
	}
	if cfg.Log == nil {
		cfg.Log = logger.NewLogger(constants.ServiceName, "error", false)
	}
	return &Fetcher{cfg: cfg}
}

// PageURL substitutes page into the URL template.
func PageURL(template string, page int) string {
	p := strconv.Itoa(page)
	s := strings.ReplaceAll(template, constants.PagePlaceholder, p)
	return strings.ReplaceAll(s, constants.PagePlaceholderLegacy, p)
}

// Fetch returns the decoded payloads of every page in order.
// The loop ends without error when a payload repeats an earlier one (the repeat is
// discarded), when a non-200 status is returned or when the page ceiling is reached.
// Transport failures, decode failures and context expiry return the pages collected
// so far along with a typed error.
func (f *Fetcher) Fetch(ctx context.Context) ([]interface{}, error) {
	pages := make([]interface{}, 0)
	seen := make(map[[32]byte]struct{})
	for page := f.cfg.StartPage; ; page++ {
		if f.cfg.MaxPages > 0 && len(pages) >= f.cfg.MaxPages {
			f.cfg.Log.Warn(fmt.Sprintf("page ceiling of %v reached, stopping", f.cfg.MaxPages))
			return pages, nil
		}
		u := PageURL(f.cfg.URLTemplate, page)
		if err := ctx.Err(); err != nil {
			return pages, &RequestError{URL: u, Page: page, Err: err}
		}
		status, body, err := f.get(ctx, u)
		if err != nil {
			return pages, &RequestError{URL: u, Page: page, Err: err}
		}
		if status != http.StatusOK {
			f.cfg.Log.Debug(fmt.Sprintf("page %v returned status %v, end of data", page, status))
			return pages, nil
		}
		doc, err := f.decode(body)
		if err != nil {
			return pages, &DecodeError{URL: u, Page: page, Format: f.cfg.Format, Err: err}
		}
		h, err := payloadHash(doc)
		if err != nil {
			return pages, &DecodeError{URL: u, Page: page, Format: f.cfg.Format, Err: err}
		}
		if _, ok := seen[h]; ok {
			f.cfg.Log.Debug(fmt.Sprintf("page %v repeats an earlier page, end of data", page))
			return pages, nil
		}
		seen[h] = struct{}{}
		pages = append(pages, doc)
		f.cfg.Log.Trace("fetched page ", page)
	}
}

func (f *Fetcher) get(ctx context.Context, u string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	if f.cfg.Auth != nil {
		if err = f.cfg.Auth.Apply(req); err != nil {
			return 0, nil, errors.Wrap(err, "unable to apply credentials")
		}
	}
	resp, err := f.cfg.Client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil, nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, "unable to read response body")
	}
	return resp.StatusCode, b, nil
}

func (f *Fetcher) decode(body []byte) (interface{}, error) {
	switch f.cfg.Format {
	case FormatXML:
		return DecodeXML(body)
	case FormatJSON:
		return DecodeJSON(body)
	}
	return nil, fmt.Errorf("unsupported format %q", f.cfg.Format)
}

// FetchAll runs Fetch through retry.Do, applying timeout to each attempt when it is positive.
// Every attempt starts again from the first page; the pages of the last attempt are returned.
func FetchAll(ctx context.Context, cfg Config, policy retry.Policy, timeout time.Duration) ([]interface{}, error) {
	f := New(cfg)
	var pages []interface{}
	err := retry.Do(ctx, f.cfg.Log, policy, func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		var err error
		pages, err = f.Fetch(ctx)
		return err
	})
	return pages, err
}

// TablePageURL builds the page URL template for table in def:
// base_url/<relative path> followed by the pagination query parameters in name order.
// A page placeholder is appended as parameter "page" when neither the path nor the
// pagination parameters contain one.
func TablePageURL(def connection.APIDefinition, table string) (string, error) {
	rel, ok := def.Tables[table]
	if !ok {
		return "", fmt.Errorf("table %q not found in API %q", table, def.SourceName)
	}
	base, err := url.Parse(def.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid base url %q for API %q", def.BaseURL, def.SourceName)
	}
	relPath, relQuery := rel, ""
	if i := strings.Index(rel, "?"); i >= 0 {
		relPath, relQuery = rel[:i], rel[i+1:]
	}
	s := strings.TrimRight(base.Scheme+"://"+base.Host+path.Join("/", base.Path, relPath), "/")
	params := make([]string, 0, len(def.Pagination)+1)
	if relQuery != "" {
		params = append(params, relQuery)
	}
	keys := make([]string, 0, len(def.Pagination))
	for k := range def.Pagination {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		params = append(params, url.QueryEscape(k)+"="+escapeKeepingPlaceholder(def.Pagination[k]))
	}
	if !hasPlaceholder(s) && !hasPlaceholder(strings.Join(params, "&")) {
		params = append(params, "page="+constants.PagePlaceholder)
	}
	if len(params) > 0 {
		s += "?" + strings.Join(params, "&")
	}
	return s, nil
}

func hasPlaceholder(s string) bool {
	return strings.Contains(s, constants.PagePlaceholder) || strings.Contains(s, constants.PagePlaceholderLegacy)
}

func escapeKeepingPlaceholder(v string) string {
	if v == constants.PagePlaceholder || v == constants.PagePlaceholderLegacy {
		return v
	}
	return url.QueryEscape(v)
}
