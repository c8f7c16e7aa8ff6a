package dataserver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"

	"github.com/five82/jpdict/internal/jpdict"
)

// Ensure Client implements jpdict.Source at compile time.
var _ jpdict.Source = (*Client)(nil)

// Client talks to the data server that publishes kanji and radical files.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

const (
	defaultDataURL   = "http://127.0.0.1:7490/"
	defaultUserAgent = "jpdict/0.1"
	versionTimeout   = 10 * time.Second
	maxLineBytes     = 1 << 20
	progressStep     = 0.01
)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient builds a Client for the data server at dataURL.
func NewClient(dataURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(dataURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchVersions retrieves the currently published version of every series.
func (c *Client) FetchVersions(ctx context.Context, lang string) (jpdict.DataVersions, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	var payload jpdict.DataVersions
	body, _, err := c.get(ctx, "version-"+lang+".json")
	if err != nil {
		return payload, err
	}
	defer func() { _ = body.Close() }()

	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return payload, c.downloadErr("version-"+lang+".json", fmt.Errorf("decode response: %w", err))
	}
	return payload, nil
}

// FetchKanji downloads the kanji series for lang at the given major version.
func (c *Client) FetchKanji(ctx context.Context, lang string, major int, progress func(float64)) ([]jpdict.KanjiRecord, error) {
	return fetchLines[jpdict.KanjiRecord](ctx, c, seriesFile("kanji", lang, major), progress)
}

// FetchRadicals downloads the radical series for lang at the given major version.
func (c *Client) FetchRadicals(ctx context.Context, lang string, major int, progress func(float64)) ([]jpdict.Radical, error) {
	return fetchLines[jpdict.Radical](ctx, c, seriesFile("radicals", lang, major), progress)
}

func seriesFile(series, lang string, major int) string {
	return series + "-rc-" + lang + "-" + strconv.Itoa(major) + ".ljson"
}

func fetchLines[T any](ctx context.Context, c *Client, file string, progress func(float64)) ([]T, error) {
	body, size, err := c.get(ctx, file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	reader := &progressReader{r: body, total: size, report: progress}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var out []T
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, c.downloadErr(file, fmt.Errorf("decode line %d: %w", len(out)+1, err))
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, c.classify(ctx, file, err)
	}
	if progress != nil {
		progress(1)
	}
	return out, nil
}

// get issues a GET for file relative to the base URL and returns the open
// body and its declared length (-1 when unknown).
func (c *Client) get(ctx context.Context, file string) (io.ReadCloser, int64, error) {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: file})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, c.classify(ctx, file, err)
	}
	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		return nil, 0, &jpdict.DownloadError{URL: reqURL.String(), Code: resp.StatusCode}
	}
	return resp.Body, resp.ContentLength, nil
}

// classify maps a transport error onto the jpdict error taxonomy.
func (c *Client) classify(ctx context.Context, file string, err error) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return fmt.Errorf("%w: %v", jpdict.ErrOffline, err)
	}
	return c.downloadErr(file, err)
}

func (c *Client) downloadErr(file string, err error) error {
	return &jpdict.DownloadError{
		URL: c.baseURL.ResolveReference(&url.URL{Path: file}).String(),
		Err: err,
	}
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   float64
	report func(float64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)
	if p.report != nil && p.total > 0 {
		frac := float64(p.read) / float64(p.total)
		if frac-p.last >= progressStep {
			p.last = frac
			p.report(min(frac, 1))
		}
	}
	return n, err
}

func parseBaseURL(dataURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(dataURL)
	if trimmed == "" {
		trimmed = defaultDataURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse data_url %q: %w", dataURL, err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
