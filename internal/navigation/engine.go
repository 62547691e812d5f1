package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nao1215/bebop/internal/model"
	"github.com/nao1215/bebop/internal/parser"
	"github.com/nao1215/bebop/internal/protocol"
	"github.com/nao1215/bebop/internal/uri"
)

// DefaultMaxRedirects is the number of redirects followed in a row before
// a navigation fails.
const DefaultMaxRedirects = 5

// Fetcher performs single requests. *protocol.Registry implements it.
type Fetcher interface {
	Fetch(ctx context.Context, u *uri.URL) (*protocol.Response, error)
}

// ResponseCache stores success responses. *cache.Cache implements it.
type ResponseCache interface {
	Get(u *uri.URL) (*protocol.Response, bool)
	Put(u *uri.URL, resp *protocol.Response) bool
	Invalidate(u *uri.URL)
}

// Engine drives one browsing session: it owns the history and the current
// page and decides what each response status means. One navigation runs
// at a time; the fetcher and cache may be shared with other engines.
type Engine struct {
	mu      sync.Mutex
	history *History
	page    *model.Page

	fetcher Fetcher
	cache   ResponseCache
	parser  *parser.Parser
	group   *singleflight.Group

	maxRedirects int
	autoFollow   bool
	policy       CommitPolicy
	version      string
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache sets the response cache. Without one every page is fetched.
func WithCache(c ResponseCache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithParser sets the page parser.
func WithParser(p *parser.Parser) Option {
	return func(e *Engine) {
		e.parser = p
	}
}

// WithMaxRedirects sets how many redirects are followed in a row.
func WithMaxRedirects(n int) Option {
	return func(e *Engine) {
		e.maxRedirects = n
	}
}

// WithAutoFollowRedirects enables or disables following redirects. When
// disabled, Navigate returns a *RedirectError instead.
func WithAutoFollowRedirects(follow bool) Option {
	return func(e *Engine) {
		e.autoFollow = follow
	}
}

// WithCommitPolicy sets the policy of the selectors returned by Selector.
func WithCommitPolicy(p CommitPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithHistoryLimit sets the number of history entries kept.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		e.history = NewHistory(n)
	}
}

// WithSingleflight shares a request group between engines so that
// identical concurrent fetches from several tabs are made once.
func WithSingleflight(g *singleflight.Group) Option {
	return func(e *Engine) {
		e.group = g
	}
}

// WithVersion sets the version shown on about:version.
func WithVersion(v string) Option {
	return func(e *Engine) {
		e.version = v
	}
}

// WithClock sets the time source. It is meant for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an Engine fetching through f.
func NewEngine(f Fetcher, opts ...Option) *Engine {
	e := &Engine{
		history:      NewHistory(DefaultHistoryLimit),
		fetcher:      f,
		parser:       parser.New(),
		group:        &singleflight.Group{},
		maxRedirects: DefaultMaxRedirects,
		autoFollow:   true,
		policy:       CommitUnambiguous,
		version:      "dev",
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// navigateOptions are the per-call settings of Navigate.
type navigateOptions struct {
	reload  bool
	asInput bool
}

// NavigateOption changes a single navigation.
type NavigateOption func(*navigateOptions)

// Reload bypasses the cache.
func Reload() NavigateOption {
	return func(o *navigateOptions) {
		o.reload = true
	}
}

// AsInput treats the target as text typed by the user, even when a page
// is open: "example.org/x" means "gemini://example.org/x" rather than a
// path relative to the current page.
func AsInput() NavigateOption {
	return func(o *navigateOptions) {
		o.asInput = true
	}
}

// Navigate opens target. It is resolved against the current page, or
// parsed as user input when there is none. On success the page becomes
// current and is pushed on the history; on failure nothing changes.
func (e *Engine) Navigate(ctx context.Context, target string, opts ...NavigateOption) (*model.Page, error) {
	var o navigateOptions
	for _, opt := range opts {
		opt(&o)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.resolve(target, o.asInput)
	if err != nil {
		return nil, err
	}
	return e.visit(ctx, u, !o.reload)
}

// FollowLink opens the link with the given number on the current page.
func (e *Engine) FollowLink(ctx context.Context, id int) (*model.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.page == nil {
		return nil, fmt.Errorf("%w: no page is open", ErrInvalidLinkID)
	}
	link, ok := e.page.Link(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d (page has %d links)", ErrInvalidLinkID, id, e.page.LinkCount())
	}
	if link.URL == nil {
		return nil, fmt.Errorf("%w: link %d has target %q", uri.ErrMalformedURL, id, link.Target)
	}
	return e.visit(ctx, link.URL, true)
}

// SubmitInput answers an input request by opening its URL with text as
// the query.
func (e *Engine) SubmitInput(ctx context.Context, req *InputRequiredError, text string) (*model.Page, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("no input request to answer")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.visit(ctx, req.URL.WithQuery(text), true)
}

// Back opens the previous history entry, preferring the cache.
func (e *Engine) Back(ctx context.Context) (*model.Page, error) {
	return e.move(ctx, -1)
}

// Forward opens the next history entry, preferring the cache.
func (e *Engine) Forward(ctx context.Context) (*model.Page, error) {
	return e.move(ctx, 1)
}

func (e *Engine) move(ctx context.Context, offset int) (*model.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.history.Peek(offset)
	if !ok {
		return nil, ErrNoHistory
	}
	page, err := e.load(ctx, entry.URL, true)
	if err != nil {
		return nil, err
	}
	e.history.Move(offset)
	e.page = page
	return page, nil
}

// Reload fetches the current page again, bypassing the cache, without
// adding a history entry.
func (e *Engine) Reload(ctx context.Context) (*model.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.history.Current()
	if !ok {
		return nil, ErrNoHistory
	}
	page, err := e.load(ctx, entry.URL, false)
	if err != nil {
		return nil, err
	}
	if e.cache != nil && page.URL != nil && page.URL.Key() != entry.URL.Key() {
		// The page now redirects; the old response is stale.
		e.cache.Invalidate(entry.URL)
	}
	e.page = page
	return page, nil
}

// Parent opens the directory containing the current page.
func (e *Engine) Parent(ctx context.Context) (*model.Page, error) {
	return e.relative(ctx, (*uri.URL).Parent)
}

// Root opens the root of the current host.
func (e *Engine) Root(ctx context.Context) (*model.Page, error) {
	return e.relative(ctx, (*uri.URL).Root)
}

func (e *Engine) relative(ctx context.Context, derive func(*uri.URL) *uri.URL) (*model.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.page == nil || e.page.URL == nil {
		return nil, ErrNoHistory
	}
	return e.visit(ctx, derive(e.page.URL), true)
}

// Fetch loads target without touching the history or the current page.
// target must be an absolute URL or user input. Redirects, the cache and
// request collapsing apply as for Navigate. It is safe to call
// concurrently, also while a navigation runs.
func (e *Engine) Fetch(ctx context.Context, target string) (*model.Page, error) {
	u, err := uri.ParseInput(target, uri.SchemeGemini)
	if err != nil {
		return nil, err
	}
	if u.Scheme == uri.SchemeAbout {
		e.mu.Lock()
		defer e.mu.Unlock()
	}
	return e.load(ctx, u, true)
}

// Current returns the current page, or nil before the first navigation.
func (e *Engine) Current() *model.Page {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.page
}

// Cursor returns the reading position on the current page.
func (e *Engine) Cursor() Cursor {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, _ := e.history.Current()
	return Cursor{Line: entry.Cursor}
}

// SetCursor records the reading position on the current page, restored
// when the page is returned to with Back or Forward.
func (e *Engine) SetCursor(line int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.SetCursor(line)
}

// History returns a copy of the history entries and the current position.
func (e *Engine) History() ([]Entry, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Entries(), e.history.Position()
}

// Selector returns a link selector for the current page.
func (e *Engine) Selector() *LinkSelector {
	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	if e.page != nil {
		count = e.page.LinkCount()
	}
	return NewLinkSelector(count, e.policy)
}

// resolve turns a navigation target into a URL.
func (e *Engine) resolve(target string, asInput bool) (*uri.URL, error) {
	if e.page == nil || e.page.URL == nil || asInput {
		return uri.ParseInput(target, uri.SchemeGemini)
	}
	return uri.Resolve(e.page.URL, target)
}

// visit loads u and makes it the current page on success.
func (e *Engine) visit(ctx context.Context, u *uri.URL, useCache bool) (*model.Page, error) {
	page, err := e.load(ctx, u, useCache)
	if err != nil {
		return nil, err
	}
	e.history.Push(Entry{URL: page.URL, VisitedAt: e.now()})
	e.page = page
	return page, nil
}

// load fetches u, follows redirects and parses the final response. The
// cache is written only once the page parsed.
func (e *Engine) load(ctx context.Context, u *uri.URL, useCache bool) (*model.Page, error) {
	if u.Scheme == uri.SchemeAbout {
		return e.aboutPage(u)
	}

	current := u.WithoutFragment()
	for redirects := 0; ; redirects++ {
		resp, cached, err := e.fetch(ctx, current, useCache)
		if err != nil {
			return nil, err
		}

		switch resp.Status {
		case protocol.StatusSuccess:
			page, err := e.parser.Parse(resp.Meta, resp.Body, current)
			if err != nil {
				return nil, protocol.NewProtocolError("unusable response from %s: %v", current, err)
			}
			if e.cache != nil && !cached {
				e.cache.Put(current, resp)
			}
			return page, nil

		case protocol.StatusRedirect:
			target, err := uri.Resolve(current, resp.Meta)
			if err != nil {
				return nil, protocol.NewProtocolError("invalid redirect from %s: %v", current, err)
			}
			if !e.autoFollow {
				return nil, &RedirectError{
					From:      current,
					To:        target,
					Code:      resp.Code,
					Permanent: resp.Code == protocol.CodePermanentRedirect,
				}
			}
			if redirects >= e.maxRedirects {
				return nil, protocol.NewProtocolError("more than %d redirects starting at %s", e.maxRedirects, u)
			}
			e.logger.Debug("following redirect", "from", current.WithQuery("").String(), "to", target.WithQuery("").String(), "code", resp.Code)
			current = target.WithoutFragment()

		case protocol.StatusInput:
			return nil, &InputRequiredError{URL: current, Prompt: resp.Meta, Sensitive: resp.Sensitive()}

		default:
			return nil, &StatusError{URL: current, Status: resp.Status, Code: resp.Code, Meta: resp.Meta}
		}
	}
}

// fetch returns the response for u from the cache or the network. It
// reports whether the response came from the cache. Identical concurrent
// network fetches share one request.
func (e *Engine) fetch(ctx context.Context, u *uri.URL, useCache bool) (*protocol.Response, bool, error) {
	if useCache && e.cache != nil {
		if resp, ok := e.cache.Get(u); ok {
			e.logger.Debug("cache hit", urlAttrs(u)...)
			return resp, true, nil
		}
	}

	v, err, shared := e.group.Do(u.Key(), func() (any, error) {
		return e.fetcher.Fetch(ctx, u)
	})
	if err != nil {
		return nil, false, err
	}
	if shared {
		e.logger.Debug("shared in-flight fetch", urlAttrs(u)...)
	}
	resp, _ := v.(*protocol.Response)
	if resp == nil {
		return nil, false, protocol.NewProtocolError("no response for %s", u.WithQuery(""))
	}
	return resp, false, nil
}

// urlAttrs returns log attributes for u with the query under its own key,
// which the logging handler redacts.
func urlAttrs(u *uri.URL) []any {
	attrs := []any{"url", u.WithQuery("").String()}
	if u.RawQuery != "" {
		attrs = append(attrs, "query", u.RawQuery)
	}
	return attrs
}
