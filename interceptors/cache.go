package interceptors

import (
	"context"
	"errors"
	nethttp "net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gaborage/go-relay/cache"
	"github.com/gaborage/go-relay/config"
	"github.com/gaborage/go-relay/events"
	"github.com/gaborage/go-relay/http"
	"github.com/gaborage/go-relay/logger"
	"github.com/gaborage/go-relay/status"
)

// HeaderCache is set on responses served from the cache
const HeaderCache = "X-Relay-Cache"

// CacheOptions configures the response cache interceptor
type CacheOptions struct {
	// TTL applies when the response carries no max-age; defaults to cache.DefaultTTL
	TTL time.Duration
	// Prefix is prepended to every key; defaults to cache.DefaultKeyPrefix
	Prefix string
	// Methods eligible for caching; GET when empty
	Methods []string
	Logger  logger.Logger
	Now     func() time.Time
}

// CacheOptionsFromConfig maps the cache section of the application configuration
func CacheOptionsFromConfig(cfg *config.CacheConfig, log logger.Logger) CacheOptions {
	return CacheOptions{TTL: cfg.TTL, Prefix: cfg.Prefix, Logger: log}
}

// Cache answers eligible requests from a cache.Cache during REQUEST and
// stores successful responses during RESPONSE. Cache failures never fail the
// request; they are logged and treated as a miss.
//
// The store is shared between callers. Responses to requests carrying
// Authorization, Cookie or basic auth credentials are stored only when the
// response is marked public, s-maxage or must-revalidate, and only such
// entries are served to credentialed requests. Entries remember the request
// values of the headers named by Vary and are served only when they match.
type Cache struct {
	store   cache.Cache
	ttl     time.Duration
	prefix  string
	methods []string
	logger  logger.Logger
	now     func() time.Time
}

var _ Interceptor = (*Cache)(nil)

// NewCache creates a cache interceptor backed by store
func NewCache(store cache.Cache, opts CacheOptions) *Cache {
	c := &Cache{
		store:   store,
		ttl:     opts.TTL,
		prefix:  opts.Prefix,
		methods: opts.Methods,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if c.ttl <= 0 {
		c.ttl = cache.DefaultTTL
	}
	if c.prefix == "" {
		c.prefix = cache.DefaultKeyPrefix
	}
	if len(c.methods) == 0 {
		c.methods = []string{nethttp.MethodGet}
	}
	if c.logger == nil {
		c.logger = logger.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.logger = c.logger.WithFields(map[string]any{"component": "cache-interceptor"})
	return c
}

// Register adds the REQUEST lookup and RESPONSE store listeners
func (c *Cache) Register(bus events.Dispatcher) func() {
	return combine(
		bus.AddListener(http.PhaseRequest, on(c.lookup), PriorityCache),
		bus.AddListener(http.PhaseResponse, on(c.save), PriorityCache),
	)
}

// Key returns the cache key for a method and URL
func (c *Cache) Key(method, url string) string {
	return c.prefix + method + ":" + url
}

func (c *Cache) eligible(req *http.Request) bool {
	if req.ResponseType == http.ResponseStream {
		return false
	}
	if cc := parseCacheControl(requestHeader(req, "Cache-Control")); cc.noStore || cc.noCache {
		return false
	}
	return slices.Contains(c.methods, methodOf(req))
}

func (c *Cache) lookup(ctx context.Context, e *http.RequestEvent) error {
	req := e.Request()
	if !c.eligible(req) {
		return nil
	}

	key := c.Key(methodOf(req), req.URL)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			c.logger.Warn().Err(err).Str("key", key).Bool("unreachable", cache.IsUnreachable(err)).Msg("cache lookup failed")
		}
		return nil
	}

	entry, err := cache.DecodeEntry(data)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("dropping corrupt cache entry")
		if delErr := c.store.Delete(ctx, key); delErr != nil {
			c.logger.Warn().Err(delErr).Str("key", key).Msg("cache delete failed")
		}
		return nil
	}
	if hasCredentials(req) && !entry.Shared {
		return nil
	}
	if !entry.MatchesVary(func(name string) string { return requestHeader(req, name) }) {
		c.logger.Debug().Str("key", key).Msg("cache entry does not match request variant")
		return nil
	}

	headers := nethttp.Header(entry.Headers).Clone()
	if headers == nil {
		headers = make(nethttp.Header)
	}
	headers.Set(HeaderCache, "HIT")
	headers.Set("Age", strconv.Itoa(int(entry.Age(c.now()).Seconds())))

	resp, err := http.RestoreResponse(req, entry.StatusCode, headers, entry.Body)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cached body could not be parsed")
		return nil
	}
	resp.URL = entry.URL

	c.logger.Debug().Str("key", key).Msg("cache hit")
	e.Respond(resp)
	return nil
}

func (c *Cache) save(ctx context.Context, e *http.ResponseEvent) error {
	resp := e.Response()
	if resp == nil || resp.Stats.ShortCircuited || resp.Stats.Recovered || resp.Status() != status.Success {
		return nil
	}
	req := e.Request()
	if !c.eligible(req) {
		return nil
	}

	cc := parseCacheControl(resp.Headers.Get("Cache-Control"))
	if hasCredentials(req) && !cc.shareable() {
		return nil
	}
	ttl, ok := c.storeTTL(cc)
	if !ok {
		return nil
	}
	vary, ok := varyValues(req, resp.Headers)
	if !ok {
		return nil
	}

	key := c.Key(methodOf(req), req.URL)
	data, err := cache.EncodeEntry(&cache.Entry{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers.Clone(),
		Body:       resp.Body,
		URL:        resp.URL,
		StoredAt:   c.now(),
		Vary:       vary,
		Shared:     cc.shareable(),
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry encoding failed")
		return nil
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache store failed")
		return nil
	}
	c.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("response cached")
	return nil
}

// storeTTL derives the entry lifetime from the response Cache-Control; ok is
// false when the response must not be stored. s-maxage wins over max-age.
func (c *Cache) storeTTL(cc cacheDirectives) (time.Duration, bool) {
	switch {
	case cc.noStore, cc.noCache, cc.private:
		return 0, false
	case cc.sMaxAge != nil:
		return *cc.sMaxAge, *cc.sMaxAge > 0
	case cc.maxAge != nil:
		return *cc.maxAge, *cc.maxAge > 0
	default:
		return c.ttl, true
	}
}

// varyValues captures the request values of the headers the response varies
// on. ok is false for Vary: *, which no stored entry can satisfy.
func varyValues(req *http.Request, h nethttp.Header) (map[string]string, bool) {
	var values map[string]string
	for _, line := range h.Values("Vary") {
		for name := range strings.SplitSeq(line, ",") {
			name = strings.TrimSpace(name)
			switch name {
			case "":
				continue
			case "*":
				return nil, false
			}
			if values == nil {
				values = make(map[string]string)
			}
			name = nethttp.CanonicalHeaderKey(name)
			values[name] = requestHeader(req, name)
		}
	}
	return values, true
}

// hasCredentials reports whether the request identifies a user
func hasCredentials(req *http.Request) bool {
	return req.Auth != nil ||
		requestHeader(req, "Authorization") != "" ||
		requestHeader(req, "Cookie") != ""
}

// requestHeader looks a header up case-insensitively
func requestHeader(req *http.Request, name string) string {
	if v, ok := req.Headers[name]; ok {
		return v
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

type cacheDirectives struct {
	noStore        bool
	noCache        bool
	private        bool
	public         bool
	mustRevalidate bool
	maxAge         *time.Duration
	sMaxAge        *time.Duration
}

// shareable reports whether a response to an authorized request may be stored
// and served to other callers
func (d cacheDirectives) shareable() bool {
	return d.public || d.mustRevalidate || d.sMaxAge != nil
}

func parseSeconds(value string) (*time.Duration, bool) {
	seconds, err := strconv.Atoi(strings.Trim(value, `"`))
	if err != nil {
		return nil, false
	}
	d := time.Duration(seconds) * time.Second
	return &d, true
}

func parseCacheControl(header string) cacheDirectives {
	var d cacheDirectives
	for part := range strings.SplitSeq(header, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		key, value, hasValue := strings.Cut(part, "=")
		switch key {
		case "no-store":
			d.noStore = true
		case "no-cache":
			d.noCache = true
		case "private":
			d.private = true
		case "public":
			d.public = true
		case "must-revalidate":
			d.mustRevalidate = true
		case "max-age":
			if maxAge, ok := parseSeconds(value); hasValue && ok {
				d.maxAge = maxAge
			}
		case "s-maxage":
			if sMaxAge, ok := parseSeconds(value); hasValue && ok {
				d.sMaxAge = sMaxAge
			}
		}
	}
	return d
}
