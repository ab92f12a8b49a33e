package status

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cyberinferno/go-slp/cacher"
	"github.com/cyberinferno/go-slp/logger"
)

const cacheKey = "status"

// refreshTimeout bounds one cache round trip. It runs detached from the caller,
// which stops waiting as soon as its own context ends.
const refreshTimeout = 5 * time.Second

// Config describes what the server advertises.
type Config struct {
	MOTD               string
	VersionName        string
	Protocol           uint64
	MaxPlayers         uint64
	FaviconPath        string
	EnforcesSecureChat bool
	// CacheTTL is how long a built document is reused; 0 builds on every request.
	CacheTTL time.Duration
	// SamplePlayers are listed in the player sample and always count as online.
	SamplePlayers []string
}

// Provider builds status documents from a Config. It satisfies
// connection.StatusSource.
type Provider struct {
	config  Config
	favicon string
	sample  []PlayerSample
	cache   cacher.Cacher[string]
	online  func(limit uint64) uint64
	log     logger.Logger

	refresh singleflight.Group
	last    atomic.Pointer[string]
}

// NewProvider fills defaults into config and loads the favicon once.
//
// Parameters:
//   - config: What to advertise
//   - cache: Where built documents are kept for CacheTTL; may be nil
//   - log: Logger for build failures
//
// Returns:
//   - A new *Provider
//   - An error if the favicon cannot be loaded
func NewProvider(config Config, cache cacher.Cacher[string], log logger.Logger) (*Provider, error) {
	if config.MOTD == "" {
		config.MOTD = DefaultMOTD
	}

	if config.VersionName == "" {
		config.VersionName = DefaultVersionName
	}

	if config.Protocol == 0 {
		config.Protocol = DefaultProtocol
	}

	if config.MaxPlayers == 0 {
		config.MaxPlayers = DefaultMaxPlayers
	}

	p := &Provider{
		config: config,
		sample: NewSample(config.SamplePlayers),
		cache:  cache,
		online: func(limit uint64) uint64 { return rand.Uint64N(limit + 1) },
		log:    log.With(logger.Str("component", "status")),
	}

	if config.FaviconPath != "" {
		favicon, err := LoadFavicon(config.FaviconPath)
		if err != nil {
			return nil, err
		}

		p.favicon = favicon
	}

	return p, nil
}

// Data builds a fresh document. The online count is random up to the player
// limit but never below the sample size.
func (p *Provider) Data() Data {
	return Data{
		Version: Version{Name: p.config.VersionName, Protocol: p.config.Protocol},
		Players: Players{
			Max:    p.config.MaxPlayers,
			Online: max(p.online(p.config.MaxPlayers), uint64(len(p.sample))),
			Sample: slices.Clone(p.sample),
		},
		Description:        Description{Text: p.config.MOTD},
		Favicon:            p.favicon,
		EnforcesSecureChat: p.config.EnforcesSecureChat,
	}
}

// StatusPayload returns the serialized document, served from the cache while it
// is fresh. The cache round trip runs in the background; when it fails, or ctx
// ends first, the last document fetched from the cache is served, or a locally
// built one if there is none yet. A slow cache therefore never delays the
// caller past its deadline.
//
// Parameters:
//   - ctx: Bounds how long the caller waits for the cache
//
// Returns:
//   - The JSON document
//   - An error only if the document cannot be serialized
func (p *Provider) StatusPayload(ctx context.Context) ([]byte, error) {
	if p.cache == nil || p.config.CacheTTL <= 0 {
		return p.Data().Marshal()
	}

	ch := p.refresh.DoChan(cacheKey, p.fetch)

	select {
	case res := <-ch:
		if res.Err == nil {
			return []byte(res.Val.(string)), nil
		}

		p.log.Warn("status cache failed, serving fallback", logger.Err(res.Err))
	case <-ctx.Done():
		p.log.Warn("status cache too slow, serving fallback", logger.Err(ctx.Err()))
	}

	return p.fallback()
}

func (p *Provider) fetch() (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	payload, err := p.cache.GetOrFetch(ctx, cacheKey, p.config.CacheTTL, func(context.Context) (string, error) {
		data, err := p.Data().Marshal()
		return string(data), err
	})
	if err != nil {
		return nil, err
	}

	p.last.Store(&payload)
	return payload, nil
}

func (p *Provider) fallback() ([]byte, error) {
	if last := p.last.Load(); last != nil {
		return []byte(*last), nil
	}

	return p.Data().Marshal()
}

// Invalidate drops the cached document so the next request rebuilds it.
func (p *Provider) Invalidate(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}

	return p.cache.Delete(ctx, cacheKey)
}
