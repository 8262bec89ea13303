package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"egress-client/pkg/config"
)

// remoteFetchTimeout bounds a single proxy fetch from a platform endpoint.
const remoteFetchTimeout = 5 * time.Second

// Provider is a source of candidate proxy addresses. GetProxy returns the
// next candidate, or an empty string and/or an error when none is available.
// Implementations do not retry; retry policy belongs to the pool.
type Provider interface {
	GetProxy(ctx context.Context) (string, error)
	Name() string
}

// StaticProvider always returns the same fixed address. Used for the
// debug_proxy override.
type StaticProvider struct {
	addr string
}

func NewStaticProvider(addr string) *StaticProvider {
	return &StaticProvider{addr: addr}
}

func (p *StaticProvider) Name() string {
	return "static"
}

func (p *StaticProvider) GetProxy(ctx context.Context) (string, error) {
	return p.addr, nil
}

// RemoteProvider fetches one address per call from a platform endpoint that
// answers a bare host:port body.
type RemoteProvider struct {
	platform config.ProxyPlatform
	client   *http.Client
	logger   *slog.Logger
}

func NewRemoteProvider(platform config.ProxyPlatform, logger *slog.Logger) *RemoteProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteProvider{
		platform: platform,
		client:   &http.Client{Timeout: remoteFetchTimeout},
		logger:   logger,
	}
}

func (p *RemoteProvider) Name() string {
	return p.platform.Name
}

// GetProxy issues a single GET to the platform's link and formats the trimmed
// body as http://host:port. Transport errors come back as errors for the
// pool to absorb.
func (p *RemoteProvider) GetProxy(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.platform.GetProxyLink, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", p.platform.DisplayName, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("proxy fetch failed",
			"platform", p.platform.Name,
			"error", err)
		return "", fmt.Errorf("failed to fetch proxy from %s: %w", p.platform.DisplayName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read proxy from %s: %w", p.platform.DisplayName, err)
	}

	return "http://" + strings.TrimSpace(string(body)), nil
}

// providersFromConfig builds the ordered provider list. Disabled proxy usage
// yields no providers. A configured debug_proxy supersedes platform
// selection entirely; otherwise platforms matching the "use" identifier are
// kept, sorted by ascending priority.
func providersFromConfig(conf config.ProxyConfig, logger *slog.Logger) []Provider {
	if !conf.Enable {
		return nil
	}

	if conf.DebugProxy != "" {
		return []Provider{NewStaticProvider(conf.DebugProxy)}
	}

	var platforms []config.ProxyPlatform
	for _, p := range conf.Platforms {
		if p.Name == conf.Use {
			platforms = append(platforms, p)
		}
	}
	sort.SliceStable(platforms, func(i, j int) bool {
		return platforms[i].Priority < platforms[j].Priority
	})

	providers := make([]Provider, 0, len(platforms))
	for _, p := range platforms {
		providers = append(providers, NewRemoteProvider(p, logger))
	}
	return providers
}
