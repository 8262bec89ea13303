package client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/Jigsaw-Code/outline-sdk/transport"
	"github.com/Jigsaw-Code/outline-sdk/x/configurl"
)

// buildHTTPClient constructs a fresh *http.Client and reports which proxy
// address it is bound to ("" for direct egress). A configured outline-sdk
// transport string takes precedence over the pool.
func (c *Client) buildHTTPClient(ctx context.Context) (*http.Client, string, error) {
	var tr *http.Transport
	var proxyAddr string

	if c.cfg.Transport != "" {
		var err error
		tr, err = c.dialerTransport()
		if err != nil {
			return nil, "", err
		}
	} else {
		tr = &http.Transport{
			TLSClientConfig:   c.tlsConf,
			ForceAttemptHTTP2: true,
		}
		if c.pool != nil {
			if addr := c.pool.GetNextProxy(ctx); addr != "" {
				u, err := url.Parse(addr)
				if err != nil {
					c.logger.Warn("skipping unparseable proxy address", "address", addr, "error", err)
				} else {
					tr.Proxy = http.ProxyURL(u)
					proxyAddr = addr
				}
			}
		}
	}

	return &http.Client{
		Transport: tr,
		Jar:       c.jar,
		Timeout:   c.cfg.RequestTimeout,
	}, proxyAddr, nil
}

// dialerTransport routes connections through an outline-sdk stream dialer
// built from the configured transport string.
func (c *Client) dialerTransport() (*http.Transport, error) {
	var dialer transport.StreamDialer
	dialer, err := configurl.NewDefaultConfigToDialer().NewStreamDialer(c.cfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("could not create dialer: %w", err)
	}

	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !strings.HasPrefix(network, "tcp") {
			return nil, fmt.Errorf("protocol not supported: %v", network)
		}
		return dialer.DialStream(ctx, addr)
	}

	return &http.Transport{
		DialContext:     dialContext,
		TLSClientConfig: c.tlsConf,
	}, nil
}
