// Package headers fabricates a plausible client fingerprint: rotating
// User-Agent values and randomized forwarding headers.
package headers

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Generator produces the spoofed headers merged into every outbound request.
// A disabled generator returns an empty map.
type Generator interface {
	Headers() map[string]string
}

// Disabled is a Generator that contributes nothing.
type Disabled struct{}

func (Disabled) Headers() map[string]string {
	return map[string]string{}
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36 Edg/121.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
	"Mozilla/5.0 (X11; Linux x86_64; rv:123.0) Gecko/20100101 Firefox/123.0",
}

var acceptLanguages = []string{
	"zh-CN,zh;q=0.9",
	"en-US,en;q=0.5",
}

// Spoofer fabricates headers from an injected randomness source so tests can
// seed it deterministically.
type Spoofer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSpoofer returns a time-seeded Spoofer.
func NewSpoofer() *Spoofer {
	return NewSpooferWithSource(rand.NewSource(time.Now().UnixNano()))
}

func NewSpooferWithSource(src rand.Source) *Spoofer {
	return &Spoofer{rnd: rand.New(src)}
}

// Headers returns a fresh spoofed header set: forwarding headers carrying a
// random public IPv4, a rotating User-Agent and cache-busting directives.
func (s *Spoofer) Headers() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]string{
		"X-Forwarded-For": s.randomPublicIPv4(),
		"X-Real-IP":       s.randomPublicIPv4(),
		"User-Agent":      userAgents[s.rnd.Intn(len(userAgents))],
		"Accept-Language": acceptLanguages[s.rnd.Intn(len(acceptLanguages))],
		"Cache-Control":   "no-cache",
		"Pragma":          "no-cache",
	}
}

// randomPublicIPv4 generates a routable-looking IPv4, rejecting private,
// loopback, link-local and multicast ranges. Callers hold s.mu.
func (s *Spoofer) randomPublicIPv4() string {
	for {
		o1 := s.rnd.Intn(254) + 1
		if o1 == 10 || o1 == 127 || o1 >= 224 {
			continue
		}

		o2 := s.rnd.Intn(256)
		if o1 == 172 && o2 >= 16 && o2 <= 31 {
			continue
		}
		if o1 == 192 && o2 == 168 {
			continue
		}
		if o1 == 169 && o2 == 254 {
			continue
		}

		o3 := s.rnd.Intn(256)
		o4 := s.rnd.Intn(256)
		return fmt.Sprintf("%d.%d.%d.%d", o1, o2, o3, o4)
	}
}
