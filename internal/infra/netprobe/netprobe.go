// Package netprobe reports whether the client can currently reach the internet.
//
// The Request Executor consults a Prober before each remote call and fails
// fast when the device is clearly offline.
package netprobe

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TransportType describes the link the device is using.
type TransportType string

const (
	TransportNone     TransportType = "none"
	TransportWiFi     TransportType = "wifi"
	TransportEthernet TransportType = "ethernet"
	TransportCellular TransportType = "cellular"
	TransportOther    TransportType = "other"
	TransportUnknown  TransportType = "unknown"
)

// Reachability is a tri-state answer: a probe that has not run yet is Unknown.
type Reachability int

const (
	ReachabilityUnknown Reachability = iota
	Reachable
	Unreachable
)

func (r Reachability) String() string {
	switch r {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Status is a connectivity snapshot.
type Status struct {
	Connected         bool
	InternetReachable Reachability
	Type              TransportType
	CheckedAt         time.Time
}

// Offline reports whether requests should not be attempted.
// Unknown reachability is treated as online.
func (s Status) Offline() bool {
	return !s.Connected || s.InternetReachable == Unreachable
}

// Prober reports connectivity.
type Prober interface {
	Status(ctx context.Context) Status
}

// Static is a Prober that always returns the same status.
type Static struct {
	S Status
}

// Status returns the fixed status.
func (s Static) Status(context.Context) Status {
	return s.S
}

// Online is a Static prober that always reports a reachable connection.
var Online = Static{S: Status{Connected: true, InternetReachable: Reachable, Type: TransportUnknown}}

// Link is the subset of interface data the prober looks at.
type Link struct {
	Name     string
	Up       bool
	Loopback bool
	HasAddr  bool
}

// Config holds HTTPProber settings.
type Config struct {
	// URL is requested with HEAD to decide internet reachability.
	URL string

	// Timeout bounds a single reachability request.
	// Default: 3s
	Timeout time.Duration

	// CacheTTL is how long a status is reused before probing again.
	// Default: 5s
	CacheTTL time.Duration
}

// DefaultConfig returns the default prober configuration.
func DefaultConfig(url string) Config {
	return Config{
		URL:      url,
		Timeout:  3 * time.Second,
		CacheTTL: 5 * time.Second,
	}
}

// HTTPProber derives link state from the host's network interfaces and
// internet reachability from a HEAD request. Results are cached for CacheTTL
// and concurrent probes collapse into one.
type HTTPProber struct {
	cfg    Config
	client *http.Client
	links  func() ([]Link, error)
	now    func() time.Time
	logger *slog.Logger
	group  singleflight.Group

	mu   sync.Mutex
	last Status
}

// Option configures an HTTPProber.
type Option func(*HTTPProber)

// WithHTTPClient overrides the HTTP client used for reachability requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *HTTPProber) { p.client = c }
}

// WithLinks overrides interface discovery.
func WithLinks(fn func() ([]Link, error)) Option {
	return func(p *HTTPProber) { p.links = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *HTTPProber) { p.now = now }
}

// NewHTTPProber creates a prober.
func NewHTTPProber(cfg Config, logger *slog.Logger, opts ...Option) *HTTPProber {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &HTTPProber{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		links:  systemLinks,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Status returns the cached status or probes when it is stale.
func (p *HTTPProber) Status(ctx context.Context) Status {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if !last.CheckedAt.IsZero() && p.now().Sub(last.CheckedAt) < p.cfg.CacheTTL {
		return last
	}

	// The result is cached and shared, so one caller's cancellation must not
	// decide it. The probe is still bounded by cfg.Timeout.
	probeCtx := context.WithoutCancel(ctx)
	v, _, _ := p.group.Do("status", func() (interface{}, error) {
		return p.probe(probeCtx), nil
	})
	st := v.(Status)

	p.mu.Lock()
	prev := p.last
	p.last = st
	p.mu.Unlock()

	if prev.CheckedAt.IsZero() || prev.Offline() != st.Offline() {
		p.logger.Info("connectivity changed",
			slog.Bool("connected", st.Connected),
			slog.String("internet", st.InternetReachable.String()),
			slog.String("type", string(st.Type)))
	}
	return st
}

// Invalidate drops the cached status so the next call probes again.
func (p *HTTPProber) Invalidate() {
	p.mu.Lock()
	p.last = Status{}
	p.mu.Unlock()
}

func (p *HTTPProber) probe(ctx context.Context) Status {
	st := Status{Type: TransportNone, InternetReachable: Unreachable, CheckedAt: p.now()}

	links, err := p.links()
	if err != nil {
		p.logger.Warn("failed to list network interfaces", slog.Any("error", err))
		st.Connected = true
		st.Type = TransportUnknown
		st.InternetReachable = ReachabilityUnknown
	} else {
		for _, l := range links {
			if l.Up && !l.Loopback && l.HasAddr {
				st.Connected = true
				st.Type = classifyLink(l.Name)
				break
			}
		}
		if !st.Connected {
			return st
		}
	}

	if p.cfg.URL == "" {
		st.InternetReachable = ReachabilityUnknown
		return st
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, p.cfg.URL, nil)
	if err != nil {
		st.InternetReachable = ReachabilityUnknown
		return st
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("reachability probe failed", slog.String("url", p.cfg.URL), slog.Any("error", err))
		st.InternetReachable = Unreachable
		return st
	}
	_ = resp.Body.Close()
	// Any HTTP answer, even an error status, proves the path is up.
	st.InternetReachable = Reachable
	return st
}

func classifyLink(name string) TransportType {
	n := strings.ToLower(name)
	switch {
	case strings.HasPrefix(n, "wl"), strings.HasPrefix(n, "wifi"), strings.HasPrefix(n, "ath"):
		return TransportWiFi
	case strings.HasPrefix(n, "wwan"), strings.HasPrefix(n, "rmnet"), strings.HasPrefix(n, "pdp_ip"), strings.HasPrefix(n, "ccmni"):
		return TransportCellular
	case strings.HasPrefix(n, "en"), strings.HasPrefix(n, "eth"):
		return TransportEthernet
	default:
		return TransportOther
	}
}

func systemLinks() ([]Link, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	links := make([]Link, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, _ := iface.Addrs()
		links = append(links, Link{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
			HasAddr:  len(addrs) > 0,
		})
	}
	return links, nil
}
