package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrUnreachable = errors.New("target not reachable or not allowed")

// ReachabilityChecker проверяет, что цель ссылки существует и доступна
type ReachabilityChecker interface {
	Check(ctx context.Context, target string) error
}

// ReachabilityConfig конфигурация проверки доступности
type ReachabilityConfig struct {
	Timeout           time.Duration // Таймаут одной проверки
	RequestsPerSecond float64       // Лимит исходящих проверок
	AllowPrivate      bool          // Разрешить цели в приватных сетях
}

type lookupFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

// httpReachabilityChecker резолвит хост, отсекает приватные адреса и делает HEAD, затем GET
type httpReachabilityChecker struct {
	client       *http.Client
	lookup       lookupFunc
	limiter      *rate.Limiter
	timeout      time.Duration
	allowPrivate bool
	logger       *zap.Logger
}

// NewReachabilityChecker создаёт проверку доступности целей
func NewReachabilityChecker(cfg ReachabilityConfig, logger *zap.Logger) ReachabilityChecker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &httpReachabilityChecker{
		client:       newProbeClient(cfg),
		lookup:       net.DefaultResolver.LookupIPAddr,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		timeout:      cfg.Timeout,
		allowPrivate: cfg.AllowPrivate,
		logger:       logger,
	}
}

const maxProbeRedirects = 5

var errPrivateAddress = errors.New("dial to private/local address refused")

// newProbeClient клиент проверок: адрес проверяется при каждом соединении,
// включая переходы по редиректам и повторный DNS резолв.
func newProbeClient(cfg ReachabilityConfig) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	if !cfg.AllowPrivate {
		dialer.Control = func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ip := net.ParseIP(host); ip == nil || isPrivateIP(ip) {
				return errPrivateAddress
			}
			return nil
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxProbeRedirects {
				return errors.New("too many redirects")
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
			}
			return nil
		},
	}
}

func (c *httpReachabilityChecker) Check(ctx context.Context, target string) error {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidURL
	}

	// Ждём токен, чтобы не заваливать чужие сервера проверками
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: probe rate limit: %v", ErrUnreachable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.checkHost(ctx, u.Hostname()); err != nil {
		return err
	}

	if err := c.probe(ctx, target); err != nil {
		c.logger.Debug("Цель недоступна", zap.String("target", target), zap.Error(err))
		return err
	}

	return nil
}

func (c *httpReachabilityChecker) checkHost(ctx context.Context, host string) error {
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		addrs, err := c.lookup(ctx, host)
		if err != nil {
			return fmt.Errorf("%w: DNS lookup failed", ErrUnreachable)
		}
		for _, addr := range addrs {
			ips = append(ips, addr.IP)
		}
	}

	if len(ips) == 0 {
		return fmt.Errorf("%w: no DNS address", ErrUnreachable)
	}

	if !c.allowPrivate {
		for _, ip := range ips {
			if isPrivateIP(ip) {
				return fmt.Errorf("%w: hostname resolves to private/local IP", ErrUnreachable)
			}
		}
	}

	return nil
}

// probe делает HEAD и, если сервер его не поддерживает, GET
func (c *httpReachabilityChecker) probe(ctx context.Context, target string) error {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		ok, err := c.do(ctx, method, target)
		if errors.Is(err, errPrivateAddress) {
			return fmt.Errorf("%w: target connects to private/local IP", ErrUnreachable)
		}
		if err != nil {
			return fmt.Errorf("%w: HTTP request failed", ErrUnreachable)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: unexpected HTTP status", ErrUnreachable)
}

func (c *httpReachabilityChecker) do(ctx context.Context, method, target string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode >= 200 && resp.StatusCode < 400, nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
