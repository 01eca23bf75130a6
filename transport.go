package supra

import (
	"net"
	"net/http"
	"sync"
)

// pools holds one keep-alive transport per scheme, shared by every request
// the client makes.
type pools struct {
	plain  *http.Transport
	secure *http.Transport
}

func newPools(config TransportConfig) *pools {
	return &pools{
		plain:  newTransport(config, false),
		secure: newTransport(config, true),
	}
}

func newTransport(config TransportConfig, secure bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{
		Timeout:   config.DialTimeout,
		KeepAlive: config.KeepAlive,
	}).DialContext
	t.MaxIdleConns = config.MaxIdleConns
	t.MaxIdleConnsPerHost = config.MaxIdleConnsPerHost
	t.MaxConnsPerHost = config.MaxConnsPerHost
	t.IdleConnTimeout = config.IdleConnTimeout
	t.TLSHandshakeTimeout = config.TLSHandshakeTimeout
	t.DisableKeepAlives = false
	// The client decodes bodies itself.
	t.DisableCompression = true
	if secure && config.TLSClientConfig != nil {
		t.TLSClientConfig = config.TLSClientConfig.Clone()
	}
	return t
}

func (p *pools) forScheme(scheme string) *http.Transport {
	if scheme == "https" {
		return p.secure
	}
	return p.plain
}

func (p *pools) closeIdle() {
	p.plain.CloseIdleConnections()
	p.secure.CloseIdleConnections()
}

var (
	sharedPoolsOnce sync.Once
	sharedPools     *pools
)

// defaultPools returns the process-wide pools used by clients built with
// DefaultTransportConfig.
func defaultPools() *pools {
	sharedPoolsOnce.Do(func() {
		sharedPools = newPools(DefaultTransportConfig())
	})
	return sharedPools
}
