package probe

import (
	"net"
	"net/http"
	"net/netip"
	"time"
)

// boundClient возвращает HTTP клиент, исходящие соединения которого идут с адреса source
func boundClient(source netip.Addr, timeout time.Duration, maxConns int) *http.Client {
	dialer := &net.Dialer{
		LocalAddr: &net.TCPAddr{IP: source.AsSlice()},
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:               nil,
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: timeout,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}
