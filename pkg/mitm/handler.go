package mitm

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ironcurtain/ironcurtain/pkg/ironerr"
	"github.com/ironcurtain/ironcurtain/pkg/ironlog"
)

// innerHandler is the net/http.Handler served over each TLS-terminated
// connection the outer listener accepts. It enforces the {host, method,
// path} allowlist, performs the sentinel-key swap, and streams the
// upstream response back without buffering (spec §4.G: large model/tool
// responses must not be held in memory end to end).
type innerHandler struct {
	host      string // the upstream host this connection was dialed for (from SNI/CONNECT target)
	allowlist *Allowlist
	sentinel  *SentinelSwapper
	transport http.RoundTripper
	logger    *ironlog.Logger
}

func newInnerHandler(host string, allowlist *Allowlist, sentinel *SentinelSwapper, logger *ironlog.Logger) *innerHandler {
	return &innerHandler{
		host:      host,
		allowlist: allowlist,
		sentinel:  sentinel,
		transport: upstreamTransport(),
		logger:    logger,
	}
}

// upstreamTransport disables Nagle's algorithm on the dial (via TCP
// NoDelay) so small, latency-sensitive chat-completion chunks aren't
// held up waiting to coalesce with the next write.
func upstreamTransport() http.RoundTripper {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				_ = tcpConn.SetNoDelay(true)
			}
			return conn, nil
		},
		ForceAttemptHTTP2:    true,
		MaxIdleConnsPerHost:  4,
		IdleConnTimeout:      90 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
}

func (h *innerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.allowlist.Allows(h.host, r.Method, r.URL.Path) {
		h.logEvent(ironlog.LevelWarn, "endpoint_denied", r)
		writeJSONError(w, http.StatusForbidden, ironerr.ErrCodeMITMEndpointDenied, fmt.Sprintf("endpoint not in allowlist: %s %s%s", r.Method, h.host, r.URL.Path))
		return
	}

	matched, present := h.sentinel.Swap(r.Header)
	if present && !matched {
		h.logEvent(ironlog.LevelWarn, "sentinel_mismatch", r)
		writeJSONError(w, http.StatusForbidden, ironerr.ErrCodeMITMSentinelBad, "credential header present but did not match a configured sentinel")
		return
	}

	upstreamReq := r.Clone(r.Context())
	upstreamReq.URL.Scheme = "https"
	upstreamReq.URL.Host = h.host
	upstreamReq.Host = h.host
	upstreamReq.RequestURI = ""

	resp, err := h.transport.RoundTrip(upstreamReq)
	if err != nil {
		h.logEvent(ironlog.LevelError, "upstream_error", r)
		writeJSONError(w, http.StatusBadGateway, ironerr.ErrCodeMITMUpstream, "upstream request failed: "+err.Error())
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return
		}
		if readErr != nil {
			return
		}
	}
}

func (h *innerHandler) logEvent(level ironlog.Level, eventType string, r *http.Request) {
	if h.logger == nil {
		return
	}
	msg := fmt.Sprintf("%s %s%s", r.Method, h.host, r.URL.Path)
	switch level {
	case ironlog.LevelError:
		h.logger.Error(ironlog.CategoryMITM, eventType, msg, nil)
	default:
		h.logger.Warn(ironlog.CategoryMITM, eventType, msg, nil)
	}
}

func writeJSONError(w http.ResponseWriter, status int, code ironerr.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%q,"message":%q}}`, code, message)
}
