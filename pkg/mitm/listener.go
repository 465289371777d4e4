package mitm

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/ironcurtain/ironcurtain/pkg/ironerr"
	"github.com/ironcurtain/ironcurtain/pkg/ironlog"
)

// handshakeTimeout bounds how long a single connection may spend on the
// CONNECT exchange and TLS handshake before the proxy gives up on it.
const handshakeTimeout = 10 * time.Second

// acceptLoop runs on the outer Unix-domain-socket listener: for each
// connection it reads an HTTP CONNECT request naming the upstream host,
// rejects hosts with no allowlist entries before ever touching TLS, then
// terminates TLS locally (picking the host's leaf certificate via SNI, or
// the CONNECT target if the client didn't send SNI) and serves the inner
// allowlist-enforcing handler over the decrypted connection.
func (p *Proxy) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-p.closing:
				return
			default:
			}
			p.logWarn("accept_error", err.Error())
			continue
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.handleConnection(conn)
		}()
	}
}

func (p *Proxy) handleConnection(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))

	host, err := readConnectTarget(conn)
	if err != nil {
		p.logWarn("connect_parse_error", err.Error())
		return
	}

	if !p.allowlist.AllowsHost(host) {
		fmt.Fprintf(conn, "HTTP/1.1 403 Forbidden\r\nContent-Length: 0\r\n\r\n")
		p.logWarn("host_denied", host)
		return
	}

	if _, err := fmt.Fprintf(conn, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		return
	}

	tlsConn := tls.Server(conn, p.tlsConfigFor(host))
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		p.logWarn("handshake_error", err.Error())
		return
	}
	_ = conn.SetDeadline(time.Time{})

	handler := newInnerHandler(host, p.allowlist, p.sentinel, p.logger)
	server := &http.Server{Handler: handler}
	// Providers like Anthropic's and OpenAI's serve HTTP/2; negotiating it
	// here too keeps a multiplexed agent session from falling back to
	// one-request-at-a-time HTTP/1.1 once it hits the proxy.
	if err := http2.ConfigureServer(server, &http2.Server{}); err != nil {
		p.logWarn("http2_configure_error", err.Error())
	}
	_ = server.Serve(&singleConnListener{conn: tlsConn})
}

// tlsConfigFor returns a tls.Config whose GetCertificate callback mints
// (or fetches the warmed cache entry for) the leaf certificate matching
// the client's SNI, falling back to the CONNECT target host if the client
// didn't send one.
func (p *Proxy) tlsConfigFor(connectHost string) *tls.Config {
	return &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			host := hello.ServerName
			if host == "" {
				host = connectHost
			}
			return p.ca.LeafFor(host)
		},
		NextProtos: []string{"h2", "http/1.1"},
		MinVersion: tls.VersionTLS12,
	}
}

// readConnectTarget reads a single HTTP CONNECT request line and headers
// off conn and returns the bare hostname (port stripped) it names.
func readConnectTarget(conn net.Conn) (string, error) {
	reader := bufio.NewReader(conn)
	req, err := http.ReadRequest(reader)
	if err != nil {
		return "", ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "read CONNECT request")
	}
	if req.Method != http.MethodConnect {
		return "", ironerr.New(ironerr.ErrCodeMITMHandshake, "expected CONNECT, got "+req.Method)
	}
	host := req.URL.Host
	if host == "" {
		host = req.Host
	}
	if idx := strings.LastIndexByte(host, ':'); idx != -1 {
		host = host[:idx]
	}
	if host == "" {
		return "", ironerr.New(ironerr.ErrCodeMITMHandshake, "CONNECT request named no host")
	}
	return host, nil
}

func (p *Proxy) logWarn(eventType, message string) {
	if p.logger == nil {
		return
	}
	p.logger.Warn(ironlog.CategoryMITM, eventType, message, nil)
}

// singleConnListener adapts a single already-accepted net.Conn to the
// net.Listener interface so http.Server.Serve can drive it: Accept returns
// the connection exactly once, then blocks until closed.
type singleConnListener struct {
	conn   net.Conn
	served bool
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	if l.served {
		<-make(chan struct{}) // block forever; Close unblocks via the conn's own Close
		return nil, fmt.Errorf("singleConnListener: already served")
	}
	l.served = true
	return l.conn, nil
}

func (l *singleConnListener) Close() error   { return l.conn.Close() }
func (l *singleConnListener) Addr() net.Addr { return l.conn.LocalAddr() }
