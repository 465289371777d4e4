package mitm

import (
	"net"
	"os"
	"sync"

	"github.com/ironcurtain/ironcurtain/pkg/ironerr"
	"github.com/ironcurtain/ironcurtain/pkg/ironlog"
)

// Proxy is the running MITM API proxy: a Unix-domain-socket listener that
// terminates TLS with leaf certificates minted by ca, then forwards
// requests through the allowlist-and-sentinel-swap handler in handler.go.
// Sandboxed tool servers are pointed at SocketPath in place of the real
// provider host, so every outbound API call an agent-driven tool makes
// passes through here first.
type Proxy struct {
	ca        *CA
	allowlist *Allowlist
	sentinel  *SentinelSwapper
	logger    *ironlog.Logger

	socketPath string
	closing    chan struct{}
	wg         sync.WaitGroup

	mu sync.Mutex
	ln net.Listener
}

// New builds a Proxy from a persistent CA, a closed endpoint allowlist, and
// a sentinel-key swap table. Call Serve to start accepting connections.
func New(ca *CA, allowlist *Allowlist, sentinel *SentinelSwapper, logger *ironlog.Logger, socketPath string) *Proxy {
	return &Proxy{
		ca:         ca,
		allowlist:  allowlist,
		sentinel:   sentinel,
		logger:     logger,
		socketPath: socketPath,
		closing:    make(chan struct{}),
	}
}

// Serve listens on the proxy's Unix domain socket and blocks accepting
// connections until Close is called. A stale socket file left behind by a
// prior crashed process is removed before binding.
func (p *Proxy) Serve() error {
	if err := os.RemoveAll(p.socketPath); err != nil && !os.IsNotExist(err) {
		return ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "remove stale proxy socket")
	}

	ln, err := net.Listen("unix", p.socketPath)
	if err != nil {
		return ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "listen on proxy socket")
	}
	if err := os.Chmod(p.socketPath, 0o600); err != nil {
		ln.Close()
		return ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "restrict proxy socket permissions")
	}

	p.mu.Lock()
	p.ln = ln
	p.mu.Unlock()

	p.acceptLoop(ln)
	p.wg.Wait()
	return nil
}

// Close stops the accept loop and removes the socket file. It does not
// wait for in-flight connections; Serve waits for them before returning.
func (p *Proxy) Close() error {
	close(p.closing)

	p.mu.Lock()
	ln := p.ln
	p.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	os.RemoveAll(p.socketPath)
	return nil
}

// CertPEM exposes the CA certificate so a caller can print it for an
// operator to pin into a trust store.
func (p *Proxy) CertPEM() []byte {
	return p.ca.CertPEM()
}
