// Package mitm implements the transparent MITM API proxy (spec §4.G): a
// persistent CA whose leaf certificates impersonate upstream API hosts,
// terminating TLS on a local Unix-domain socket so the mediator can inspect
// and enforce an endpoint allowlist on traffic the agent believes is going
// straight to the provider. Sentinel API keys configured in the agent's
// environment are swapped for the real ones only at the proxy boundary, so
// the agent process itself never holds a usable credential.
package mitm

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ironcurtain/ironcurtain/pkg/ironerr"
)

const (
	caKeyBits    = 2048
	caValidFor   = 10 * 365 * 24 * time.Hour
	leafValidFor = 825 * 24 * time.Hour // under the ~2yr browser-trust ceiling; irrelevant here but a sane default
	caCertFile   = "ca-cert.pem"
	caKeyFile    = "ca-key.pem"
)

// CA is the persistent certificate authority the proxy uses to mint
// per-host leaf certificates. It is generated once and reused across
// process restarts so a previously-warmed leaf cache (or an operator who
// has pinned the CA cert into a trust store) stays valid.
type CA struct {
	cert    *x509.Certificate
	certDER []byte
	key     *rsa.PrivateKey

	mu     sync.Mutex
	leaves map[string]*tls.Certificate
}

// LoadOrCreateCA loads an existing CA from dir, or generates and persists a
// new one if none exists. The private key file is written with 0600
// permissions; callers should treat dir as sensitive (spec §4.G: "the CA
// key is the proxy's root of trust").
func LoadOrCreateCA(dir string) (*CA, error) {
	certPath := filepath.Join(dir, caCertFile)
	keyPath := filepath.Join(dir, caKeyFile)

	if certBytes, err := os.ReadFile(certPath); err == nil {
		keyBytes, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "read existing CA key")
		}
		return parseCA(certBytes, keyBytes)
	} else if !os.IsNotExist(err) {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "stat existing CA cert")
	}

	return generateCA(dir)
}

func generateCA(dir string) (*CA, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "create CA directory")
	}

	key, err := rsa.GenerateKey(rand.Reader, caKeyBits)
	if err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "generate CA key")
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   "IronCurtain Local MITM CA",
			Organization: []string{"IronCurtain"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(caValidFor),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "create CA certificate")
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "parse generated CA certificate")
	}

	if err := persistCA(dir, certDER, key); err != nil {
		return nil, err
	}

	return &CA{cert: cert, certDER: certDER, key: key, leaves: make(map[string]*tls.Certificate)}, nil
}

func persistCA(dir string, certDER []byte, key *rsa.PrivateKey) error {
	certPath := filepath.Join(dir, caCertFile)
	keyPath := filepath.Join(dir, caKeyFile)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "write CA certificate")
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "write CA key")
	}
	return nil
}

func parseCA(certPEM, keyPEM []byte) (*CA, error) {
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, ironerr.New(ironerr.ErrCodeMITMHandshake, "CA cert file is not valid PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "parse existing CA certificate")
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, ironerr.New(ironerr.ErrCodeMITMHandshake, "CA key file is not valid PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "parse existing CA key")
	}

	return &CA{cert: cert, certDER: certBlock.Bytes, key: key, leaves: make(map[string]*tls.Certificate)}, nil
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "generate certificate serial")
	}
	return serial, nil
}

// CertPEM returns the CA certificate in PEM form, for an operator to pin
// into a trust store if they want real TLS verification to succeed inside
// the sandbox.
func (ca *CA) CertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.certDER})
}

// LeafFor returns a cached leaf certificate for host, minting and caching
// one on first use. Leaves live for the process lifetime (spec §4.G:
// "warmed at startup, cached for session lifetime").
func (ca *CA) LeafFor(host string) (*tls.Certificate, error) {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	if leaf, ok := ca.leaves[host]; ok {
		return leaf, nil
	}

	leaf, err := ca.mintLeaf(host)
	if err != nil {
		return nil, err
	}
	ca.leaves[host] = leaf
	return leaf, nil
}

// Warm pre-mints leaf certificates for every host in hosts, so the first
// real connection to each doesn't pay certificate-generation latency.
func (ca *CA) Warm(hosts []string) error {
	for _, host := range hosts {
		if _, err := ca.LeafFor(host); err != nil {
			return fmt.Errorf("warm leaf cert for %q: %w", host, err)
		}
	}
	return nil
}

func (ca *CA) mintLeaf(host string) (*tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, caKeyBits)
	if err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "generate leaf key for "+host)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: host, Organization: []string{"IronCurtain"}},
		DNSNames:     []string{host},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(leafValidFor),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	leafDER, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeMITMHandshake, "sign leaf certificate for "+host)
	}

	tlsCert := &tls.Certificate{
		Certificate: [][]byte{leafDER, ca.certDER},
		PrivateKey:  key,
	}
	return tlsCert, nil
}
