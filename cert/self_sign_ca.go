// Package cert provides the certificate authority used to mint per-host
// leaf certificates for intercepted TLS connections.
//
// The teacher repo ships only the test files for this package; the
// implementation here follows the contract those tests (and the caller in
// cmd/dummycert) already impose: a CA interface with
// GetRootCA/GetCert, and a concrete SelfSignCA that persists its root
// certificate under a store directory. The actual leaf-minting logic (RSA
// key size, serial number generation, IP-vs-DNS SAN placement) is grounded on
// the audit-proxy mitm.Issuer implementation, and the leaf cache is grounded
// on the trusted-ca example's groupcache lru+singleflight pattern, which
// gives at-most-once minting per host under concurrent dials instead of the
// plain mutex+map cache an earlier revision of this kind of proxy used.
package cert

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/golang/groupcache/singleflight"
)

// CA mints and serves TLS certificates for MITM'd connections.
type CA interface {
	// GetRootCA returns the certificate installed in the client's trust
	// store, used to sign every minted leaf certificate.
	GetRootCA() *x509.Certificate

	// GetCert returns a leaf certificate for authority, minting and
	// caching one if none exists yet.
	GetCert(authority string) (*tls.Certificate, error)

	// GetServerConfig returns a tls.Config presenting a leaf certificate
	// for authority, suitable for tls.Server on an upgraded CONNECT
	// stream.
	GetServerConfig(authority string) (*tls.Config, error)

	// GetRootCertificate is an alias of GetRootCA, named to match the
	// well-known CA-download endpoint's terminology.
	GetRootCertificate() *x509.Certificate
}

const (
	leafCacheSize  = 4096
	leafValidFor   = 30 * 24 * time.Hour
	leafBackdateBy = 1 * time.Hour
	rootValidFor   = 10 * 365 * 24 * time.Hour
	rsaKeyBits     = 2048
)

// SelfSignCA is a CA backed by a locally generated root certificate,
// persisted to disk so the same root survives process restarts.
type SelfSignCA struct {
	RootCert   *x509.Certificate
	PrivateKey rsa.PrivateKey

	rootTLSCert *tls.Certificate
	storePath   string

	cacheMu sync.Mutex // guards cache: lru.Cache is not safe for concurrent use
	cache   *lru.Cache
	group   singleflight.Group
}

// NewSelfSignCA loads the root certificate from storePath, generating and
// persisting a new one if none exists yet. An empty storePath resolves to
// the default per-user store directory.
func NewSelfSignCA(storePath string) (CA, error) {
	path, err := getStorePath(storePath)
	if err != nil {
		return nil, fmt.Errorf("resolving cert store path: %w", err)
	}

	ca := &SelfSignCA{
		storePath: path,
		cache:     lru.New(leafCacheSize),
	}

	if err := ca.loadOrGenerate(); err != nil {
		return nil, fmt.Errorf("loading root certificate: %w", err)
	}

	return ca, nil
}

// NewSelfSignCAMemory behaves like NewSelfSignCA but never touches disk,
// generating a fresh root certificate on every call. It exists for tests and
// short-lived processes that should not leave a root certificate behind.
func NewSelfSignCAMemory() (CA, error) {
	ca := &SelfSignCA{
		cache: lru.New(leafCacheSize),
	}

	if err := ca.generate(); err != nil {
		return nil, fmt.Errorf("generating root certificate: %w", err)
	}

	return ca, nil
}

func (ca *SelfSignCA) loadOrGenerate() error {
	certBytes, certErr := os.ReadFile(ca.caFile())
	keyBytes, keyErr := os.ReadFile(ca.keyFile())

	if certErr == nil && keyErr == nil {
		return ca.loadFrom(certBytes, keyBytes)
	}
	if !errors.Is(certErr, os.ErrNotExist) && certErr != nil {
		return certErr
	}
	if !errors.Is(keyErr, os.ErrNotExist) && keyErr != nil {
		return keyErr
	}

	if err := ca.generate(); err != nil {
		return err
	}

	var certOut, keyOut []byte
	var err error
	if certOut, keyOut, err = ca.encode(); err != nil {
		return err
	}
	if err := os.MkdirAll(ca.storePath, 0o700); err != nil {
		return fmt.Errorf("creating cert store dir: %w", err)
	}
	if err := os.WriteFile(ca.caFile(), certOut, 0o600); err != nil {
		return fmt.Errorf("writing root cert: %w", err)
	}
	if err := os.WriteFile(ca.keyFile(), keyOut, 0o600); err != nil {
		return fmt.Errorf("writing root key: %w", err)
	}
	return nil
}

func (ca *SelfSignCA) loadFrom(certPEM, keyPEM []byte) error {
	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return fmt.Errorf("parsing stored root certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		return fmt.Errorf("parsing stored root certificate: %w", err)
	}
	key, ok := tlsCert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return errors.New("stored root key is not RSA")
	}

	ca.RootCert = leaf
	ca.PrivateKey = *key
	ca.rootTLSCert = &tlsCert
	ca.rootTLSCert.Leaf = leaf
	return nil
}

func (ca *SelfSignCA) generate() error {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return fmt.Errorf("generating root key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"captureproxy"},
			CommonName:   "captureproxy root CA",
		},
		NotBefore:             time.Now().Add(-leafBackdateBy),
		NotAfter:              time.Now().Add(rootValidFor),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("creating root certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("parsing generated root certificate: %w", err)
	}

	ca.RootCert = leaf
	ca.PrivateKey = *key
	ca.rootTLSCert = &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	return nil
}

func (ca *SelfSignCA) encode() (certPEM, keyPEM []byte, err error) {
	var certBuf bytes.Buffer
	if err := pem.Encode(&certBuf, &pem.Block{Type: "CERTIFICATE", Bytes: ca.rootTLSCert.Certificate[0]}); err != nil {
		return nil, nil, err
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(&ca.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	var keyBuf bytes.Buffer
	if err := pem.Encode(&keyBuf, &pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}); err != nil {
		return nil, nil, err
	}

	return certBuf.Bytes(), keyBuf.Bytes(), nil
}

// GetRootCA returns the certificate clients must trust to decrypt MITM'd
// connections without a warning.
func (ca *SelfSignCA) GetRootCA() *x509.Certificate {
	return ca.RootCert
}

// GetRootCertificate is an alias of GetRootCA for the well-known
// certificate-download endpoint.
func (ca *SelfSignCA) GetRootCertificate() *x509.Certificate {
	return ca.RootCert
}

// GetCert mints (or returns a cached) leaf certificate for authority. Only
// one goroutine ever mints a given authority concurrently; the rest wait on
// the in-flight mint and share its result.
func (ca *SelfSignCA) GetCert(authority string) (*tls.Certificate, error) {
	key := normalizeAuthority(authority)

	ca.cacheMu.Lock()
	cached, hit := ca.cache.Get(key)
	ca.cacheMu.Unlock()
	if hit {
		tlsCert, ok := cached.(*tls.Certificate)
		if !ok {
			return nil, errors.New("cached value is not a tls.Certificate")
		}
		return tlsCert, nil
	}

	val, err := ca.group.Do(key, func() (any, error) {
		tlsCert, err := ca.DummyCert(key)
		if err != nil {
			return nil, err
		}
		ca.cacheMu.Lock()
		ca.cache.Add(key, tlsCert)
		ca.cacheMu.Unlock()
		return tlsCert, nil
	})
	if err != nil {
		return nil, err
	}

	tlsCert, ok := val.(*tls.Certificate)
	if !ok {
		return nil, errors.New("minted value is not a tls.Certificate")
	}
	return tlsCert, nil
}

// GetServerConfig returns a TLS server config presenting a leaf certificate
// for authority, suitable for terminating an upgraded CONNECT stream.
func (ca *SelfSignCA) GetServerConfig(authority string) (*tls.Config, error) {
	leaf, err := ca.GetCert(authority)
	if err != nil {
		return nil, fmt.Errorf("minting leaf for %s: %w", authority, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{*leaf},
	}, nil
}

func normalizeAuthority(authority string) string {
	return strings.ToLower(authority)
}

// DummyCert mints a fresh leaf certificate for authority, signed by the root
// certificate, bypassing the cache. Exported for cmd/dummycert.
func (ca *SelfSignCA) DummyCert(authority string) (*tls.Certificate, error) {
	if ca.rootTLSCert == nil {
		return nil, errors.New("root certificate not initialised")
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      ca.RootCert.Subject,
		NotBefore:    time.Now().Add(-leafBackdateBy),
		NotAfter:     time.Now().Add(leafValidFor),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	host, port, splitErr := net.SplitHostPort(authority)
	if splitErr != nil {
		host = authority
		port = ""
	}

	if ip := net.ParseIP(host); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else if port == "" {
		template.DNSNames = []string{host}
	} else {
		template.DNSNames = []string{host, net.JoinHostPort(host, port)}
	}

	leafKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generating leaf key: %w", err)
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.RootCert, &leafKey.PublicKey, &ca.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("creating leaf certificate: %w", err)
	}

	tlsCert := &tls.Certificate{
		Certificate: [][]byte{der, ca.rootTLSCert.Certificate[0]},
		PrivateKey:  leafKey,
	}
	if leaf, err := x509.ParseCertificate(der); err == nil {
		tlsCert.Leaf = leaf
	}
	return tlsCert, nil
}

func (ca *SelfSignCA) caFile() string {
	return filepath.Join(ca.storePath, "captureproxy-ca-cert.pem")
}

func (ca *SelfSignCA) keyFile() string {
	return filepath.Join(ca.storePath, "captureproxy-ca-key.pem")
}

// saveTo writes the PEM-encoded root certificate to w.
func (ca *SelfSignCA) saveTo(w io.Writer) error {
	return pem.Encode(w, &pem.Block{Type: "CERTIFICATE", Bytes: ca.rootTLSCert.Certificate[0]})
}

func getStorePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".captureproxy"), nil
}

func randomSerial() (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
}
