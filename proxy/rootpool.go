package proxy

import (
	"crypto/x509"
	"fmt"
	"os"

	"github.com/kestrelnet/captureproxy/cert"
)

// buildRootPool returns the trust store the egress HTTP client presents
// when dialing upstream TLS servers: the proxy's own Root CA plus any
// extra trust anchors named by customCertsPath.
func buildRootPool(ca cert.CA, customCertsPath string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	pool.AddCert(ca.GetRootCertificate())

	if customCertsPath == "" {
		return pool, nil
	}

	data, err := os.ReadFile(customCertsPath)
	if err != nil {
		return nil, fmt.Errorf("reading custom_certs %s: %w", customCertsPath, err)
	}
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates parsed from custom_certs %s", customCertsPath)
	}
	return pool, nil
}
