package gateway

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/clusterkeeper/ilm/domain/model"
)

// buildTLSConfig realizes the tenant file's TLS knobs (ssl_enabled, check_hostname,
// ssl_certificate mode, ca_file) into a crypto/tls.Config. Callers only
// invoke this when conn.TLSEnabled is true.
func buildTLSConfig(conn model.Connection) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	switch conn.CertificateMode {
	case model.CertNone:
		cfg.InsecureSkipVerify = true
		return cfg, nil
	case model.CertOptional:
		// Verify when a CA bundle is supplied; otherwise accept any certificate.
		if conn.CAFile == "" {
			cfg.InsecureSkipVerify = true
			return cfg, nil
		}
	case model.CertRequired, "":
		// default: verify
	}

	if conn.CAFile != "" {
		pem, err := os.ReadFile(conn.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca bundle %s: %w", conn.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca bundle %s contains no usable certificates", conn.CAFile)
		}
		cfg.RootCAs = pool
	}

	if !conn.CheckHostname {
		cfg.InsecureSkipVerify = true
	}

	return cfg, nil
}
