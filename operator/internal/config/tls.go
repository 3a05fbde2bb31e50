package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLS builds the client TLS configuration shared by the gRPC and HTTP
// clients. Client certificates are loaded only in mtls mode.
func (a AuthConfig) TLS() (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: a.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	if a.Mode != "mtls" {
		return tlsCfg, nil
	}

	cert, err := tls.LoadX509KeyPair(a.CertFile, a.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}
	tlsCfg.Certificates = []tls.Certificate{cert}

	if a.CAFile != "" {
		caPEM, err := os.ReadFile(a.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", a.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}
