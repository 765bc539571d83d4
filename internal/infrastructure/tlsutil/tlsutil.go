// Package tlsutil builds client TLS configurations for printer connections.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/ellenhp/bambu-farm/internal/infrastructure/config"
)

// MinVersion is the minimum TLS version used for every printer connection.
const MinVersion = tls.VersionTLS12

// ErrNoCertificates is returned when a CA file contains no PEM certificates.
var ErrNoCertificates = errors.New("tlsutil: no certificates found")

// LoadClientTLSConfig creates a tls.Config for MQTT and FTPS clients.
//
// Without a CA file, verification follows InsecureSkipVerify. With a CA
// file, certificates are verified against that bundle only and serverName
// is the expected certificate name (printers use their serial number).
func LoadClientTLSConfig(cfg config.TLSClientConfig, serverName string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         MinVersion,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // printers ship self-signed certificates
	}

	if cfg.CAFile == "" {
		return tlsConfig, nil
	}

	caPEM, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("reading CA file %s: %w", cfg.CAFile, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("%w in %s", ErrNoCertificates, cfg.CAFile)
	}

	tlsConfig.RootCAs = pool
	tlsConfig.ServerName = serverName
	// An explicit bundle means the operator wants verification.
	tlsConfig.InsecureSkipVerify = false

	return tlsConfig, nil
}
