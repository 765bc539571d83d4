package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellenhp/bambu-farm/internal/infrastructure/config"
)

func writeSelfSignedCA(t *testing.T) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "BBL CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600))
	return path
}

func TestLoadClientTLSConfig_Insecure(t *testing.T) {
	cfg, err := LoadClientTLSConfig(config.TLSClientConfig{InsecureSkipVerify: true}, "ignored")
	require.NoError(t, err)

	assert.True(t, cfg.InsecureSkipVerify)
	assert.Nil(t, cfg.RootCAs)
	assert.Equal(t, uint16(MinVersion), cfg.MinVersion)
	assert.Empty(t, cfg.ServerName)
}

func TestLoadClientTLSConfig_CAFile(t *testing.T) {
	caFile := writeSelfSignedCA(t)

	cfg, err := LoadClientTLSConfig(config.TLSClientConfig{InsecureSkipVerify: true, CAFile: caFile}, "01S00C000000001")
	require.NoError(t, err)

	assert.False(t, cfg.InsecureSkipVerify, "a CA bundle turns verification on")
	assert.NotNil(t, cfg.RootCAs)
	assert.Equal(t, "01S00C000000001", cfg.ServerName)
}

func TestLoadClientTLSConfig_Errors(t *testing.T) {
	_, err := LoadClientTLSConfig(config.TLSClientConfig{CAFile: filepath.Join(t.TempDir(), "nope.pem")}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("hello"), 0600))
	_, err = LoadClientTLSConfig(config.TLSClientConfig{CAFile: garbage}, "")
	assert.ErrorIs(t, err, ErrNoCertificates)
}
