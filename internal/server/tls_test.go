// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeberg.org/oliverandrich/intragate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withPorts(t *testing.T, available bool) {
	t.Helper()
	prev := portAvailable
	portAvailable = func(int) bool { return available }
	t.Cleanup(func() { portAvailable = prev })
}

func TestResolveTLSMode(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		tls      config.TLSConfig
		ports    bool
		expected TLSMode
	}{
		{"explicit off", "example.com", config.TLSConfig{Mode: "off"}, true, TLSModeOff},
		{"explicit acme", "localhost", config.TLSConfig{Mode: "acme"}, false, TLSModeACME},
		{"explicit selfsigned uppercase", "example.com", config.TLSConfig{Mode: "SelfSigned"}, true, TLSModeSelfSigned},
		{"explicit manual", "example.com", config.TLSConfig{Mode: "manual"}, true, TLSModeManual},
		{"auto localhost", "localhost", config.TLSConfig{Mode: "auto"}, true, TLSModeOff},
		{"auto with cert files", "example.com", config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}, true, TLSModeManual},
		{"auto acme", "example.com", config.TLSConfig{Email: "ops@example.com"}, true, TLSModeACME},
		{"auto acme ports busy", "example.com", config.TLSConfig{Email: "ops@example.com"}, false, TLSModeSelfSigned},
		{"auto ip address", "10.0.0.1", config.TLSConfig{Email: "ops@example.com"}, true, TLSModeSelfSigned},
		{"auto without email", "example.com", config.TLSConfig{}, true, TLSModeSelfSigned},
		{"unknown mode", "localhost", config.TLSConfig{Mode: "bogus"}, true, TLSModeOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withPorts(t, tt.ports)
			cfg := &config.Config{Server: config.ServerConfig{Host: tt.host}, TLS: tt.tls}

			assert.Equal(t, tt.expected, resolveTLSMode(cfg))
		})
	}
}

func TestValidateACME(t *testing.T) {
	t.Run("missing email", func(t *testing.T) {
		withPorts(t, true)
		err := validateACME(&config.Config{Server: config.ServerConfig{Port: 443}})
		assert.ErrorContains(t, err, "TLS_EMAIL")
	})

	t.Run("ports busy", func(t *testing.T) {
		withPorts(t, false)
		err := validateACME(&config.Config{TLS: config.TLSConfig{Email: "ops@example.com"}})
		assert.ErrorContains(t, err, "port 80")
	})

	t.Run("ok", func(t *testing.T) {
		withPorts(t, true)
		assert.NoError(t, validateACME(&config.Config{TLS: config.TLSConfig{Email: "ops@example.com"}}))
	})
}

func TestSetupSelfSigned(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "gate.example.com"},
		TLS:    config.TLSConfig{CertDir: dir},
	}

	first, err := setupSelfSigned(cfg)
	require.NoError(t, err)
	assert.Equal(t, TLSModeSelfSigned, first.Mode)
	require.Len(t, first.TLSConfig.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), first.TLSConfig.MinVersion)

	leaf, err := x509.ParseCertificate(first.TLSConfig.Certificates[0].Certificate[0])
	require.NoError(t, err)
	assert.Contains(t, leaf.DNSNames, "gate.example.com")
	assert.Contains(t, leaf.DNSNames, "localhost")

	info, err := os.Stat(filepath.Join(dir, "selfsigned", "key.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// The cached certificate is reused.
	second, err := setupSelfSigned(cfg)
	require.NoError(t, err)
	assert.Equal(t, first.TLSConfig.Certificates[0].Certificate[0], second.TLSConfig.Certificates[0].Certificate[0])
}

func TestSetupSelfSigned_ReplacesInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	certDir := filepath.Join(dir, "selfsigned")
	require.NoError(t, os.MkdirAll(certDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(certDir, "cert.pem"), []byte("garbage"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(certDir, "key.pem"), []byte("garbage"), 0o600))

	result, err := setupSelfSigned(&config.Config{TLS: config.TLSConfig{CertDir: dir}})

	require.NoError(t, err)
	assert.Len(t, result.TLSConfig.Certificates, 1)
}

func TestSetupManual(t *testing.T) {
	t.Run("missing paths", func(t *testing.T) {
		_, err := setupManual("", "")
		assert.ErrorContains(t, err, "requires both")
	})

	t.Run("missing files", func(t *testing.T) {
		dir := t.TempDir()
		_, err := setupManual(filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem"))
		assert.ErrorContains(t, err, "failed to load certificate")
	})

	t.Run("valid files", func(t *testing.T) {
		dir := t.TempDir()
		certFile := filepath.Join(dir, "cert.pem")
		keyFile := filepath.Join(dir, "key.pem")
		_, err := generateSelfSignedCert("10.0.0.1", certFile, keyFile)
		require.NoError(t, err)

		result, err := setupManual(certFile, keyFile)

		require.NoError(t, err)
		assert.Equal(t, TLSModeManual, result.Mode)
	})
}

func TestCertFingerprint(t *testing.T) {
	dir := t.TempDir()
	cert, err := generateSelfSignedCert("localhost", filepath.Join(dir, "c.pem"), filepath.Join(dir, "k.pem"))
	require.NoError(t, err)

	fp := certFingerprint(cert)

	assert.Len(t, strings.Split(fp, ":"), 32)
	assert.Equal(t, strings.ToUpper(fp), fp)
	assert.Empty(t, certFingerprint(&tls.Certificate{}))
}

func TestIsCertExpiringSoon(t *testing.T) {
	dir := t.TempDir()
	cert, err := generateSelfSignedCert("localhost", filepath.Join(dir, "c.pem"), filepath.Join(dir, "k.pem"))
	require.NoError(t, err)

	assert.False(t, isCertExpiringSoon(cert))
	assert.True(t, isCertExpiringSoon(&tls.Certificate{}))
	assert.True(t, isCertExpiringSoon(&tls.Certificate{Certificate: [][]byte{[]byte("junk")}}))
}
