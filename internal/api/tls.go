package api

import (
	"crypto/tls"
	"fmt"
	"os"
)

// TLSFiles holds certificate paths. TLS is used only when both are set.
type TLSFiles struct {
	CertFile string
	KeyFile  string
}

// TLSFilesFromEnv reads ORLE_TLS_CERT and ORLE_TLS_KEY.
func TLSFilesFromEnv() TLSFiles {
	return TLSFiles{
		CertFile: os.Getenv("ORLE_TLS_CERT"),
		KeyFile:  os.Getenv("ORLE_TLS_KEY"),
	}
}

// Enabled returns true if TLS is configured.
func (f TLSFiles) Enabled() bool {
	return f.CertFile != "" && f.KeyFile != ""
}

// loadTLSConfig returns nil when TLS is not configured.
func (o Options) loadTLSConfig() (*tls.Config, error) {
	if !o.TLS.Enabled() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(o.TLS.CertFile, o.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
