package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var errTLSRequired = errors.New("APP_ENV=production requires TLS_CERT_PATH and TLS_KEY_PATH")

// listenerTLS names the certificate pair the API serves with. An empty pair
// means plain HTTP, which only non-production environments accept.
type listenerTLS struct {
	certFile   string
	keyFile    string
	production bool
}

func listenerTLSFromEnv() listenerTLS {
	return listenerTLS{
		certFile:   strings.TrimSpace(os.Getenv("TLS_CERT_PATH")),
		keyFile:    strings.TrimSpace(os.Getenv("TLS_KEY_PATH")),
		production: strings.EqualFold(strings.TrimSpace(os.Getenv("APP_ENV")), "production"),
	}
}

func (l listenerTLS) enabled() bool {
	return l.certFile != "" || l.keyFile != ""
}

func (l listenerTLS) validate() error {
	switch {
	case l.enabled() && (l.certFile == "" || l.keyFile == ""):
		return fmt.Errorf("TLS_CERT_PATH and TLS_KEY_PATH must be set together (cert=%q key=%q)", l.certFile, l.keyFile)
	case l.production && !l.enabled():
		return errTLSRequired
	}
	return nil
}

// config loads the pair up front so a bad certificate stops startup instead
// of the first handshake.
func (l listenerTLS) config(logger zerolog.Logger) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	logger.Info().Str("cert", l.certFile).Msg("TLS certificate loaded")
	return &tls.Config{Certificates: []tls.Certificate{pair}, MinVersion: tls.VersionTLS12}, nil
}
