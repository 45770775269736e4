package tls

import (
	"crypto/tls"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"login-guard/internal/config"
	"login-guard/internal/util"
)

// Manager picks the certificate for the HTTPS listener: ACME when autocert
// is on, then the configured key pair, then a self-signed dev certificate.
type Manager struct {
	cfg      config.ServerConfig
	logger   *zap.Logger
	autoCert *autocert.Manager

	mu       sync.Mutex
	fallback *tls.Certificate
}

func NewManager(cfg config.ServerConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{cfg: cfg, logger: util.OrNop(logger)}
	if cfg.EnableTLS && cfg.AutoCert {
		if err := m.setupAutoCert(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) setupAutoCert() error {
	if err := os.MkdirAll(m.cfg.AutoCertDir, 0o700); err != nil {
		return fmt.Errorf("create autocert dir: %w", err)
	}
	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.cfg.Domain),
		Cache:      autocert.DirCache(m.cfg.AutoCertDir),
		Email:      m.cfg.Email,
	}
	m.logger.Info("AutoCert configured",
		zap.String("domain", m.cfg.Domain),
		zap.String("cache_dir", m.cfg.AutoCertDir))
	return nil
}

func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		m.logger.Warn("AutoCert lookup failed, falling back", zap.Error(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fallback != nil {
		return m.fallback, nil
	}

	if m.cfg.CertFile != "" && m.cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(m.cfg.CertFile, m.cfg.KeyFile)
		if err == nil {
			m.fallback = &cert
			return m.fallback, nil
		}
		m.logger.Warn("Configured key pair unusable", zap.Error(err))
	}

	cert, err := NewDevCertGenerator(m.cfg.AutoCertDir, m.logger).GenerateCert(m.hosts())
	if err != nil {
		return nil, fmt.Errorf("self-signed certificate: %w", err)
	}
	m.fallback = &cert
	return m.fallback, nil
}

func (m *Manager) hosts() []string {
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	if m.cfg.Domain != "" && m.cfg.Domain != "localhost" {
		hosts = append([]string{m.cfg.Domain}, hosts...)
	}
	return hosts
}

func (m *Manager) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
}

// AutocertManager is nil unless ACME is enabled.
func (m *Manager) AutocertManager() *autocert.Manager {
	return m.autoCert
}
