package tls

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/psantana5/e2e-tester/pkg/config"
)

func TestServerConfigAutoGenerates(t *testing.T) {
	dir := t.TempDir()
	cfg := config.TLSConfig{
		Enabled:      true,
		CertFile:     filepath.Join(dir, "certs", "server.crt"),
		KeyFile:      filepath.Join(dir, "certs", "server.key"),
		AutoGenerate: true,
		Hosts:        []string{"10.1.2.3", "tester.internal"},
	}

	serverTLS, err := ServerConfig(cfg, nil)
	if err != nil {
		t.Fatalf("ServerConfig: %v", err)
	}
	if len(serverTLS.Certificates) != 1 {
		t.Fatalf("expected one certificate")
	}

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	srv.TLS = serverTLS
	srv.StartTLS()
	defer srv.Close()

	clientTLS, err := ClientConfig(cfg.CertFile)
	if err != nil {
		t.Fatalf("ClientConfig: %v", err)
	}
	hc := &http.Client{Transport: &http.Transport{TLSClientConfig: clientTLS}}
	resp, err := hc.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET over TLS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestServerConfigMissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := ServerConfig(config.TLSConfig{
		CertFile: filepath.Join(dir, "nope.crt"),
		KeyFile:  filepath.Join(dir, "nope.key"),
	}, nil)
	if err == nil {
		t.Error("expected error for missing key pair")
	}
}

func TestClientConfigDefaultsToSystemPool(t *testing.T) {
	c, err := ClientConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if c.RootCAs != nil || c.MinVersion != tls.VersionTLS12 {
		t.Errorf("unexpected client config %+v", c)
	}
}
