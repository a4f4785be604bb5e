// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package tls

import (
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGenerateSelfSigned(t *testing.T) {
	cert, err := GenerateSelfSigned([]string{"localhost", "127.0.0.1", "gatehouse.internal"})
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}

	c := cert.Certificate
	if c.Subject.CommonName != "gatehouse" {
		t.Errorf("CommonName = %q, want %q", c.Subject.CommonName, "gatehouse")
	}

	wantDNS := map[string]bool{"localhost": false, "gatehouse.internal": false}
	for _, name := range c.DNSNames {
		wantDNS[name] = true
	}
	for name, found := range wantDNS {
		if !found {
			t.Errorf("DNS SAN %q missing", name)
		}
	}

	var foundIP bool
	for _, ip := range c.IPAddresses {
		if ip.Equal(net.ParseIP("127.0.0.1")) {
			foundIP = true
		}
	}
	if !foundIP {
		t.Error("IP SAN 127.0.0.1 missing")
	}

	if !c.NotAfter.After(time.Now().AddDate(0, 11, 0)) {
		t.Errorf("certificate expires too soon: %v", c.NotAfter)
	}

	hasServerAuth := false
	for _, usage := range c.ExtKeyUsage {
		if usage == x509.ExtKeyUsageServerAuth {
			hasServerAuth = true
		}
	}
	if !hasServerAuth {
		t.Error("certificate lacks server auth extended key usage")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")

	cert, err := GenerateSelfSigned([]string{"localhost"})
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}
	if err := Save(dir, cert); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	for _, name := range []string{"server.crt", "server.key"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("%s permissions = %o, want 600", name, perm)
		}
	}

	pair, err := Load(filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(pair.Certificate) == 0 {
		t.Error("loaded key pair has no certificate")
	}
}

func TestLoad_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key"))
	if err == nil {
		t.Error("expected error loading missing key pair")
	}
}

func TestLoadOrGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")

	first, err := LoadOrGenerate(dir, []string{"localhost"})
	if err != nil {
		t.Fatalf("LoadOrGenerate() error = %v", err)
	}

	// A second call must reuse the persisted pair, not mint a new one.
	second, err := LoadOrGenerate(dir, []string{"localhost"})
	if err != nil {
		t.Fatalf("LoadOrGenerate() second call error = %v", err)
	}

	if len(first.Certificate) == 0 || len(second.Certificate) == 0 {
		t.Fatal("key pair has no certificate")
	}
	if string(first.Certificate[0]) != string(second.Certificate[0]) {
		t.Error("second LoadOrGenerate generated a new certificate instead of reusing")
	}
}
