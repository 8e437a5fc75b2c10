package main

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func readCert(t *testing.T, path string) *x509.Certificate {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatalf("expected CERTIFICATE PEM block in %s", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	return cert
}

func TestRun_GeneratesChain(t *testing.T) {
	dir := t.TempDir()
	if err := run(dir, []string{"localhost", " 127.0.0.1 ", ""}); err != nil {
		t.Fatalf("run: %v", err)
	}

	ca := readCert(t, filepath.Join(dir, "ca.crt"))
	server := readCert(t, filepath.Join(dir, "server.crt"))

	if !ca.IsCA {
		t.Error("CA certificate should have IsCA=true")
	}
	if err := server.CheckSignatureFrom(ca); err != nil {
		t.Errorf("server certificate not signed by CA: %v", err)
	}
	if !reflect.DeepEqual(server.DNSNames, []string{"localhost"}) {
		t.Errorf("DNSNames = %v; want [localhost]", server.DNSNames)
	}
	if len(server.IPAddresses) != 1 {
		t.Errorf("IPAddresses = %v; want one", server.IPAddresses)
	}

	info, err := os.Stat(filepath.Join(dir, "server.key"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("server.key mode = %v; want 0600", info.Mode().Perm())
	}
}

func TestRun_ReusesCA(t *testing.T) {
	dir := t.TempDir()
	if err := run(dir, []string{"localhost"}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := readCert(t, filepath.Join(dir, "ca.crt"))

	if err := run(dir, []string{"vault.local"}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second := readCert(t, filepath.Join(dir, "ca.crt"))
	if !first.Equal(second) {
		t.Error("existing CA should be reused")
	}
	server := readCert(t, filepath.Join(dir, "server.crt"))
	if err := server.CheckSignatureFrom(first); err != nil {
		t.Errorf("new server certificate not signed by reused CA: %v", err)
	}
}
