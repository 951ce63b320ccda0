// Package main generates a Certificate Authority (CA) and a server certificate
// for the snapshot store, writing them under the output directory.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/SessionSync/internal/certgen"
)

func main() {
	dir := flag.String("dir", "certs", "output directory for certificates and keys")
	hosts := flag.String("hosts", "localhost,127.0.0.1", "comma-separated DNS names and IPs for the server certificate")
	flag.Parse()

	if err := run(*dir, splitHosts(*hosts)); err != nil {
		fmt.Fprintln(os.Stderr, "certgen:", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Certificates generated into %s\n", *dir)
}

// run writes ca.crt, ca.key, server.crt and server.key into dir. An
// existing CA in dir is reused so that clients trusting it keep working.
func run(dir string, hosts []string) error {
	caPath := filepath.Join(dir, "ca.crt")
	caKeyPath := filepath.Join(dir, "ca.key")

	if _, err := os.Stat(caPath); os.IsNotExist(err) {
		caPEM, caKeyPEM, err := certgen.GenerateCA("SessionSync CA")
		if err != nil {
			return err
		}
		if err := certgen.WritePair(caPath, caKeyPath, caPEM, caKeyPEM); err != nil {
			return err
		}
	}

	caCert, caKey, err := certgen.LoadCACredentials(caPath, caKeyPath)
	if err != nil {
		return err
	}
	certPEM, keyPEM, err := certgen.GenerateServerCertificate(hosts, caCert, caKey)
	if err != nil {
		return err
	}
	return certgen.WritePair(filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key"), certPEM, keyPEM)
}

func splitHosts(s string) []string {
	var out []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}
