// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

// Package tls issues and loads the certificates that secure the internal
// gRPC listener with mutual TLS.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// File names inside a certs directory.
const (
	caCertFile = "root-ca.crt"
	caKeyFile  = "root-ca.key"
)

// Names of the two leaf certificates GenerateAll writes.
const (
	ServerName = "token-server"
	ClientName = "token-client"
)

// CA is a certificate authority.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// Cert is a leaf certificate signed by a CA.
type Cert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
	Name        string
}

// GenerateCA creates a root CA valid for ten years.
func GenerateCA() (*CA, error) {
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Ideaboard"},
			CommonName:   "Ideaboard internal CA",
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}

	cert, err := sign(template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// GenerateServerCert issues a server certificate for name, valid for
// localhost, 127.0.0.1 and any extra hosts (DNS names or IPs).
func GenerateServerCert(ca *CA, name string, hosts ...string) (*Cert, error) {
	template, key, err := leafTemplate(name, x509.ExtKeyUsageServerAuth)
	if err != nil {
		return nil, err
	}
	template.DNSNames = []string{"localhost", name}
	template.IPAddresses = []net.IP{net.ParseIP("127.0.0.1")}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}
	return issue(ca, template, key, name)
}

// GenerateClientCert issues a client certificate for name.
func GenerateClientCert(ca *CA, name string) (*Cert, error) {
	template, key, err := leafTemplate(name, x509.ExtKeyUsageClientAuth)
	if err != nil {
		return nil, err
	}
	return issue(ca, template, key, name)
}

// GenerateAll creates a CA plus the token server and client certificates
// and writes them to dir.
func GenerateAll(dir string, hosts ...string) error {
	ca, err := GenerateCA()
	if err != nil {
		return err
	}
	server, err := GenerateServerCert(ca, ServerName, hosts...)
	if err != nil {
		return err
	}
	client, err := GenerateClientCert(ca, ClientName)
	if err != nil {
		return err
	}
	return Save(dir, ca, server, client)
}

// Save writes the CA as root-ca.{crt,key} and each cert as name.{crt,key}.
func Save(dir string, ca *CA, certs ...*Cert) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.Code("CERT_SAVE_FAILED").With("dir", dir).Wrap(err)
	}
	if err := writePEM(filepath.Join(dir, caCertFile), ca.Certificate, nil); err != nil {
		return err
	}
	if err := writePEM(filepath.Join(dir, caKeyFile), nil, ca.PrivateKey); err != nil {
		return err
	}
	for _, c := range certs {
		if err := writePEM(filepath.Join(dir, c.Name+".crt"), c.Certificate, nil); err != nil {
			return err
		}
		if err := writePEM(filepath.Join(dir, c.Name+".key"), nil, c.PrivateKey); err != nil {
			return err
		}
	}
	return nil
}

// LoadCA reads the CA from dir.
func LoadCA(dir string) (*CA, error) {
	certPEM, err := os.ReadFile(filepath.Clean(filepath.Join(dir, caCertFile)))
	if err != nil {
		return nil, oops.Code("CERT_LOAD_FAILED").With("file", caCertFile).Wrap(err)
	}
	keyPEM, err := os.ReadFile(filepath.Clean(filepath.Join(dir, caKeyFile)))
	if err != nil {
		return nil, oops.Code("CERT_LOAD_FAILED").With("file", caKeyFile).Wrap(err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, oops.Code("CERT_LOAD_FAILED").With("file", caCertFile).Errorf("no PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, oops.Code("CERT_LOAD_FAILED").With("file", caCertFile).Wrap(err)
	}

	block, _ = pem.Decode(keyPEM)
	if block == nil {
		return nil, oops.Code("CERT_LOAD_FAILED").With("file", caKeyFile).Errorf("no PEM block")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, oops.Code("CERT_LOAD_FAILED").With("file", caKeyFile).Wrap(err)
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// ServerConfig loads name.{crt,key} from dir and requires clients to
// present a certificate signed by the CA in dir.
func ServerConfig(dir, name string) (*cryptotls.Config, error) {
	cert, pool, err := loadPair(dir, name)
	if err != nil {
		return nil, err
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   cryptotls.RequireAndVerifyClientCert,
		MinVersion:   cryptotls.VersionTLS13,
	}, nil
}

// ClientConfig loads name.{crt,key} from dir and trusts only the CA in dir.
// serverName must match a SAN of the server certificate.
func ClientConfig(dir, name, serverName string) (*cryptotls.Config, error) {
	cert, pool, err := loadPair(dir, name)
	if err != nil {
		return nil, err
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		RootCAs:      pool,
		ServerName:   serverName,
		MinVersion:   cryptotls.VersionTLS13,
	}, nil
}

func loadPair(dir, name string) (cryptotls.Certificate, *x509.CertPool, error) {
	certPath := filepath.Clean(filepath.Join(dir, name+".crt"))
	keyPath := filepath.Clean(filepath.Join(dir, name+".key"))
	cert, err := cryptotls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return cryptotls.Certificate{}, nil, oops.Code("CERT_LOAD_FAILED").With("name", name).Wrap(err)
	}

	caPEM, err := os.ReadFile(filepath.Clean(filepath.Join(dir, caCertFile)))
	if err != nil {
		return cryptotls.Certificate{}, nil, oops.Code("CERT_LOAD_FAILED").With("file", caCertFile).Wrap(err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return cryptotls.Certificate{}, nil, oops.Code("CERT_LOAD_FAILED").
			With("file", caCertFile).
			Errorf("no certificates in CA file")
	}
	return cert, pool, nil
}

func newKeyAndSerial() (*ecdsa.PrivateKey, *big.Int, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, oops.Code("CERT_GENERATE_FAILED").With("operation", "generate key").Wrap(err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, oops.Code("CERT_GENERATE_FAILED").With("operation", "generate serial").Wrap(err)
	}
	return key, serial, nil
}

func leafTemplate(name string, usage x509.ExtKeyUsage) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	if name == "" {
		return nil, nil, oops.Code("CERT_GENERATE_FAILED").Errorf("certificate name cannot be empty")
	}
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, nil, err
	}
	return &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Ideaboard"},
			CommonName:   name,
		},
		NotBefore:   time.Now().Add(-time.Minute),
		NotAfter:    time.Now().AddDate(1, 0, 0),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{usage},
	}, key, nil
}

func issue(ca *CA, template *x509.Certificate, key *ecdsa.PrivateKey, name string) (*Cert, error) {
	if ca == nil {
		return nil, oops.Code("CERT_GENERATE_FAILED").Errorf("CA is required")
	}
	cert, err := sign(template, ca.Certificate, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &Cert{Certificate: cert, PrivateKey: key, Name: name}, nil
}

func sign(template, parent *x509.Certificate, pub *ecdsa.PublicKey, signer *ecdsa.PrivateKey) (*x509.Certificate, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signer)
	if err != nil {
		return nil, oops.Code("CERT_GENERATE_FAILED").With("cn", template.Subject.CommonName).Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("CERT_GENERATE_FAILED").With("cn", template.Subject.CommonName).Wrap(err)
	}
	return cert, nil
}

// writePEM writes either cert or key to path with owner-only permissions.
func writePEM(path string, cert *x509.Certificate, key *ecdsa.PrivateKey) error {
	var block *pem.Block
	if cert != nil {
		block = &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}
	} else {
		der, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			return oops.Code("CERT_SAVE_FAILED").With("path", path).Wrap(err)
		}
		block = &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.Code("CERT_SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := pem.Encode(f, block); err != nil {
		_ = f.Close()
		return oops.Code("CERT_SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.Code("CERT_SAVE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
