// Carga de llaves EC desde PEM, DER en base64 o .p12 (PKCS#12).

package signer

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/jhoicas/fatoora-api/internal/domain"

	"golang.org/x/crypto/pkcs12"
)

// KeyMaterial es la llave de firma de un tenant y su certificado opcional.
type KeyMaterial struct {
	Key  *ecdsa.PrivateKey
	Cert *x509.Certificate
}

// ParsePrivateKey acepta PEM (EC PRIVATE KEY o PRIVATE KEY) o el DER en base64 sin cabeceras.
// Un valor vacío devuelve domain.ErrMissingPrivateKey.
func ParsePrivateKey(material string) (*ecdsa.PrivateKey, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, domain.ErrMissingPrivateKey
	}
	var der []byte
	if block, _ := pem.Decode([]byte(material)); block != nil {
		der = block.Bytes
	} else {
		raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(material), ""))
		if err != nil {
			return nil, fmt.Errorf("%w: no es PEM ni base64", domain.ErrInvalidPrivateKey)
		}
		der = raw
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPrivateKey, err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: se esperaba llave EC, se recibió %T", domain.ErrInvalidPrivateKey, parsed)
	}
	return key, nil
}

// ParseCertificate lee un certificado PEM o DER en base64. Vacío devuelve nil sin error.
func ParseCertificate(material string) (*x509.Certificate, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, nil
	}
	var der []byte
	if block, _ := pem.Decode([]byte(material)); block != nil {
		der = block.Bytes
	} else {
		raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(material), ""))
		if err != nil {
			return nil, fmt.Errorf("certificado: no es PEM ni base64: %w", err)
		}
		der = raw
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parsear certificado: %w", err)
	}
	return cert, nil
}

// LoadFromP12 carga llave EC y certificado desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
func LoadFromP12(path, password string) (*KeyMaterial, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("decodificar p12: %w", err)
	}
	key, ok := priv.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: el p12 contiene una llave %T", domain.ErrInvalidPrivateKey, priv)
	}
	return &KeyMaterial{Key: key, Cert: cert}, nil
}

// EncodePrivateKeyPEM serializa la llave en PEM SEC1 (EC PRIVATE KEY).
func EncodePrivateKeyPEM(key *ecdsa.PrivateKey) (string, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})), nil
}

// PublicKeyDER devuelve el SubjectPublicKeyInfo en DER.
func PublicKeyDER(pub *ecdsa.PublicKey) ([]byte, error) {
	return x509.MarshalPKIXPublicKey(pub)
}

// PublicKeyBase64 devuelve el DER de la llave pública en base64 (tag 8 del QR).
func PublicKeyBase64(pub *ecdsa.PublicKey) (string, error) {
	der, err := PublicKeyDER(pub)
	if err != nil {
		return "", fmt.Errorf("serializar llave pública: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// PublicKeyHash devuelve base64(SHA256(DER de la llave pública)).
func PublicKeyHash(pub *ecdsa.PublicKey) (string, error) {
	der, err := PublicKeyDER(pub)
	if err != nil {
		return "", fmt.Errorf("serializar llave pública: %w", err)
	}
	sum := sha256.Sum256(der)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

// CertDigest devuelve el digest SHA-256 del certificado (Base64) para XAdES.
func CertDigest(cert *x509.Certificate) string {
	h := sha256.Sum256(cert.Raw)
	return base64.StdEncoding.EncodeToString(h[:])
}

// CertSignature devuelve la firma del emisor sobre el certificado (tag 9 del QR).
func CertSignature(cert *x509.Certificate) string {
	if cert == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(cert.Signature)
}
