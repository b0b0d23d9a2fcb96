// Servicio de firma digital ECDSA sobre el hash encadenado del documento.

package signer

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/jhoicas/fatoora-api/internal/domain"
	"github.com/jhoicas/fatoora-api/pkg/zatca"
)

// ErrInvalidSignature indica que la firma no corresponde al hash o a la llave.
var ErrInvalidSignature = errors.New("firma inválida")

// DigitalSignatureService firma SHA-256(hashEncadenado) con la llave EC del tenant.
type DigitalSignatureService struct {
	encoding Encoding
	rand     io.Reader
}

// NewDigitalSignatureService crea el servicio con el formato de firma indicado.
func NewDigitalSignatureService(enc Encoding) *DigitalSignatureService {
	if enc == "" {
		enc = EncodingP1363
	}
	return &DigitalSignatureService{encoding: enc, rand: rand.Reader}
}

// Encoding devuelve el formato con el que firma el servicio.
func (s *DigitalSignatureService) Encoding() Encoding { return s.encoding }

// Sign implementa pkg/zatca.Signer.
func (s *DigitalSignatureService) Sign(chainedHash string, key *ecdsa.PrivateKey) (string, error) {
	if key == nil {
		return "", domain.ErrMissingPrivateKey
	}
	if chainedHash == "" {
		return "", fmt.Errorf("zatca: hash encadenado vacío")
	}
	digest := sha256.Sum256([]byte(chainedHash))

	var sig []byte
	switch s.encoding {
	case EncodingDER:
		der, err := ecdsa.SignASN1(s.rand, key, digest[:])
		if err != nil {
			return "", fmt.Errorf("zatca: firmar (der): %w", err)
		}
		sig = der
	default:
		r, ss, err := ecdsa.Sign(s.rand, key, digest[:])
		if err != nil {
			return "", fmt.Errorf("zatca: firmar (p1363): %w", err)
		}
		size := curveByteSize(&key.PublicKey)
		sig = make([]byte, 2*size)
		r.FillBytes(sig[:size])
		ss.FillBytes(sig[size:])
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify acepta ambos formatos: una firma de exactamente 2*tamaño de curva se lee como P1363,
// cualquier otra como DER.
func (s *DigitalSignatureService) Verify(chainedHash, signature string, pub *ecdsa.PublicKey) error {
	if pub == nil {
		return fmt.Errorf("zatca: llave pública nula")
	}
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: base64: %v", ErrInvalidSignature, err)
	}
	digest := sha256.Sum256([]byte(chainedHash))

	size := curveByteSize(pub)
	if len(raw) == 2*size {
		r := new(big.Int).SetBytes(raw[:size])
		ss := new(big.Int).SetBytes(raw[size:])
		if ecdsa.Verify(pub, digest[:], r, ss) {
			return nil
		}
	}
	if ecdsa.VerifyASN1(pub, digest[:], raw) {
		return nil
	}
	return ErrInvalidSignature
}

func curveByteSize(pub *ecdsa.PublicKey) int {
	return (pub.Curve.Params().BitSize + 7) / 8
}

var _ zatca.Signer = (*DigitalSignatureService)(nil)
