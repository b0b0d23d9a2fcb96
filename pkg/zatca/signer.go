// Package zatca: interfaz para firma digital del hash encadenado.

package zatca

import "crypto/ecdsa"

// Signer firma y verifica el hash encadenado de una factura.
type Signer interface {
	// Sign firma los bytes del hash encadenado (base64) y retorna la firma en base64.
	Sign(chainedHash string, key *ecdsa.PrivateKey) (string, error)
	// Verify acepta firmas IEEE-P1363 o ASN.1/DER producidas por la misma llave.
	Verify(chainedHash, signature string, pub *ecdsa.PublicKey) error
}
