package zatca

import (
	"crypto/sha256"
	"encoding/base64"
)

// SeedHash es el hash anterior de la primera factura de cada tenant:
// base64 del hex de SHA-256("0").
const SeedHash = "NWZlY2ViNjZmZmM4NmYzOGQ5NTI3ODZjNmQ2OTZjNzljMmRiYzIzOWRkNGU5MWI0NjcyOWQ3M2EyN2ZiNTdlOQ=="

// ChainHash es el resultado de encadenar un documento a la cola del tenant.
type ChainHash struct {
	CurrentHash  string // base64(SHA256(canónico))
	ChainedHash  string // base64(SHA256(previo + actual))
	PreviousHash string
}

// ContentHash calcula base64(SHA256(Canonicalize(xml))).
func ContentHash(xml string) string {
	sum := sha256.Sum256([]byte(Canonicalize(xml)))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ChainedHash calcula base64(SHA256(previous || content)) sobre las cadenas base64.
func ChainedHash(previous, content string) string {
	sum := sha256.Sum256([]byte(previous + content))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// PreviousOrSeed devuelve el hash anterior, o SeedHash si el tenant no tiene cadena.
func PreviousOrSeed(previous string) string {
	if previous == "" {
		return SeedHash
	}
	return previous
}

// ComputeChain encadena el XML a previousHash (vacío = semilla).
func ComputeChain(xml, previousHash string) ChainHash {
	prev := PreviousOrSeed(previousHash)
	current := ContentHash(xml)
	return ChainHash{
		CurrentHash:  current,
		ChainedHash:  ChainedHash(prev, current),
		PreviousHash: prev,
	}
}
