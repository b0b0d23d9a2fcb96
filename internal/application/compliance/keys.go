package compliance

import (
	"fmt"
	"strings"

	"github.com/jhoicas/fatoora-api/internal/domain"
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/infrastructure/zatca/signer"
)

// KeyResolver obtiene la llave de firma de un tenant.
type KeyResolver struct {
	devKey *signer.KeyMaterial // solo en entorno dev, para tenants sin llave
}

// NewKeyResolver crea el resolvedor. devKey puede ser nil.
func NewKeyResolver(devKey *signer.KeyMaterial) *KeyResolver {
	return &KeyResolver{devKey: devKey}
}

// Resolve parsea la llave (y el certificado, si existe) del tenant.
// Una llave ausente o inválida es un ConfigError.
func (r *KeyResolver) Resolve(t *entity.Tenant) (*signer.KeyMaterial, error) {
	if strings.TrimSpace(t.Compliance.PrivateKey) == "" {
		if r.devKey != nil {
			return r.devKey, nil
		}
		return nil, &ConfigError{Op: "llave privada", Err: domain.ErrMissingPrivateKey}
	}
	key, err := signer.ParsePrivateKey(t.Compliance.PrivateKey)
	if err != nil {
		return nil, &ConfigError{Op: "llave privada", Err: err}
	}
	cert, err := signer.ParseCertificate(t.Compliance.Certificate)
	if err != nil {
		return nil, &ConfigError{Op: "certificado", Err: err}
	}
	if cert != nil && !key.PublicKey.Equal(cert.PublicKey) {
		return nil, &ConfigError{Op: "certificado", Err: fmt.Errorf("%w: el certificado no corresponde a la llave", domain.ErrInvalidPrivateKey)}
	}
	return &signer.KeyMaterial{Key: key, Cert: cert}, nil
}
