package repository

import (
	"context"

	"github.com/jhoicas/fatoora-api/internal/domain/entity"
)

// ChainAdvance describe el avance de la cola de la cadena de un tenant.
// Expected* es el estado leído antes de firmar; New* es el estado tras firmar.
type ChainAdvance struct {
	TenantID        string
	ExpectedHash    string
	ExpectedCounter int64
	NewHash         string
	NewCounter      int64
}

// TenantRepository define el puerto de persistencia para Tenant (DIP).
type TenantRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Tenant, error)
	// AdvanceChain mueve la cola solo si sigue en el estado esperado.
	// Devuelve domain.ErrChainConflict si otro proceso la movió primero.
	AdvanceChain(ctx context.Context, adv ChainAdvance) error
	// EnsureChainTail fija la cola en (hash, counter) solo si counter es mayor al actual.
	EnsureChainTail(ctx context.Context, tenantID, hash string, counter int64) error
}
