package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrForbidden    = errors.New("acceso denegado")
	ErrConflict     = errors.New("conflicto con el estado actual")
)

// Errores de cumplimiento.
var (
	ErrInvalidInvoice     = errors.New("factura inválida para cumplimiento")
	ErrAlreadySigned      = errors.New("la factura ya fue firmada")
	ErrMissingPrivateKey  = errors.New("el tenant no tiene llave privada configurada")
	ErrInvalidPrivateKey  = errors.New("llave privada inválida")
	ErrTenantNotOnboarded = errors.New("el tenant no completó el onboarding")
	ErrChainConflict      = errors.New("la cola de la cadena cambió durante la firma")
	ErrInvalidTransition  = errors.New("transición de estado inválida")
)
