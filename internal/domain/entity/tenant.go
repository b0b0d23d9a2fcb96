package entity

import "time"

// Tenant representa una organización emisora (multi-tenant) con su estado de cumplimiento.
type Tenant struct {
	ID         string
	Name       string
	Seller     Party
	Status     string // active, suspended, inactive
	Compliance TenantCompliance
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TenantCompliance contiene credenciales y la cola de la cadena de hashes.
// PrivateKey nunca debe registrarse en logs.
type TenantCompliance struct {
	PrivateKey             string // PEM (SEC1 o PKCS#8) o DER en base64
	Certificate            string // PEM del certificado emitido (opcional)
	ProductionSubmissionID string // credencial Basic emitida en el onboarding
	LastInvoiceHash        string
	InvoiceCounter         int64
	IsOnboarded            bool
}

// CanSubmit indica si el tenant puede enviar documentos a la autoridad.
func (t *Tenant) CanSubmit() bool {
	return t.Compliance.IsOnboarded && t.Compliance.ProductionSubmissionID != ""
}
