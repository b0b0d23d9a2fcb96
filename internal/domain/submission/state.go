package submission

import (
	"fmt"
	"time"

	"github.com/jhoicas/fatoora-api/internal/domain"
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
)

var transitions = map[entity.SubmissionStatus][]entity.SubmissionStatus{
	entity.SubmissionNone:      {entity.SubmissionPending},
	entity.SubmissionPending:   {entity.SubmissionSubmitted, entity.SubmissionCleared, entity.SubmissionReported, entity.SubmissionRejected, entity.SubmissionWarning},
	entity.SubmissionSubmitted: {entity.SubmissionSubmitted, entity.SubmissionPending, entity.SubmissionCleared, entity.SubmissionReported, entity.SubmissionRejected, entity.SubmissionWarning},
	entity.SubmissionRejected:  {entity.SubmissionSubmitted, entity.SubmissionRejected},
	entity.SubmissionWarning:   {entity.SubmissionSubmitted, entity.SubmissionWarning},
}

// CanTransition indica si el cambio de estado es válido. cleared y reported son terminales.
func CanTransition(from, to entity.SubmissionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition cambia el estado validando la transición.
func Transition(c *entity.InvoiceCompliance, to entity.SubmissionStatus) error {
	if !CanTransition(c.SubmissionStatus, to) {
		return fmt.Errorf("%w: %q -> %q", domain.ErrInvalidTransition, c.SubmissionStatus, to)
	}
	c.SubmissionStatus = to
	return nil
}

// CheckSignable aplica la regla de firma única: una factura con documento firmado
// solo puede volver a procesarse mientras siga pendiente.
// Devuelve alreadySigned=true cuando la firma existente debe reutilizarse.
func CheckSignable(inv *entity.Invoice) (alreadySigned bool, err error) {
	switch inv.Status {
	case entity.InvoiceStatusCancelled, entity.InvoiceStatusCredited:
		return false, fmt.Errorf("%w: factura en estado %s", domain.ErrConflict, inv.Status)
	}
	if !inv.IsSigned() {
		return false, nil
	}
	if inv.Compliance.SubmissionStatus != entity.SubmissionPending {
		return true, fmt.Errorf("%w: estado %q", domain.ErrAlreadySigned, inv.Compliance.SubmissionStatus)
	}
	return true, nil
}

// IsStale indica que el documento quedó en submitted más de grace: el resultado del
// envío nunca se persistió y puede reintentarse.
func IsStale(c entity.InvoiceCompliance, now time.Time, grace time.Duration) bool {
	if c.SubmissionStatus != entity.SubmissionSubmitted {
		return false
	}
	return c.SubmittedAt == nil || !c.SubmittedAt.After(now.Add(-grace))
}

// CanResubmit indica si un documento firmado puede reenviarse: rechazado, con
// advertencias o atascado en submitted (ver IsStale).
func CanResubmit(c entity.InvoiceCompliance, now time.Time, grace time.Duration) error {
	if c.SignedXML == "" {
		return fmt.Errorf("%w: la factura no está firmada", domain.ErrConflict)
	}
	switch c.SubmissionStatus {
	case entity.SubmissionRejected, entity.SubmissionWarning:
		return nil
	case entity.SubmissionSubmitted:
		if IsStale(c, now, grace) {
			return nil
		}
		return fmt.Errorf("%w: envío en curso desde %s", domain.ErrConflict, c.SubmittedAt.UTC().Format(time.RFC3339))
	}
	return fmt.Errorf("%w: no se puede reenviar en estado %q", domain.ErrConflict, c.SubmissionStatus)
}

// MarkSubmitted registra que el envío está en curso.
func MarkSubmitted(c *entity.InvoiceCompliance, now time.Time) error {
	if err := Transition(c, entity.SubmissionSubmitted); err != nil {
		return err
	}
	c.SubmittedAt = &now
	return nil
}

// Apply aplica el resultado de un envío al estado de cumplimiento.
// En clearance, un fallo de transporte deja la factura rechazada; en reporting vuelve a
// pending para que la siguiente corrida del job la reintente dentro de la ventana.
func Apply(c *entity.InvoiceCompliance, flow Flow, r Result, now time.Time) {
	if r.RawResponse != "" {
		c.ZatcaResponse = r.RawResponse
	}
	if r.ClearanceStatus != "" {
		c.ClearanceStatus = r.ClearanceStatus
	}
	if r.ReportingStatus != "" {
		c.ReportingStatus = r.ReportingStatus
	}

	switch r.Kind {
	case Accepted:
		c.LastError = ""
		if flow == FlowClearance {
			c.SubmissionStatus = entity.SubmissionCleared
			c.ClearedAt = &now
			keepCleared(c, r)
			return
		}
		c.SubmissionStatus = entity.SubmissionReported
	case Warning:
		c.SubmissionStatus = entity.SubmissionWarning
		c.RetryCount++
		c.LastError = r.ErrorSummary()
		if flow == FlowClearance {
			c.ClearedAt = &now
			keepCleared(c, r)
		}
	case Rejected:
		c.SubmissionStatus = entity.SubmissionRejected
		c.RetryCount++
		c.LastError = r.ErrorSummary()
	default:
		c.RetryCount++
		c.LastError = r.ErrorSummary()
		if flow == FlowClearance {
			c.SubmissionStatus = entity.SubmissionRejected
			return
		}
		if c.SubmissionStatus == entity.SubmissionSubmitted {
			c.SubmissionStatus = entity.SubmissionPending
		}
	}
}

func keepCleared(c *entity.InvoiceCompliance, r Result) {
	if r.ClearedXML != "" {
		c.ClearedXML = r.ClearedXML
	}
}
