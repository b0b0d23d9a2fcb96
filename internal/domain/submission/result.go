// Package submission modela el resultado de un envío a la autoridad y la máquina de
// estados de cumplimiento de una factura.
package submission

import (
	"strings"
)

// Flow distingue los dos flujos de envío.
type Flow string

const (
	FlowClearance Flow = "clearance" // B2B, síncrono
	FlowReporting Flow = "reporting" // B2C, diferido
)

// Kind es la variante del resultado de un envío.
type Kind int

const (
	Accepted Kind = iota + 1
	Warning
	Rejected
	TransportError
)

func (k Kind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case Warning:
		return "warning"
	case Rejected:
		return "rejected"
	case TransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Issue es un mensaje de validación devuelto por la autoridad.
type Issue struct {
	Type     string `json:"type,omitempty"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

// Result es el resultado etiquetado de un envío. Nunca se propaga como error:
// los fallos de transporte quedan en Kind=TransportError con Cause.
type Result struct {
	Kind            Kind
	HTTPStatus      int
	ClearanceStatus string
	ReportingStatus string
	ClearedXML      string // base64 del XML sellado por la autoridad (solo clearance)
	Warnings        []Issue
	Errors          []Issue
	RawResponse     string
	Cause           string // descripción del fallo de transporte
	Attempts        int
}

// Succeeded indica si el documento quedó aceptado sin advertencias.
func (r Result) Succeeded() bool { return r.Kind == Accepted }

// ErrorSummary concatena los mensajes relevantes para lastError.
func (r Result) ErrorSummary() string {
	switch r.Kind {
	case TransportError:
		return r.Cause
	case Warning:
		return joinIssues(r.Warnings)
	case Rejected:
		if s := joinIssues(r.Errors); s != "" {
			return s
		}
		return "rechazado sin detalle"
	}
	return ""
}

func joinIssues(issues []Issue) string {
	parts := make([]string, 0, len(issues))
	for _, i := range issues {
		if i.Code != "" {
			parts = append(parts, i.Code+": "+i.Message)
			continue
		}
		parts = append(parts, i.Message)
	}
	return strings.Join(parts, "; ")
}
