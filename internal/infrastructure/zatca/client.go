package zatca

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jhoicas/fatoora-api/internal/domain/submission"
	"github.com/jhoicas/fatoora-api/pkg/logger"
	"github.com/jhoicas/fatoora-api/pkg/zatca"

	"github.com/rs/zerolog"
)

// ── Constantes de entorno ──────────────────────────────────────────────────────

const (
	// EnvDev no envía a la autoridad: simula aceptación.
	EnvDev        = "dev"
	EnvSandbox    = "sandbox"
	EnvSimulation = "simulation"
	EnvProduction = "production"

	baseURLSandbox    = "https://gw-fatoora.zatca.gov.sa/e-invoicing/developer-portal"
	baseURLSimulation = "https://gw-fatoora.zatca.gov.sa/e-invoicing/simulation"
	baseURLProduction = "https://gw-fatoora.zatca.gov.sa/e-invoicing/core"

	maxResponseBytes = 1 << 20
)

// BaseURLFor devuelve la URL base oficial del entorno.
func BaseURLFor(env string) string {
	switch env {
	case EnvProduction:
		return baseURLProduction
	case EnvSimulation:
		return baseURLSimulation
	default:
		return baseURLSandbox
	}
}

// SubmitRequest es un documento firmado listo para enviar.
type SubmitRequest struct {
	InvoiceHash string
	UUID        string
	SignedXML   string
	// Credential es el productionSubmissionId del tenant; se envía tal cual tras "Basic ".
	Credential string
}

// ClientConfig configura el cliente HTTP.
type ClientConfig struct {
	BaseURL     string
	Environment string
	Timeout     time.Duration
	Retry       RetryPolicy
}

// Client implementa los dos flujos de envío sobre el API REST de cumplimiento.
// Nunca devuelve error: todo fallo queda en submission.Result.
type Client struct {
	baseURL    string
	env        string
	httpClient *http.Client
	retry      RetryPolicy
	sleep      func(ctx context.Context, d time.Duration) error
	log        zerolog.Logger
}

// NewClient construye el cliente. Sin BaseURL se usa la del entorno.
// La credencial solo aparece en los logs enmascarada.
func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = BaseURLFor(cfg.Environment)
	}
	return &Client{
		baseURL:    base,
		env:        cfg.Environment,
		httpClient: &http.Client{Timeout: timeout},
		retry:      cfg.Retry.withDefaults(),
		sleep:      Sleep,
		log:        log,
	}
}

// WithSleep reemplaza la espera entre reintentos (tests).
func (c *Client) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Client {
	c.sleep = fn
	return c
}

// Clear envía un documento estándar (B2B) a clearance.
func (c *Client) Clear(ctx context.Context, req SubmitRequest) submission.Result {
	return c.submit(ctx, submission.FlowClearance, req)
}

// Report envía un documento simplificado (B2C) a reporting.
func (c *Client) Report(ctx context.Context, req SubmitRequest) submission.Result {
	return c.submit(ctx, submission.FlowReporting, req)
}

// ── Estructuras JSON ──────────────────────────────────────────────────────────

type requestBody struct {
	InvoiceHash string `json:"invoiceHash"`
	UUID        string `json:"uuid"`
	Invoice     string `json:"invoice"`
}

type apiMessage struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// UnmarshalJSON acepta mensajes como objeto o como cadena.
func (m *apiMessage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Message = s
		return nil
	}
	type plain apiMessage
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = apiMessage(p)
	return nil
}

type validationResults struct {
	Status          string       `json:"status"`
	InfoMessages    []apiMessage `json:"infoMessages"`
	WarningMessages []apiMessage `json:"warningMessages"`
	ErrorMessages   []apiMessage `json:"errorMessages"`
}

type responseBody struct {
	ValidationResults *validationResults `json:"validationResults"`
	ClearanceStatus   string             `json:"clearanceStatus"`
	ReportingStatus   string             `json:"reportingStatus"`
	ClearedInvoice    string             `json:"clearedInvoice"`
	Warnings          []apiMessage       `json:"warnings"`
	Errors            []apiMessage       `json:"errors"`
	Message           string             `json:"message"`
}

// ── submit ────────────────────────────────────────────────────────────────────

func (c *Client) submit(ctx context.Context, flow submission.Flow, req SubmitRequest) submission.Result {
	if c.env == EnvDev {
		return simulatedResult(flow)
	}

	var res submission.Result
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		res = c.do(ctx, flow, req)
		res.Attempts = attempt
		if res.Kind != submission.TransportError || attempt == c.retry.MaxAttempts {
			break
		}
		wait := c.retry.Backoff(attempt)
		c.log.Warn().Str("flow", string(flow)).Str("uuid", req.UUID).Int("attempt", attempt).
			Str("authorization", logger.MaskAuthorization(authorization(req.Credential))).
			Dur("backoff", wait).Str("cause", res.Cause).Msg("envío fallido, reintentando")
		if err := c.sleep(ctx, wait); err != nil {
			res.Cause = fmt.Sprintf("%s (reintento cancelado: %v)", res.Cause, err)
			break
		}
	}
	if res.Kind == submission.TransportError {
		c.log.Error().Str("flow", string(flow)).Str("uuid", req.UUID).Int("attempts", res.Attempts).
			Str("authorization", logger.MaskAuthorization(authorization(req.Credential))).
			Int("http_status", res.HTTPStatus).Str("cause", res.Cause).Msg("envío sin respuesta válida")
	}
	return res
}

func authorization(credential string) string { return "Basic " + credential }

func (c *Client) do(ctx context.Context, flow submission.Flow, req SubmitRequest) submission.Result {
	payload, err := json.Marshal(requestBody{
		InvoiceHash: req.InvoiceHash,
		UUID:        req.UUID,
		Invoice:     base64.StdEncoding.EncodeToString([]byte(req.SignedXML)),
	})
	if err != nil {
		return submission.Result{Kind: submission.TransportError, Cause: fmt.Sprintf("serializar body: %v", err)}
	}

	path := zatca.PathReporting
	if flow == submission.FlowClearance {
		path = zatca.PathClearance
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return submission.Result{Kind: submission.TransportError, Cause: fmt.Sprintf("crear request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Accept-Language", "en")
	httpReq.Header.Set(zatca.HeaderAcceptVer, zatca.APIVersion)
	httpReq.Header.Set("Authorization", authorization(req.Credential))
	if flow == submission.FlowClearance {
		httpReq.Header.Set(zatca.HeaderClearance, "1")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return submission.Result{Kind: submission.TransportError, Cause: fmt.Sprintf("timeout o cancelación: %v", ctx.Err())}
		}
		return submission.Result{Kind: submission.TransportError, Cause: fmt.Sprintf("llamada HTTP fallida: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return submission.Result{Kind: submission.TransportError, HTTPStatus: resp.StatusCode, Cause: fmt.Sprintf("leer respuesta: %v", err)}
	}
	return classify(resp.StatusCode, raw)
}

// classify traduce status HTTP + cuerpo a la variante del resultado.
// 5xx y 429 se tratan como fallos de transporte (reintentables).
func classify(status int, raw []byte) submission.Result {
	res := submission.Result{HTTPStatus: status, RawResponse: string(raw)}

	if status >= 500 || status == http.StatusTooManyRequests {
		res.Kind = submission.TransportError
		res.Cause = fmt.Sprintf("HTTP %d: %s", status, truncate(string(raw), 300))
		return res
	}

	var body responseBody
	parsed := len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &body) == nil
	if parsed {
		res.ClearanceStatus = body.ClearanceStatus
		res.ReportingStatus = body.ReportingStatus
		res.ClearedXML = body.ClearedInvoice
		res.Warnings = toIssues(body.Warnings)
		res.Errors = toIssues(body.Errors)
		if vr := body.ValidationResults; vr != nil {
			res.Warnings = append(res.Warnings, toIssues(vr.WarningMessages)...)
			res.Errors = append(res.Errors, toIssues(vr.ErrorMessages)...)
		}
	}
	warning := parsed && body.ValidationResults != nil &&
		strings.EqualFold(body.ValidationResults.Status, zatca.ValidationWarning)

	switch {
	case status >= 200 && status < 300:
		res.Kind = submission.Accepted
		if warning {
			res.Kind = submission.Warning
		}
	case warning:
		res.Kind = submission.Warning
	default:
		res.Kind = submission.Rejected
		if len(res.Errors) == 0 {
			msg := body.Message
			if msg == "" {
				msg = fmt.Sprintf("HTTP %d: %s", status, truncate(string(raw), 300))
			}
			res.Errors = []submission.Issue{{Message: msg}}
		}
	}
	return res
}

func toIssues(msgs []apiMessage) []submission.Issue {
	out := make([]submission.Issue, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, submission.Issue{Type: m.Type, Code: m.Code, Category: m.Category, Message: m.Message})
	}
	return out
}

func simulatedResult(flow submission.Flow) submission.Result {
	res := submission.Result{Kind: submission.Accepted, HTTPStatus: http.StatusOK, Attempts: 1,
		RawResponse: `{"validationResults":{"status":"PASS"},"simulated":true}`}
	if flow == submission.FlowClearance {
		res.ClearanceStatus = zatca.ClearanceCleared
	} else {
		res.ReportingStatus = zatca.ReportingReported
	}
	return res
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
