package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/fatoora-api/internal/application/compliance"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	SignInvoice  *compliance.SignInvoiceUseCase
	Resubmit     *compliance.ResubmitUseCase
	Query        *compliance.QueryUseCase
	VerifyChain  *compliance.VerifyChainUseCase
	ReportingJob *compliance.ReportingJob
	JWTSecret    string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	handler := NewComplianceHandler(deps.SignInvoice, deps.Resubmit, deps.Query, deps.VerifyChain, deps.ReportingJob)
	RegisterComplianceRoutes(protected, handler)
}

// RegisterComplianceRoutes monta las rutas de cumplimiento sobre un grupo ya autenticado.
func RegisterComplianceRoutes(r fiber.Router, h *ComplianceHandler) {
	// Invoices: firma y envío solo para roles contables
	invoices := r.Group("/invoices")
	invoices.Post("/:id/sign", RequireRole(RoleAdmin, RoleAccountant), h.Sign)
	invoices.Post("/:id/resubmit", RequireRole(RoleAdmin, RoleAccountant), h.Resubmit)
	invoices.Get("/:id/compliance", h.GetCompliance)
	invoices.Get("/:id/qr.png", h.QRImage)
	invoices.Get("/:id/pdf", h.DownloadPDF)

	// Compliance (tenant completo)
	comp := r.Group("/compliance")
	comp.Get("/chain/verify", RequireRole(RoleAdmin, RoleAccountant), h.VerifyChain)
	comp.Post("/reporting/run", RequireRole(RoleAdmin), h.RunReporting)
}
