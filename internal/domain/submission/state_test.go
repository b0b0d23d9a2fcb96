package submission_test

import (
	"testing"
	"time"

	"github.com/jhoicas/fatoora-api/internal/domain"
	"github.com/jhoicas/fatoora-api/internal/domain/entity"
	"github.com/jhoicas/fatoora-api/internal/domain/submission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func submitted() *entity.InvoiceCompliance {
	return &entity.InvoiceCompliance{SignedXML: "<Invoice/>", SubmissionStatus: entity.SubmissionSubmitted}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, submission.CanTransition(entity.SubmissionNone, entity.SubmissionPending))
	assert.True(t, submission.CanTransition(entity.SubmissionPending, entity.SubmissionSubmitted))
	assert.True(t, submission.CanTransition(entity.SubmissionRejected, entity.SubmissionSubmitted))
	assert.True(t, submission.CanTransition(entity.SubmissionSubmitted, entity.SubmissionSubmitted), "reintento de envío atascado")
	assert.False(t, submission.CanTransition(entity.SubmissionNone, entity.SubmissionCleared))
	assert.False(t, submission.CanTransition(entity.SubmissionCleared, entity.SubmissionSubmitted), "cleared es terminal")
	assert.False(t, submission.CanTransition(entity.SubmissionReported, entity.SubmissionPending), "reported es terminal")
}

func TestTransition_Invalida(t *testing.T) {
	c := &entity.InvoiceCompliance{SubmissionStatus: entity.SubmissionCleared}
	err := submission.Transition(c, entity.SubmissionPending)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, entity.SubmissionCleared, c.SubmissionStatus)
}

func TestCheckSignable(t *testing.T) {
	draft := &entity.Invoice{Status: entity.InvoiceStatusApproved}
	signed, err := submission.CheckSignable(draft)
	require.NoError(t, err)
	assert.False(t, signed)

	pending := &entity.Invoice{Status: entity.InvoiceStatusApproved, Compliance: entity.InvoiceCompliance{SignedXML: "<x/>", SubmissionStatus: entity.SubmissionPending}}
	signed, err = submission.CheckSignable(pending)
	require.NoError(t, err)
	assert.True(t, signed, "pending firmado se reutiliza")

	cleared := &entity.Invoice{Status: entity.InvoiceStatusSent, Compliance: entity.InvoiceCompliance{SignedXML: "<x/>", SubmissionStatus: entity.SubmissionCleared}}
	_, err = submission.CheckSignable(cleared)
	assert.ErrorIs(t, err, domain.ErrAlreadySigned)

	cancelled := &entity.Invoice{Status: entity.InvoiceStatusCancelled}
	_, err = submission.CheckSignable(cancelled)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestApply_ClearanceAceptada(t *testing.T) {
	c := submitted()
	submission.Apply(c, submission.FlowClearance, submission.Result{Kind: submission.Accepted, ClearanceStatus: "CLEARED", RawResponse: "{}"}, now)

	assert.Equal(t, entity.SubmissionCleared, c.SubmissionStatus)
	assert.Equal(t, "CLEARED", c.ClearanceStatus)
	require.NotNil(t, c.ClearedAt)
	assert.Equal(t, 0, c.RetryCount)
	assert.Empty(t, c.LastError)
}

func TestApply_ClearanceRechazada(t *testing.T) {
	c := submitted()
	submission.Apply(c, submission.FlowClearance, submission.Result{
		Kind:   submission.Rejected,
		Errors: []submission.Issue{{Code: "BR-KSA-37", Message: "seller VAT invalid"}},
	}, now)

	assert.Equal(t, entity.SubmissionRejected, c.SubmissionStatus)
	assert.Equal(t, 1, c.RetryCount)
	assert.Equal(t, "BR-KSA-37: seller VAT invalid", c.LastError)
}

func TestApply_Warning(t *testing.T) {
	c := submitted()
	submission.Apply(c, submission.FlowReporting, submission.Result{
		Kind:     submission.Warning,
		Warnings: []submission.Issue{{Message: "address incomplete"}},
	}, now)

	assert.Equal(t, entity.SubmissionWarning, c.SubmissionStatus)
	assert.Equal(t, 1, c.RetryCount)
	assert.Equal(t, "address incomplete", c.LastError)
}

func TestApply_TransportePorFlujo(t *testing.T) {
	rep := submitted()
	submission.Apply(rep, submission.FlowReporting, submission.Result{Kind: submission.TransportError, Cause: "timeout"}, now)
	assert.Equal(t, entity.SubmissionPending, rep.SubmissionStatus, "reporting vuelve a pending para el siguiente job")
	assert.Equal(t, "timeout", rep.LastError)
	assert.Equal(t, 1, rep.RetryCount)

	clr := submitted()
	submission.Apply(clr, submission.FlowClearance, submission.Result{Kind: submission.TransportError, Cause: "timeout"}, now)
	assert.Equal(t, entity.SubmissionRejected, clr.SubmissionStatus)
}

func TestCanResubmit(t *testing.T) {
	grace := 15 * time.Minute
	assert.NoError(t, submission.CanResubmit(entity.InvoiceCompliance{SignedXML: "<x/>", SubmissionStatus: entity.SubmissionRejected}, now, grace))
	assert.NoError(t, submission.CanResubmit(entity.InvoiceCompliance{SignedXML: "<x/>", SubmissionStatus: entity.SubmissionWarning}, now, grace))
	assert.ErrorIs(t, submission.CanResubmit(entity.InvoiceCompliance{SignedXML: "<x/>", SubmissionStatus: entity.SubmissionCleared}, now, grace), domain.ErrConflict)
	assert.ErrorIs(t, submission.CanResubmit(entity.InvoiceCompliance{SubmissionStatus: entity.SubmissionRejected}, now, grace), domain.ErrConflict)
}

func TestCanResubmit_SubmittedSegunAntiguedad(t *testing.T) {
	grace := 15 * time.Minute
	recent := now.Add(-time.Minute)
	old := now.Add(-grace)

	c := entity.InvoiceCompliance{SignedXML: "<x/>", SubmissionStatus: entity.SubmissionSubmitted, SubmittedAt: &recent}
	assert.ErrorIs(t, submission.CanResubmit(c, now, grace), domain.ErrConflict, "envío en curso")
	assert.False(t, submission.IsStale(c, now, grace))

	c.SubmittedAt = &old
	assert.NoError(t, submission.CanResubmit(c, now, grace))
	assert.True(t, submission.IsStale(c, now, grace))

	c.SubmittedAt = nil
	assert.True(t, submission.IsStale(c, now, grace))

	pending := entity.InvoiceCompliance{SubmissionStatus: entity.SubmissionPending, SubmittedAt: &old}
	assert.False(t, submission.IsStale(pending, now, grace))
}

func TestMarkSubmitted_RetomaEnvioAtascado(t *testing.T) {
	old := now.Add(-time.Hour)
	c := submitted()
	c.SubmittedAt = &old

	require.NoError(t, submission.MarkSubmitted(c, now))
	assert.Equal(t, entity.SubmissionSubmitted, c.SubmissionStatus)
	assert.Equal(t, now, *c.SubmittedAt)
}

func TestApply_ClearanceGuardaDocumentoSellado(t *testing.T) {
	c := submitted()
	submission.Apply(c, submission.FlowClearance, submission.Result{Kind: submission.Accepted, ClearedXML: "PEludm9pY2UvPg=="}, now)
	assert.Equal(t, "PEludm9pY2UvPg==", c.ClearedXML)

	w := submitted()
	submission.Apply(w, submission.FlowClearance, submission.Result{Kind: submission.Warning, ClearedXML: "PFdhcm4vPg=="}, now)
	assert.Equal(t, "PFdhcm4vPg==", w.ClearedXML)

	rep := submitted()
	submission.Apply(rep, submission.FlowReporting, submission.Result{Kind: submission.Accepted, ClearedXML: "ignorado"}, now)
	assert.Empty(t, rep.ClearedXML, "reporting no devuelve documento sellado")

	rej := submitted()
	rej.ClearedXML = "previo"
	submission.Apply(rej, submission.FlowClearance, submission.Result{Kind: submission.Rejected}, now)
	assert.Equal(t, "previo", rej.ClearedXML)
}
