package logger_test

import (
	"testing"

	"github.com/jhoicas/fatoora-api/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", logger.MaskSecret(""))
	assert.Equal(t, "****", logger.MaskSecret("abc"))
	assert.Equal(t, "****5678", logger.MaskSecret("secret-12345678"))
}

func TestMaskAuthorization(t *testing.T) {
	assert.Equal(t, "Basic ****RzNB", logger.MaskAuthorization("Basic VFVsSlJERjZRzNB"))
}
