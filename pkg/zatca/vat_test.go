package zatca_test

import (
	"testing"

	"github.com/jhoicas/fatoora-api/pkg/zatca"
	"github.com/stretchr/testify/assert"
)

func TestValidateVATNumber(t *testing.T) {
	assert.NoError(t, zatca.ValidateVATNumber("399999999900003"))
	assert.NoError(t, zatca.ValidateVATNumber("3999-9999-9900-003"))
	assert.Error(t, zatca.ValidateVATNumber("39999999990000"), "14 dígitos")
	assert.Error(t, zatca.ValidateVATNumber("199999999900003"), "no inicia en 3")
	assert.Error(t, zatca.ValidateVATNumber("399999999900001"), "no termina en 3")
}

func TestNormalizeVATNumber(t *testing.T) {
	assert.Equal(t, "399999999900003", zatca.NormalizeVATNumber(" 3999-9999-9900-003 "))
}
