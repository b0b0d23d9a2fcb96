package zatca

import (
	"fmt"
	"unicode"
)

// ValidateVATNumber valida un número de registro de IVA: 15 dígitos,
// comenzando y terminando en 3. Acepta separadores, que se ignoran.
func ValidateVATNumber(vat string) error {
	digits := extractDigits(vat)
	if len(digits) != 15 {
		return fmt.Errorf("zatca: el número de IVA debe tener 15 dígitos, se encontraron %d", len(digits))
	}
	if digits[0] != '3' || digits[14] != '3' {
		return fmt.Errorf("zatca: el número de IVA debe comenzar y terminar en 3: %s", string(digits))
	}
	return nil
}

// NormalizeVATNumber devuelve solo los dígitos del número de IVA.
func NormalizeVATNumber(vat string) string {
	return string(extractDigits(vat))
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if unicode.IsDigit(r) && r < 128 {
			out = append(out, byte(r))
		}
	}
	return out
}
