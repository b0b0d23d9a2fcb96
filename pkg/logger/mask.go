package logger

import "strings"

// MaskSecret enmascara una credencial dejando solo los últimos 4 caracteres.
// Las llaves privadas nunca deben pasar por aquí: no se registran.
func MaskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// MaskAuthorization enmascara el valor de una cabecera Authorization conservando el esquema.
func MaskAuthorization(value string) string {
	parts := strings.Fields(value)
	if len(parts) == 2 {
		return parts[0] + " " + MaskSecret(parts[1])
	}
	return MaskSecret(value)
}
