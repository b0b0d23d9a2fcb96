// Package zatca contiene las reglas puras de cumplimiento: canonicalización,
// cadena de hashes y codificación TLV del QR. No tiene dependencias de infraestructura.
package zatca

import (
	"regexp"
	"strings"
)

var (
	xmlDeclaration = regexp.MustCompile(`<\?xml[^>]*\?>`)
	interTagSpace  = regexp.MustCompile(`>\s+<`)
)

// Canonicalize produce la forma canónica sobre la que se calcula el hash de contenido:
// elimina la declaración XML, colapsa el espacio entre etiquetas y recorta los extremos.
// Canonicalize(Canonicalize(x)) == Canonicalize(x) para cualquier entrada.
func Canonicalize(xml string) string {
	out := xml
	for {
		stripped := xmlDeclaration.ReplaceAllString(out, "")
		if stripped == out {
			break
		}
		out = stripped
	}
	out = interTagSpace.ReplaceAllString(out, "><")
	return strings.TrimSpace(out)
}
