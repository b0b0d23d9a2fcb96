// Constantes para la firma del documento (XMLDSig + XAdES, curva EC).

package signer

// Namespaces y algoritmos XMLDSig / XAdES.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceXAdES     = "http://uri.etsi.org/01903/v1.3.2#"
	AlgC14N11          = "http://www.w3.org/2006/12/xml-c14n11"
	AlgECDSASHA256     = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256"
	AlgSHA256          = "http://www.w3.org/2001/04/xmlenc#sha256"
	TransformXPath     = "http://www.w3.org/TR/1999/REC-xpath-19991116"
	SignedPropsType    = "http://www.w3.org/2000/09/xmldsig#SignatureProperties"
	SignedPropertiesID = "xadesSignedProperties"
)

// Encoding es el formato binario de la firma ECDSA.
type Encoding string

const (
	// EncodingP1363 es r||s de longitud fija (IEEE-P1363). Formato principal.
	EncodingP1363 Encoding = "p1363"
	// EncodingDER es la secuencia ASN.1 (r, s). Formato alterno.
	EncodingDER Encoding = "der"
)

// ParseEncoding interpreta el valor de configuración; vacío equivale a P1363.
func ParseEncoding(s string) (Encoding, bool) {
	switch Encoding(s) {
	case "", EncodingP1363:
		return EncodingP1363, true
	case EncodingDER:
		return EncodingDER, true
	}
	return "", false
}
