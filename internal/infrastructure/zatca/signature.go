package zatca

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/jhoicas/fatoora-api/internal/infrastructure/zatca/signer"
	"github.com/jhoicas/fatoora-api/pkg/zatca"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"
)

// Namespaces de la extensión de firma UBL.
const (
	NsSig = "urn:oasis:names:specification:ubl:schema:xsd:CommonSignatureComponents-2"
	NsSac = "urn:oasis:names:specification:ubl:schema:xsd:SignatureAggregateComponents-2"
	NsSbc = "urn:oasis:names:specification:ubl:schema:xsd:SignatureBasicComponents-2"

	extensionURIXAdES = "urn:oasis:names:specification:ubl:dsig:enveloped:xades"
	signatureInfoID   = "urn:oasis:names:specification:ubl:signature:1"
	referencedSigID   = "urn:oasis:names:specification:ubl:signature:Invoice"
)

// Marcadores de inserción. El builder siempre los emite.
const (
	signatureAnchor = "<cbc:ProfileID>"
	qrAnchor        = "<cac:AccountingSupplierParty>"

	extensionsOpen  = "<ext:UBLExtensions>"
	extensionsClose = "</ext:UBLExtensions>"
	qrRefOpen       = "<cac:AdditionalDocumentReference><cbc:ID>" + zatca.DocumentReferenceQR + "</cbc:ID>"
	docRefClose     = "</cac:AdditionalDocumentReference>"
)

// BuildSignatureExtension arma el bloque ext:UBLExtensions compacto (sin espacios entre etiquetas).
// El DigestValue de la referencia al documento es el hash encadenado.
func BuildSignatureExtension(blk SignatureBlock) string {
	signedProps := buildSignedProperties(blk)
	propsDigest := digestCanonical(signedProps)

	var sb strings.Builder
	sb.WriteString(extensionsOpen)
	sb.WriteString(`<ext:UBLExtension><ext:ExtensionURI>` + extensionURIXAdES + `</ext:ExtensionURI><ext:ExtensionContent>`)
	sb.WriteString(`<sig:UBLDocumentSignatures xmlns:sig="` + NsSig + `" xmlns:sac="` + NsSac + `" xmlns:sbc="` + NsSbc + `">`)
	sb.WriteString(`<sac:SignatureInformation><cbc:ID>` + signatureInfoID + `</cbc:ID>`)
	sb.WriteString(`<sbc:ReferencedSignatureID>` + referencedSigID + `</sbc:ReferencedSignatureID>`)
	sb.WriteString(`<ds:Signature xmlns:ds="` + signer.NamespaceDS + `" Id="signature">`)
	sb.WriteString(`<ds:SignedInfo>`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + signer.AlgC14N11 + `"/>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + signer.AlgECDSASHA256 + `"/>`)
	sb.WriteString(`<ds:Reference Id="invoiceSignedData" URI="">`)
	sb.WriteString(`<ds:Transforms>`)
	sb.WriteString(`<ds:Transform Algorithm="` + signer.TransformXPath + `"><ds:XPath>not(//ancestor-or-self::ext:UBLExtensions)</ds:XPath></ds:Transform>`)
	sb.WriteString(`<ds:Transform Algorithm="` + signer.TransformXPath + `"><ds:XPath>not(//ancestor-or-self::cac:AdditionalDocumentReference[cbc:ID='QR'])</ds:XPath></ds:Transform>`)
	sb.WriteString(`<ds:Transform Algorithm="` + signer.AlgC14N11 + `"/>`)
	sb.WriteString(`</ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + signer.AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + blk.InvoiceDigest + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`<ds:Reference Type="` + signer.SignedPropsType + `" URI="#` + signer.SignedPropertiesID + `">`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + signer.AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + propsDigest + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	sb.WriteString(`<ds:SignatureValue>` + blk.SignatureValue + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:KeyName>` + blk.PublicKeyHash + `</ds:KeyName>`)
	if blk.Certificate != "" {
		sb.WriteString(`<ds:X509Data><ds:X509Certificate>` + blk.Certificate + `</ds:X509Certificate></ds:X509Data>`)
	}
	sb.WriteString(`</ds:KeyInfo>`)
	sb.WriteString(`<ds:Object><xades:QualifyingProperties xmlns:xades="` + signer.NamespaceXAdES + `" Target="signature">`)
	sb.WriteString(signedProps)
	sb.WriteString(`</xades:QualifyingProperties></ds:Object>`)
	sb.WriteString(`</ds:Signature></sac:SignatureInformation></sig:UBLDocumentSignatures>`)
	sb.WriteString(`</ext:ExtensionContent></ext:UBLExtension>`)
	sb.WriteString(extensionsClose)
	return sb.String()
}

func buildSignedProperties(blk SignatureBlock) string {
	var sb strings.Builder
	sb.WriteString(`<xades:SignedProperties xmlns:xades="` + signer.NamespaceXAdES + `" xmlns:ds="` + signer.NamespaceDS + `" Id="` + signer.SignedPropertiesID + `">`)
	sb.WriteString(`<xades:SignedSignatureProperties>`)
	sb.WriteString(`<xades:SigningTime>` + blk.SigningTime + `</xades:SigningTime>`)
	if blk.CertDigest != "" {
		sb.WriteString(`<xades:SigningCertificate><xades:Cert><xades:CertDigest>`)
		sb.WriteString(`<ds:DigestMethod Algorithm="` + signer.AlgSHA256 + `"/>`)
		sb.WriteString(`<ds:DigestValue>` + blk.CertDigest + `</ds:DigestValue>`)
		sb.WriteString(`</xades:CertDigest></xades:Cert></xades:SigningCertificate>`)
	}
	sb.WriteString(`</xades:SignedSignatureProperties></xades:SignedProperties>`)
	return sb.String()
}

func digestCanonical(fragment string) string {
	canonical, err := canonicalizeXML([]byte(fragment))
	if err != nil {
		canonical = []byte(fragment)
	}
	sum := sha256.Sum256(canonical)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

// BuildQRReference arma la referencia compacta que lleva el payload QR.
func BuildQRReference(qrPayload string) string {
	return qrRefOpen +
		`<cac:Attachment><cbc:EmbeddedDocumentBinaryObject mimeCode="text/plain">` + qrPayload +
		`</cbc:EmbeddedDocumentBinaryObject></cac:Attachment>` + docRefClose
}

// EmbedSignature inserta el bloque de firma antes de cbc:ProfileID.
func EmbedSignature(unsignedXML, extension string) (string, error) {
	if strings.Contains(unsignedXML, extensionsOpen) {
		return "", fmt.Errorf("zatca: el documento ya contiene UBLExtensions")
	}
	return insertBefore(unsignedXML, signatureAnchor, extension)
}

// EmbedQR inserta la referencia QR antes de cac:AccountingSupplierParty.
func EmbedQR(xmlDoc, qrPayload string) (string, error) {
	if strings.Contains(xmlDoc, qrRefOpen) {
		return "", fmt.Errorf("zatca: el documento ya contiene QR")
	}
	return insertBefore(xmlDoc, qrAnchor, BuildQRReference(qrPayload))
}

func insertBefore(doc, anchor, fragment string) (string, error) {
	i := strings.Index(doc, anchor)
	if i < 0 {
		return "", fmt.Errorf("zatca: no se encontró %s en el documento", anchor)
	}
	return doc[:i] + fragment + doc[i:], nil
}

// StripEmbedded elimina exactamente los bloques insertados por EmbedSignature y EmbedQR,
// devolviendo los bytes que se hashearon al firmar.
func StripEmbedded(signedXML string) string {
	out := cutBlock(signedXML, extensionsOpen, extensionsClose)
	return cutBlock(out, qrRefOpen, docRefClose)
}

func cutBlock(doc, open, close string) string {
	i := strings.Index(doc, open)
	if i < 0 {
		return doc
	}
	j := strings.Index(doc[i:], close)
	if j < 0 {
		return doc
	}
	return doc[:i] + doc[i+j+len(close):]
}

// ExtractSignedFields lee del documento firmado los valores necesarios para verificarlo.
func ExtractSignedFields(signedXML string) (*SignedFields, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(signedXML); err != nil {
		return nil, fmt.Errorf("zatca: parsear XML firmado: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("zatca: documento sin raíz")
	}
	out := &SignedFields{}
	if el := root.SelectElement("cbc:UUID"); el != nil {
		out.UUID = el.Text()
	}
	for _, ref := range root.SelectElements("cac:AdditionalDocumentReference") {
		id := ref.SelectElement("cbc:ID")
		if id == nil {
			continue
		}
		switch id.Text() {
		case zatca.DocumentReferenceICV:
			if el := ref.SelectElement("cbc:UUID"); el != nil {
				out.Counter = el.Text()
			}
		case zatca.DocumentReferencePIH:
			if el := ref.FindElement("cac:Attachment/cbc:EmbeddedDocumentBinaryObject"); el != nil {
				out.PreviousHash = el.Text()
			}
		case zatca.DocumentReferenceQR:
			if el := ref.FindElement("cac:Attachment/cbc:EmbeddedDocumentBinaryObject"); el != nil {
				out.QRPayload = el.Text()
			}
		}
	}
	if el := root.FindElement("//ds:Reference[@Id='invoiceSignedData']/ds:DigestValue"); el != nil {
		out.InvoiceDigest = el.Text()
	}
	if el := root.FindElement("//ds:SignatureValue"); el != nil {
		out.SignatureValue = el.Text()
	}
	if out.InvoiceDigest == "" || out.SignatureValue == "" {
		return nil, fmt.Errorf("zatca: el documento no contiene firma")
	}
	return out, nil
}
