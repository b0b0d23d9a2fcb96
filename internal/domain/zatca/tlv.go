package zatca

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Tag identifica un campo del payload QR.
type Tag byte

const (
	TagSellerName           Tag = 1
	TagVATNumber            Tag = 2
	TagTimestamp            Tag = 3
	TagInvoiceTotal         Tag = 4
	TagVATTotal             Tag = 5
	TagInvoiceHash          Tag = 6
	TagSignature            Tag = 7
	TagPublicKey            Tag = 8
	TagCertificateSignature Tag = 9
)

// MaxTLVValueLen es el máximo de bytes UTF-8 por valor (longitud de 1 byte).
const MaxTLVValueLen = 255

// QRTimestampLayout es el formato del tag 3.
const QRTimestampLayout = "2006-01-02T15:04:05Z"

var (
	ErrTLVValueTooLong = errors.New("tlv: valor excede 255 bytes")
	ErrTLVMissingField = errors.New("tlv: campo obligatorio vacío")
	ErrTLVMalformed    = errors.New("tlv: payload mal formado")
)

// QRFields son los valores del payload QR. Los tags 1 a 7 son obligatorios.
type QRFields struct {
	SellerName           string
	VATNumber            string
	Timestamp            string
	InvoiceTotal         string
	VATTotal             string
	InvoiceHash          string
	Signature            string
	PublicKey            string
	CertificateSignature string
}

func (f QRFields) ordered() []struct {
	tag      Tag
	value    string
	required bool
} {
	return []struct {
		tag      Tag
		value    string
		required bool
	}{
		{TagSellerName, f.SellerName, true},
		{TagVATNumber, f.VATNumber, true},
		{TagTimestamp, f.Timestamp, true},
		{TagInvoiceTotal, f.InvoiceTotal, true},
		{TagVATTotal, f.VATTotal, true},
		{TagInvoiceHash, f.InvoiceHash, true},
		{TagSignature, f.Signature, true},
		{TagPublicKey, f.PublicKey, false},
		{TagCertificateSignature, f.CertificateSignature, false},
	}
}

// EncodeTLV concatena tag(1 byte) + longitud(1 byte) + bytes UTF-8 del valor, sin transformar,
// en orden de tag.
// Los tags opcionales vacíos se omiten.
func EncodeTLV(fields QRFields) ([]byte, error) {
	var out []byte
	for _, f := range fields.ordered() {
		if f.value == "" {
			if f.required {
				return nil, fmt.Errorf("%w: tag %d", ErrTLVMissingField, f.tag)
			}
			continue
		}
		v := f.value
		if len(v) > MaxTLVValueLen {
			return nil, fmt.Errorf("%w: tag %d tiene %d bytes", ErrTLVValueTooLong, f.tag, len(v))
		}
		out = append(out, byte(f.tag), byte(len(v)))
		out = append(out, v...)
	}
	return out, nil
}

// EncodeQRPayload devuelve el TLV en base64 estándar (valor de qrCodeData).
func EncodeQRPayload(fields QRFields) (string, error) {
	raw, err := EncodeTLV(fields)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTLV recorre los registros tag/longitud/valor.
func DecodeTLV(raw []byte) (QRFields, error) {
	var f QRFields
	for i := 0; i < len(raw); {
		if i+2 > len(raw) {
			return QRFields{}, fmt.Errorf("%w: cabecera truncada en byte %d", ErrTLVMalformed, i)
		}
		tag, n := Tag(raw[i]), int(raw[i+1])
		i += 2
		if i+n > len(raw) {
			return QRFields{}, fmt.Errorf("%w: valor del tag %d truncado", ErrTLVMalformed, tag)
		}
		v := string(raw[i : i+n])
		i += n
		switch tag {
		case TagSellerName:
			f.SellerName = v
		case TagVATNumber:
			f.VATNumber = v
		case TagTimestamp:
			f.Timestamp = v
		case TagInvoiceTotal:
			f.InvoiceTotal = v
		case TagVATTotal:
			f.VATTotal = v
		case TagInvoiceHash:
			f.InvoiceHash = v
		case TagSignature:
			f.Signature = v
		case TagPublicKey:
			f.PublicKey = v
		case TagCertificateSignature:
			f.CertificateSignature = v
		default:
			return QRFields{}, fmt.Errorf("%w: tag desconocido %d", ErrTLVMalformed, tag)
		}
	}
	return f, nil
}

// DecodeQRPayload decodifica el base64 de qrCodeData.
func DecodeQRPayload(payload string) (QRFields, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return QRFields{}, fmt.Errorf("%w: %v", ErrTLVMalformed, err)
	}
	return DecodeTLV(raw)
}
