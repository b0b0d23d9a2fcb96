package zatca

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// DefaultQRSize es el lado en píxeles de la imagen QR.
const DefaultQRSize = 256

// RenderQRPNG codifica el payload en un QR con corrección de error media (M) y lo escala a size px.
func RenderQRPNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	code, err := qr.Encode(payload, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("zatca: codificar QR: %w", err)
	}
	scaled, err := barcode.Scale(code, size, size)
	if err != nil {
		return nil, fmt.Errorf("zatca: escalar QR: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("zatca: PNG del QR: %w", err)
	}
	return buf.Bytes(), nil
}

// QRDataURL devuelve la imagen como data URL (valor de qrCodeImage).
func QRDataURL(payload string) (string, error) {
	img, err := RenderQRPNG(payload, DefaultQRSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(img), nil
}

// DecodeQRDataURL recupera los bytes PNG de un data URL generado por QRDataURL.
func DecodeQRDataURL(dataURL string) ([]byte, error) {
	const prefix = "data:image/png;base64,"
	if len(dataURL) < len(prefix) || dataURL[:len(prefix)] != prefix {
		return nil, fmt.Errorf("zatca: data URL de QR inválido")
	}
	return base64.StdEncoding.DecodeString(dataURL[len(prefix):])
}
