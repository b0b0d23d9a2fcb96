// keycheck diagnostica la llave de firma de un tenant: la carga desde PEM o PKCS#12,
// imprime el hash de la llave pública y firma/verifica un valor de prueba en ambas codificaciones.
//
//	go run ./cmd/keycheck -p12 certificado.p12 -pass 123456
//	go run ./cmd/keycheck -pem llave.pem
package main

import (
	"flag"
	"fmt"
	"os"

	domainzatca "github.com/jhoicas/fatoora-api/internal/domain/zatca"
	"github.com/jhoicas/fatoora-api/internal/infrastructure/zatca/signer"
)

func main() {
	p12Path := flag.String("p12", "", "ruta del archivo .p12/.pfx")
	p12Pass := flag.String("pass", "", "contraseña del .p12")
	pemPath := flag.String("pem", "", "ruta de la llave PEM")
	flag.Parse()

	fmt.Println("🔍 DIAGNÓSTICO DE LLAVE DE FIRMA")
	fmt.Println("----------------------------------")

	// 1. Cargar la llave
	km, err := load(*p12Path, *p12Pass, *pemPath)
	if err != nil {
		fmt.Println("\n❌ ERROR AL CARGAR LA LLAVE:")
		fmt.Printf("   Detalle técnico: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Llave EC cargada. Curva: %s\n", km.Key.Curve.Params().Name)
	if km.Cert != nil {
		fmt.Printf("📜 Certificado: %s (vence %s)\n", km.Cert.Subject.CommonName, km.Cert.NotAfter.Format("2006-01-02"))
	}

	// 2. Hash de la llave pública
	pkHash, err := signer.PublicKeyHash(&km.Key.PublicKey)
	if err != nil {
		fmt.Printf("\n❌ ERROR al serializar la llave pública: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("🔑 Hash de llave pública: %s\n", pkHash)

	// 3. Firmar y verificar un valor de prueba en ambas codificaciones
	sample := domainzatca.ComputeChain("<Invoice><cbc:ID>keycheck</cbc:ID></Invoice>", "").ChainedHash
	fmt.Printf("\n🧪 Hash encadenado de prueba: %s\n", sample)
	failed := false
	for _, enc := range []signer.Encoding{signer.EncodingP1363, signer.EncodingDER} {
		svc := signer.NewDigitalSignatureService(enc)
		sig, err := svc.Sign(sample, km.Key)
		if err != nil {
			fmt.Printf("   ❌ %s: firma falló: %v\n", enc, err)
			failed = true
			continue
		}
		if err := svc.Verify(sample, sig, &km.Key.PublicKey); err != nil {
			fmt.Printf("   ❌ %s: verificación falló: %v\n", enc, err)
			failed = true
			continue
		}
		fmt.Printf("   ✅ %s: firma verificada (%d caracteres)\n", enc, len(sig))
	}
	if failed {
		os.Exit(1)
	}

	fmt.Println("\n✨ ¡ÉXITO! La llave firma y verifica correctamente.")
}

func load(p12Path, p12Pass, pemPath string) (*signer.KeyMaterial, error) {
	switch {
	case p12Path != "":
		fmt.Printf("📂 Leyendo PKCS#12: %s\n", p12Path)
		return signer.LoadFromP12(p12Path, p12Pass)
	case pemPath != "":
		fmt.Printf("📂 Leyendo PEM: %s\n", pemPath)
		data, err := os.ReadFile(pemPath)
		if err != nil {
			return nil, fmt.Errorf("leer pem: %w", err)
		}
		key, err := signer.ParsePrivateKey(string(data))
		if err != nil {
			return nil, err
		}
		return &signer.KeyMaterial{Key: key}, nil
	}
	return nil, fmt.Errorf("indique -p12 o -pem")
}
