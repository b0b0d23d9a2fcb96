package entity

// Party es la instantánea de vendedor o comprador que se embebe en el documento.
type Party struct {
	Name           string
	VATNumber      string // 15 dígitos para registrados en IVA
	OtherID        string // CRN u otro identificador
	OtherIDScheme  string // CRN, NAT, TIN...
	Street         string
	BuildingNumber string
	District       string
	City           string
	PostalZone     string
	CountryCode    string // ISO 3166-1 alpha-2
}
