package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"accented words", "Línea Producto", "linea_producto"},
		{"already canonical", "linea_producto", "linea_producto"},
		{"padded", "  Fecha  ", "fecha"},
		{"trailing space", "Cliente ", "cliente"},
		{"embedded newline", "Valor\nMN", "valor_mn"},
		{"carriage return and runs", "Tipo de  Cambio\r\n", "tipo_de_cambio"},
		{"enye", "Año", "ano"},
		{"mojibake enye", "AÃ±o", "ano"},
		{"lowered mojibake enye", "aã±o", "ano"},
		{"mojibake acute", "RazÃ³n Social", "razon_social"},
		{"uppercase acute", "RAZÓN SOCIAL", "razon_social"},
		{"typo kept", "Línea Prodcucto", "linea_prodcucto"},
		{"degree sign kept", "N° Factur", "n°_factur"},
		{"umlaut", "Ünico", "unico"},
		{"grave", "Crème", "creme"},
		{"tilde outside table", "Ação", "acao"},
		{"non breaking space", "Valor\u00a0USD", "valor_usd"},
		{"empty", "", ""},
		{"only spaces", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Header(tt.in))
		})
	}
}

func TestHeaderIdempotent(t *testing.T) {
	corpus := []string{
		"Línea Producto", "AÃ±o", "aã±o", "  Valor\nUSD ", "N° Factur", "Tipo_De_Cambio",
		"clave-venta", "T.C.", "Ação", "İstanbul", "ǅemal", "Straße", "Â°C", "\xff\xfe", "a _ b",
		"VALOR MN", "Cliente ", "FECHA\tFACTURA", "#", "日本語 列",
	}

	for _, s := range corpus {
		once := Header(s)
		assert.Equal(t, once, Header(once), "header %q", s)
	}
}

func TestHeaderAccentInsensitive(t *testing.T) {
	assert.Equal(t, Header("linea_producto"), Header("Línea Producto"))
	assert.Equal(t, Header("Año"), Header("AÃ±o"))
	assert.True(t, Equal("Razón Social", "razon_social"))
	assert.False(t, Equal("cliente", "clientes"))
}

func TestHeaders(t *testing.T) {
	got := Headers([]string{"Cliente", "Cliente ", "Fecha"})
	assert.Equal(t, []string{"cliente", "cliente", "fecha"}, got)
}
