package flow

import (
	"net/url"
	"strings"
)

// DefaultReturnURL es el destino cuando no se pide uno o el pedido no es válido.
const DefaultReturnURL = "/"

// SanitizeReturnURL solo acepta paths relativos al propio sitio ("/x?y").
// Cualquier URL absoluta, protocol-relative ("//evil") o con backslash
// vuelve a DefaultReturnURL.
func SanitizeReturnURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return DefaultReturnURL
	}
	if strings.ContainsAny(raw, "\\\r\n\t") {
		return DefaultReturnURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" || u.User != nil {
		return DefaultReturnURL
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
