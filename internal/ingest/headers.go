package ingest

import (
	"fmt"
	"strings"
)

// Canonical column names for the SECOP II export schema.
const (
	ColEntidad            = "Entidad"
	ColObjeto             = "Objeto"
	ColCuantia            = "Cuantía"
	ColModalidad          = "Modalidad"
	ColNumero             = "Número"
	ColEstado             = "Estado"
	ColFechaPublicacion   = "F. Publicación"
	ColUbicacion          = "Ubicación"
	ColActividadEconomica = "Actividad Económica"
	ColCodigosUNSPSC      = "Códigos UNSPSC"
	ColEnlace             = "Enlace"
	ColPortalOrigen       = "Portal de origen"
	ColContratistas       = "Contratista(s)"
)

// Legacy column names accepted for backwards compatibility with the old
// export template. They are never renamed; the transformer reads them as-is.
const (
	ColLegacyNombreProceso = "Nombre del Proceso"
	ColLegacyValorContrato = "Valor del Contrato"
	ColLegacyFechaPub      = "Fecha de Publicación"
	ColLegacyEmail         = "Email Contacto"
	ColLegacyTelefono      = "Teléfono Contacto"
	ColLegacyCiudad        = "Ciudad"
)

// CanonicalColumns lists every canonical header in template order.
var CanonicalColumns = []string{
	ColEntidad,
	ColObjeto,
	ColCuantia,
	ColModalidad,
	ColNumero,
	ColEstado,
	ColFechaPublicacion,
	ColUbicacion,
	ColActividadEconomica,
	ColCodigosUNSPSC,
	ColEnlace,
	ColPortalOrigen,
	ColContratistas,
}

// columnAliases maps lowercased header variants to their canonical name.
// Lookup is case-insensitive exact match after trimming.
var columnAliases = map[string]string{
	"entidad":             ColEntidad,
	"entidad contratante": ColEntidad,
	"nombre entidad":      ColEntidad,

	"objeto":              ColObjeto,
	"objeto del contrato": ColObjeto,
	"descripción":         ColObjeto,
	"descripcion":         ColObjeto,

	"cuantía":             ColCuantia,
	"cuantia":             ColCuantia,
	"valor":               ColCuantia,
	"valor contrato":      ColCuantia,
	"presupuesto":         ColCuantia,
	"presupuesto oficial": ColCuantia,
	"monto":               ColCuantia,

	"modalidad":        ColModalidad,
	"tipo modalidad":   ColModalidad,
	"tipo de contrato": ColModalidad,
	"tipo de proceso":  ColModalidad,

	"número":         ColNumero,
	"numero":         ColNumero,
	"número proceso": ColNumero,
	"numero proceso": ColNumero,
	"no. proceso":    ColNumero,
	"proceso":        ColNumero,
	"referencia":     ColNumero,
	"id proceso":     ColNumero,

	"estado":             ColEstado,
	"estado proceso":     ColEstado,
	"estado del proceso": ColEstado,
	"etapa":              ColEstado,

	"f. publicación":       ColFechaPublicacion,
	"f. publicacion":       ColFechaPublicacion,
	"fecha publicación":    ColFechaPublicacion,
	"fecha publicacion":    ColFechaPublicacion,
	"fecha de publicación": ColFechaPublicacion,
	"fecha de publicacion": ColFechaPublicacion,
	"publicado":            ColFechaPublicacion,
	"fecha":                ColFechaPublicacion,

	"ubicación":    ColUbicacion,
	"ubicacion":    ColUbicacion,
	"localización": ColUbicacion,
	"localizacion": ColUbicacion,
	"departamento": ColUbicacion,

	"actividad económica": ColActividadEconomica,
	"actividad economica": ColActividadEconomica,
	"sector":              ColActividadEconomica,
	"categoría":           ColActividadEconomica,
	"categoria":           ColActividadEconomica,

	"códigos unspsc": ColCodigosUNSPSC,
	"codigos unspsc": ColCodigosUNSPSC,
	"código unspsc":  ColCodigosUNSPSC,
	"codigo unspsc":  ColCodigosUNSPSC,
	"unspsc":         ColCodigosUNSPSC,

	"enlace":  ColEnlace,
	"link":    ColEnlace,
	"url":     ColEnlace,
	"vínculo": ColEnlace,
	"vinculo": ColEnlace,

	"portal de origen": ColPortalOrigen,
	"portal":           ColPortalOrigen,
	"fuente":           ColPortalOrigen,

	"contratista(s)": ColContratistas,
	"contratista":    ColContratistas,
	"contratistas":   ColContratistas,
	"adjudicatario":  ColContratistas,
}

// CanonicalHeader maps a single raw header to its canonical name. Unmatched
// headers are returned trimmed but otherwise unchanged.
func CanonicalHeader(name string) string {
	trimmed := strings.TrimSpace(name)
	if canonical, ok := columnAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

// NormalizeHeaders maps every header through the alias table and reports the
// renames applied. Normalizing an already-canonical sequence is a no-op.
func NormalizeHeaders(headers []string) ([]string, []string) {
	normalized := make([]string, 0, len(headers))
	var corrections []string

	for _, header := range headers {
		canonical := CanonicalHeader(header)
		normalized = append(normalized, canonical)
		if trimmed := strings.TrimSpace(header); canonical != trimmed {
			corrections = append(corrections, fmt.Sprintf("column %q normalized to %q", trimmed, canonical))
		}
	}

	return normalized, corrections
}
