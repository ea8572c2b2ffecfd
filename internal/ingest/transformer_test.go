package ingest

import (
	"errors"
	"strings"
	"testing"
)

func TestTransformRow(t *testing.T) {
	row := Row{
		ColEntidad:            "ALCALDIA   DE BOGOTA",
		ColObjeto:             "Construcción de malla vial",
		ColCuantia:            "1500000.5",
		ColModalidad:          "Licitación Pública",
		ColNumero:             "LP-001-2025",
		ColEstado:             "Convocatoria",
		ColFechaPublicacion:   "2025-11-01",
		ColUbicacion:          "Cundinamarca : Bogotá",
		ColActividadEconomica: "Construcción",
		ColCodigosUNSPSC:      "72141000",
		ColEnlace:             "www.secop.gov.co/proceso/1",
	}

	lead, err := TransformRow(row, 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lead.Name != "Licitación Pública - LP-001-2025" {
		t.Errorf("Name = %q", lead.Name)
	}
	if lead.PartnerName != "ALCALDIA DE BOGOTA" {
		t.Errorf("PartnerName = %q", lead.PartnerName)
	}
	if lead.ExpectedRevenue != 1500000.5 {
		t.Errorf("ExpectedRevenue = %v", lead.ExpectedRevenue)
	}
	if lead.Probability != 25 {
		t.Errorf("Probability = %d, want 25", lead.Probability)
	}
	if lead.City != "Bogotá" {
		t.Errorf("City = %q", lead.City)
	}
	if lead.Website != "https://www.secop.gov.co/proceso/1" {
		t.Errorf("Website = %q", lead.Website)
	}
	if lead.CierreConHora != "2025-11-01 00:00:00" {
		t.Errorf("CierreConHora = %q", lead.CierreConHora)
	}
	if lead.DateDeadline != "2025-11-01 00:00:00" {
		t.Errorf("DateDeadline = %q", lead.DateDeadline)
	}
	if lead.Type != "opportunity" {
		t.Errorf("Type = %q", lead.Type)
	}
	if !strings.Contains(lead.Description, "UNSPSC: 72141000") {
		t.Errorf("Description missing UNSPSC line:\n%s", lead.Description)
	}
}

func TestTransformRowNameFallbacks(t *testing.T) {
	t.Run("numero only", func(t *testing.T) {
		lead, err := TransformRow(Row{ColNumero: "LP-7"}, 1, nil)
		if err != nil {
			t.Fatal(err)
		}
		if lead.Name != "LP-7" {
			t.Errorf("Name = %q", lead.Name)
		}
	})

	t.Run("legacy process name", func(t *testing.T) {
		lead, err := TransformRow(Row{ColLegacyNombreProceso: "Proceso Histórico"}, 1, nil)
		if err != nil {
			t.Fatal(err)
		}
		if lead.Name != "Proceso Histórico" {
			t.Errorf("Name = %q", lead.Name)
		}
	})

	t.Run("objeto truncated to 100 runes", func(t *testing.T) {
		long := strings.Repeat("á", 150)
		lead, err := TransformRow(Row{ColObjeto: long}, 1, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got := len([]rune(lead.Name)); got != 100 {
			t.Errorf("name rune length = %d, want 100", got)
		}
	})

	t.Run("nothing usable fails", func(t *testing.T) {
		_, err := TransformRow(Row{ColEntidad: "SOLO ENTIDAD"}, 4, nil)
		var transformErr *RowTransformError
		if !errors.As(err, &transformErr) {
			t.Fatalf("expected RowTransformError, got %v", err)
		}
		if transformErr.Row != 4 {
			t.Errorf("Row = %d, want 4", transformErr.Row)
		}
	})
}

func TestTransformRowDeadlinePrecedence(t *testing.T) {
	row := Row{
		ColNumero:           "LP-1",
		ColEnlace:           "https://licitaciones.info/detalle?random=abc",
		ColFechaPublicacion: "2025-10-01",
	}
	deadlines := map[string]string{
		"https://licitaciones.info/detalle?random=abc": "2025-12-15 14:00:00",
	}

	lead, err := TransformRow(row, 1, deadlines)
	if err != nil {
		t.Fatal(err)
	}
	if lead.CierreConHora != "2025-12-15 14:00:00" {
		t.Errorf("scraped deadline not preferred: %q", lead.CierreConHora)
	}
	if lead.DateDeadline != "2025-12-15 14:00:00" {
		t.Errorf("DateDeadline = %q", lead.DateDeadline)
	}

	lead, err = TransformRow(row, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if lead.CierreConHora != "2025-10-01 00:00:00" {
		t.Errorf("publication fallback = %q", lead.CierreConHora)
	}
}

func TestProbabilityOf(t *testing.T) {
	tests := []struct {
		estado string
		want   int
	}{
		{"Convocatoria", 25},
		{"Publicado en SECOP", 25},
		{"En evaluación", 50},
		{"Adjudicado", 100},
		{"Celebrado", 100},
		{"Desierto", 0},
		{"Cancelado", 0},
		{"Borrador", 10},
		{"", 10},
	}
	for _, tt := range tests {
		if got := probabilityOf(tt.estado); got != tt.want {
			t.Errorf("probabilityOf(%q) = %d, want %d", tt.estado, got, tt.want)
		}
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-11-20 09:30:00", "2025-11-20 09:30:00"},
		{"2025-11-20", "2025-11-20 00:00:00"},
		{"20/11/2025", "2025-11-20 00:00:00"},
		{"2025/11/20", "2025-11-20 00:00:00"},
		{"20-11-2025", "2025-11-20 00:00:00"},
		{"20/11/2025 14:30", "2025-11-20 14:30:00"},
		{"no es fecha", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTimestamp(tt.in); got != tt.want {
			t.Errorf("NormalizeTimestamp(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.secop.gov.co/x", "https://www.secop.gov.co/x"},
		{"http://legacy.gov.co", "http://legacy.gov.co"},
		{"www.secop.gov.co", "https://www.secop.gov.co"},
		{"http://enlace roto/con espacios", "http://enlace roto/con espacios"},
		{"no es una url", "https://no es una url"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanURL(tt.in); got != tt.want {
			t.Errorf("cleanURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanContactFields(t *testing.T) {
	if got := cleanEmail("Contacto: juan.perez@entidad.gov.co (oficial)"); got != "juan.perez@entidad.gov.co" {
		t.Errorf("cleanEmail = %q", got)
	}
	if got := cleanEmail("sin correo"); got != "" {
		t.Errorf("cleanEmail = %q, want empty", got)
	}
	if got := cleanPhone(""); got != "" {
		t.Errorf("cleanPhone empty input = %q", got)
	}
	if got := cleanPhone("sin teléfono"); got != "" {
		t.Errorf("cleanPhone non-numeric = %q", got)
	}
	if got := cleanCity("Valle del Cauca : Cali"); got != "Cali" {
		t.Errorf("cleanCity = %q", got)
	}
	if got := cleanCity("Cali"); got != "Cali" {
		t.Errorf("cleanCity plain = %q", got)
	}
	if got := cleanCity("Valle : Cali : Norte"); got != "Valle : Cali : Norte" {
		t.Errorf("cleanCity multi-separator = %q", got)
	}
}

func TestValidateStructure(t *testing.T) {
	t.Run("current layout", func(t *testing.T) {
		if err := ValidateStructure([]string{"entidad contratante", "objeto", "valor"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("legacy layout", func(t *testing.T) {
		if err := ValidateStructure([]string{ColLegacyNombreProceso, "Valor del Contrato"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unusable layout", func(t *testing.T) {
		err := ValidateStructure([]string{"columna a", "columna b"})
		var missing *MissingRequiredFieldError
		if !errors.As(err, &missing) {
			t.Fatalf("expected MissingRequiredFieldError, got %v", err)
		}
		if len(missing.Missing) != 2 {
			t.Errorf("Missing = %v", missing.Missing)
		}
	})
}

func TestComputeStats(t *testing.T) {
	table := &Table{
		Headers: []string{ColEntidad, ColCuantia, ColUbicacion, ColModalidad, ColEstado},
		Rows: []Row{
			{ColEntidad: "A", ColCuantia: "1000", ColUbicacion: "X : Cali", ColModalidad: "Licitación", ColEstado: "Convocatoria"},
			{ColEntidad: "B", ColCuantia: "3000", ColUbicacion: "X : Cali", ColModalidad: "Subasta", ColEstado: "Convocatoria"},
		},
	}

	stats := ComputeStats(table)
	if stats.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d", stats.TotalRecords)
	}
	if stats.TotalValue != 4000 {
		t.Errorf("TotalValue = %v", stats.TotalValue)
	}
	if stats.AverageValue != 2000 {
		t.Errorf("AverageValue = %v", stats.AverageValue)
	}
	if stats.CityCounts["Cali"] != 2 {
		t.Errorf("CityCounts = %v", stats.CityCounts)
	}
	if stats.ModalidadCounts["Licitación"] != 1 {
		t.Errorf("ModalidadCounts = %v", stats.ModalidadCounts)
	}
}
