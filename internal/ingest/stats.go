package ingest

// FileStats summarizes a parsed file for the upload preview response.
type FileStats struct {
	TotalRecords     int            `json:"total_records"`
	TotalValue       float64        `json:"total_value"`
	AverageValue     float64        `json:"average_value"`
	RecordsWithEmail int            `json:"records_with_email"`
	RecordsWithPhone int            `json:"records_with_phone"`
	CityCounts       map[string]int `json:"city_counts"`
	ModalidadCounts  map[string]int `json:"modalidad_counts"`
	EstadoCounts     map[string]int `json:"estado_counts"`
}

// ComputeStats aggregates per-file figures over the corrected table.
func ComputeStats(t *Table) *FileStats {
	stats := &FileStats{
		TotalRecords:    len(t.Rows),
		CityCounts:      make(map[string]int),
		ModalidadCounts: make(map[string]int),
		EstadoCounts:    make(map[string]int),
	}

	for _, row := range t.Rows {
		if amount, ok := NormalizeNumber(valueOf(row, ColCuantia)); ok {
			stats.TotalValue += amount
		}
		if cleanEmail(valueOf(row, ColLegacyEmail)) != "" {
			stats.RecordsWithEmail++
		}
		if cleanPhone(valueOf(row, ColLegacyTelefono)) != "" {
			stats.RecordsWithPhone++
		}
		if city := cleanCity(valueOf(row, ColUbicacion)); city != "" {
			stats.CityCounts[city]++
		}
		if modalidad := CleanText(valueOf(row, ColModalidad)); modalidad != "" {
			stats.ModalidadCounts[modalidad]++
		}
		if estado := CleanText(valueOf(row, ColEstado)); estado != "" {
			stats.EstadoCounts[estado]++
		}
	}

	if stats.TotalRecords > 0 {
		stats.AverageValue = stats.TotalValue / float64(stats.TotalRecords)
	}
	return stats
}
