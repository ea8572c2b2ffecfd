package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	raw := []byte("Entidad,Objeto,Cuantía,Número\n" +
		"ALCALDIA DE BOGOTA,Obra vial,1000000,LP-001\n" +
		"GOBERNACION DEL VALLE,Interventoría,2500000,LP-002\n")

	table, notes, err := ParseCSV(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notes) != 0 {
		t.Errorf("expected no notes, got %v", notes)
	}
	if len(table.Headers) != 4 {
		t.Fatalf("expected 4 headers, got %v", table.Headers)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if got := table.Rows[1][ColNumero]; got != "LP-002" {
		t.Errorf("row value = %q, want %q", got, "LP-002")
	}
}

func TestParseCSVSkipsEmptyRows(t *testing.T) {
	raw := []byte("Entidad,Objeto,Número\nA,obra,LP-1\n,,\n\nB,estudio,LP-2\n")
	table, _, err := ParseCSV(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Rows) != 2 {
		t.Errorf("expected 2 rows after skipping empties, got %d", len(table.Rows))
	}
}

func TestParseCSVTooFewColumns(t *testing.T) {
	_, _, err := ParseCSV([]byte("a,b\n1,2\n"))
	var malformed *MalformedFileError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedFileError, got %v", err)
	}
}

func TestParseFileCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "procesos.csv")
	content := "entidad,objeto,valor,numero proceso,Contratista(s)\n" +
		"ALCALDIA,Obra vial,\"1.000.000,50\",LP-001,\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := result.Table.Headers[2]; got != ColCuantia {
		t.Errorf("header not normalized: %q", got)
	}
	row := result.Table.Rows[0]
	if got := row[ColCuantia]; got != "1000000.5" {
		t.Errorf("amount = %q, want %q", got, "1000000.5")
	}
	if got := row[ColContratistas]; got != "Sin adjudicar" {
		t.Errorf("default not filled: %q", got)
	}
	if result.Report.TotalRows != 1 {
		t.Errorf("TotalRows = %d, want 1", result.Report.TotalRows)
	}
	if len(result.Report.Corrections) == 0 {
		t.Error("expected correction notes for alias renames")
	}
}

func TestParseFileUnsupportedExtension(t *testing.T) {
	if _, err := ParseFile("records.pdf"); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestParseFileWorkbook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "procesos.xlsx")

	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	rows := [][]interface{}{
		{"Entidad", "Objeto", "Cuantía", "Número"},
		{"ALCALDIA", "Obra vial", "1000000", "LP-001"},
		{"", "", "", ""},
		{"GOBERNACION", "Estudio", "500000", "LP-002"},
	}
	for i, cells := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := book.SetSheetRow(sheet, cell, &cells); err != nil {
			t.Fatal(err)
		}
	}
	if err := book.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	result, err := ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Table.Rows))
	}
	if got := result.Table.Rows[1][ColNumero]; got != "LP-002" {
		t.Errorf("row value = %q, want %q", got, "LP-002")
	}
}

func TestParseFileWorkbookCollapsed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collapsed.xlsx")

	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	lines := []string{
		"Entidad,Objeto,Cuantía,Número",
		"ALCALDIA,Obra vial,1000000,LP-001",
	}
	for i, line := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := book.SetCellValue(sheet, cell, line); err != nil {
			t.Fatal(err)
		}
	}
	if err := book.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	result, err := ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Table.Headers) != 4 {
		t.Errorf("collapsed structure not split: %v", result.Table.Headers)
	}
	if len(result.Table.Rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(result.Table.Rows))
	}
}
