package importer

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/safar/kasir-pos/internal/apperr"
	"github.com/xuri/excelize/v2"
)

// Row is one data row of an import sheet, cells trimmed, values not yet
// interpreted. Number is the 1-based sheet row.
type Row struct {
	Number int    `json:"row"`
	Name   string `json:"name"`
	Weight string `json:"weight"`
	Price  string `json:"price"`
	Stock  string `json:"stock"`
}

var templateHeader = []string{"Nama Produk", "Ukuran/Berat", "Harga", "Stok"}

// CheckFile rejects uploads that are not spreadsheets or are too large.
func CheckFile(filename string, size, maxSize int64) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xls":
	default:
		return apperr.Validation("file must be an Excel workbook (.xlsx or .xls)")
	}
	if size > maxSize {
		return apperr.Validationf("file is larger than %d MB", maxSize/(1024*1024))
	}
	return nil
}

// ReadWorkbook reads the first sheet. The header row, blank rows and rows
// with fewer than four cells are skipped.
func ReadWorkbook(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Validationf("cannot read workbook: %v", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, apperr.Validation("workbook has no sheets")
	}

	cells, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	var rows []Row
	for i, record := range cells {
		if i == 0 || len(record) < 4 || blank(record) {
			continue
		}
		rows = append(rows, Row{
			Number: i + 1,
			Name:   strings.TrimSpace(record[0]),
			Weight: strings.TrimSpace(record[1]),
			Price:  strings.TrimSpace(record[2]),
			Stock:  strings.TrimSpace(record[3]),
		})
	}
	return rows, nil
}

func blank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Template builds the downloadable example workbook.
func Template() (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	examples := [][]any{
		{"Beras", "5kg", 75000, 50},
		{"Gula Pasir", "1kg", 16000, 30},
		{"Minyak Goreng", "2L", 35000, 20},
	}

	if err := f.SetSheetRow(sheet, "A1", &templateHeader); err != nil {
		return nil, err
	}
	for i, row := range examples {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A1", "D1", style); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheet, "A", "A", 30); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheet, "B", "D", 15); err != nil {
		return nil, err
	}

	return f, nil
}

func WriteTemplate(w io.Writer) error {
	f, err := Template()
	if err != nil {
		return fmt.Errorf("build template: %w", err)
	}
	defer f.Close()
	return f.Write(w)
}
