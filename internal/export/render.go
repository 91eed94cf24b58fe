package export

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/basket-export/internal/contract"
)

// Format is the artifact encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" and "xlsx"; empty means csv.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

const sheetName = "Export"

// Render encodes header and records in format.
func Render(format Format, header []string, records [][]string) ([]byte, error) {
	switch format {
	case FormatCSV, "":
		return renderCSV(header, records)
	case FormatXLSX:
		return renderXLSX(header, records)
	}
	return nil, fmt.Errorf("Render: unknown format %q", format)
}

func renderCSV(header []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("renderCSV: header: %w", err)
	}
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("renderCSV: records: %w", err)
	}
	return buf.Bytes(), nil
}

func renderXLSX(header []string, records [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("renderXLSX: sheet: %w", err)
	}

	writeRow := func(row int, values []string) error {
		for i, v := range values {
			cell, err := excelize.CoordinatesToCellName(i+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellStr(sheetName, cell, v); err != nil {
				return err
			}
		}
		return nil
	}

	if err := writeRow(1, header); err != nil {
		return nil, fmt.Errorf("renderXLSX: header: %w", err)
	}
	for i, rec := range records {
		if err := writeRow(i+2, rec); err != nil {
			return nil, fmt.Errorf("renderXLSX: row %d: %w", i, err)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38) // uuid
	_ = f.SetColWidth(sheetName, "D", "G", 20)
	_ = f.SetColWidth(sheetName, "K", "K", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("renderXLSX: write: %w", err)
	}
	return buf.Bytes(), nil
}

// Checksum is the hex SHA-256 of the table with the Export_Timestamp column
// left out and records ordered by Transaction_ID, so the same data exported
// twice yields the same checksum.
func Checksum(version string, header []string, records [][]string) string {
	skip := contract.Index(version, contract.ColExportTimestamp)
	idCol := contract.Index(version, contract.ColTransactionID)
	if idCol < 0 {
		idCol = 0
	}

	sorted := make([][]string, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i][idCol] < sorted[j][idCol]
	})

	h := sha256.New()
	write := func(fields []string) {
		for i, f := range fields {
			if i == skip {
				continue
			}
			h.Write([]byte(f))
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{'\n'})
	}
	write(header)
	for _, rec := range sorted {
		write(rec)
	}
	return hex.EncodeToString(h.Sum(nil))
}
