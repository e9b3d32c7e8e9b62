package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"roadapp/api/internal/model"
)

const importSheetName = "Devices"

// DeviceImportService handles bulk device registration from xlsx files.
type DeviceImportService struct {
	db            *gorm.DB
	deviceService *DeviceService
}

func NewDeviceImportService(db *gorm.DB, deviceService *DeviceService) *DeviceImportService {
	return &DeviceImportService{db: db, deviceService: deviceService}
}

// GenerateTemplate builds the import template workbook: a header row,
// one example row, and sensible column widths.
func (s *DeviceImportService) GenerateTemplate() (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", importSheetName)
	columns := model.DeviceImportTemplateColumns()

	for i, col := range columns {
		cell := fmt.Sprintf("%c1", 'A'+i)
		header := col.Name
		if col.Required {
			header += "*"
		}
		f.SetCellValue(importSheetName, cell, header)
	}
	for i, col := range columns {
		cell := fmt.Sprintf("%c2", 'A'+i)
		f.SetCellValue(importSheetName, cell, col.Example)
	}
	for i := range columns {
		col := string(rune('A' + i))
		f.SetColWidth(importSheetName, col, col, 20)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}

// Import parses an uploaded workbook and registers every valid row.
// Row-level problems are collected per row; one bad row never aborts
// the import.
func (s *DeviceImportService) Import(ctx context.Context, reader io.Reader) (*model.DeviceImportResult, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("cannot read workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	sheetName := sheets[0]
	for _, name := range sheets {
		if name == importSheetName {
			sheetName = name
			break
		}
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("cannot read sheet %s: %w", sheetName, err)
	}
	if len(rows) < 2 {
		return &model.DeviceImportResult{}, nil
	}

	columns := model.DeviceImportTemplateColumns()
	result := &model.DeviceImportResult{}

	for rowIdx, row := range rows[1:] {
		rowNum := rowIdx + 2
		if rowEmpty(row) {
			continue
		}
		result.Total++

		fields := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(row) {
				fields[col.Field] = strings.TrimSpace(row[i])
			}
		}

		rejected := false
		for _, col := range columns {
			if col.Required && fields[col.Field] == "" {
				result.Errors = append(result.Errors, model.DeviceImportRowError{
					Row: rowNum, Field: col.Field, Reason: "required field is empty",
				})
				rejected = true
			}
		}
		if rejected {
			result.Skipped++
			continue
		}

		var count int64
		if err := s.db.WithContext(ctx).Model(&model.Device{}).
			Where("device_id = ?", fields["device_id"]).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			result.Errors = append(result.Errors, model.DeviceImportRowError{
				Row: rowNum, Field: "device_id", Reason: "device already registered",
			})
			result.Skipped++
			continue
		}

		req := &model.CreateDeviceRequest{
			DeviceID:    fields["device_id"],
			Name:        fields["name"],
			OrgID:       fields["org_id"],
			Brand:       fields["brand"],
			Model:       fields["model"],
			PlateNumber: fields["plate_number"],
		}
		if _, err := s.deviceService.Create(ctx, req); err != nil {
			result.Errors = append(result.Errors, model.DeviceImportRowError{
				Row: rowNum, Field: "device_id", Reason: err.Error(),
			})
			result.Skipped++
			continue
		}
		result.Imported++
	}
	return result, nil
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
