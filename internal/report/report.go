// Package report 运维报表（Excel）生成
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// SyncPreviewHeader 来源同步预览表头
var SyncPreviewHeader = []string{
	"registry_key",
	"org_name",
	"prefecture",
	"parser_type",
	"source_handler",
	"url",
	"fetched_raw_count",
	"normalized_count",
	"fetch_status",
	"action_hint",
	"diagnosis",
	"would_create",
	"would_update",
}

// MissingOrgsHeader 缺失机构报表表头
var MissingOrgsHeader = []string{
	"org_name",
	"equipment_count",
	"sample_equipment_name",
}

// PreviewRow 来源同步预览的一行
type PreviewRow struct {
	RegistryKey     string
	OrgName         string
	Prefecture      string
	ParserType      string
	SourceHandler   string
	URL             string
	FetchedRawCount int
	NormalizedCount int
	FetchStatus     string
	ActionHint      string
	Diagnosis       string
	WouldCreate     int
	WouldUpdate     int
}

// MissingOrgRow 缺失机构报表的一行
type MissingOrgRow struct {
	OrgName             string
	EquipmentCount      int
	SampleEquipmentName string
}

// GenerateSyncPreview 生成来源同步预览 Excel 文件
func GenerateSyncPreview(rows []PreviewRow) ([]byte, error) {
	cells := make([][]any, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, []any{
			row.RegistryKey,
			row.OrgName,
			row.Prefecture,
			row.ParserType,
			row.SourceHandler,
			row.URL,
			row.FetchedRawCount,
			row.NormalizedCount,
			row.FetchStatus,
			row.ActionHint,
			row.Diagnosis,
			row.WouldCreate,
			row.WouldUpdate,
		})
	}
	return generateReportExcel("Sync Preview", SyncPreviewHeader, cells)
}

// GenerateMissingOrgs 生成缺失机构报表 Excel 文件
func GenerateMissingOrgs(rows []MissingOrgRow) ([]byte, error) {
	cells := make([][]any, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, []any{
			row.OrgName,
			row.EquipmentCount,
			row.SampleEquipmentName,
		})
	}
	return generateReportExcel("Missing Orgs", MissingOrgsHeader, cells)
}

// WriteFile 报表字节写入文件（父目录自动创建）
func WriteFile(path string, payload []byte) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// generateReportExcel 生成报表 Excel 文件的通用函数
// headers: 表头列表
// rows: 数据行，各行长度与表头一致
func generateReportExcel(sheetName string, headers []string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close() // Close on error
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for rowIdx, row := range rows {
		for colIdx, value := range row {
			if value == nil || value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}
