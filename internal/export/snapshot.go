// Package export 前端静态快照（gzip JSON）导出
package export

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// SchemaVersion 快照schema版本，前端按此判断兼容性
	SchemaVersion = 1
	// SortedBy 条目排序方式标识
	SortedBy = "name_ja_asc"

	maxTextLen     = 2000
	maxAbstractLen = 1200
	maxListItems   = 12
)

// 导出的字符串字段（空值剔除）
var stringFields = []string{
	"name",
	"category_general",
	"category_detail",
	"org_name",
	"org_type",
	"prefecture",
	"region",
	"external_use",
	"fee_band",
	"source_url",
	"eqnet_url",
	"eqnet_equipment_id",
	"eqnet_match_status",
	"crawled_at",
	"papers_status",
	"papers_updated_at",
	"papers_error",
	"usage_manual_summary",
}

var listStringFields = []string{
	"search_aliases",
	"usage_themes",
	"usage_genres",
	"usage_manual_bullets",
}

var paperMetaFields = []string{
	"doi",
	"title",
	"url",
	"source",
	"year",
	"genre",
	"genre_ja",
}

var paperAbstractFields = []string{"abstract_ja", "abstract"}

// Snapshot 快照整体payload
type Snapshot struct {
	SchemaVersion int              `json:"schema_version"`
	SortedBy      string           `json:"sorted_by"`
	GeneratedAt   string           `json:"generated_at"`
	Count         int              `json:"count"`
	Items         []map[string]any `json:"items"`
}

func normalizeText(value any, maxLen int) string {
	if value == nil {
		return ""
	}
	text := strings.TrimSpace(fmt.Sprint(value))
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if maxLen > 0 && len(runes) > maxLen {
		return strings.TrimRight(string(runes[:maxLen]), " \t\n")
	}
	return text
}

func normalizeFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) {
			return 0, false
		}
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func normalizeStringList(value any) []string {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	var results []string
	seen := make(map[string]struct{})
	for _, entry := range list {
		text := normalizeText(entry, 160)
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		results = append(results, text)
		if len(results) >= maxListItems {
			break
		}
	}
	return results
}

func normalizePapers(value any) []map[string]any {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	var normalized []map[string]any
	for _, entry := range list {
		paper, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		compact := make(map[string]any)
		for _, field := range paperMetaFields {
			raw, exists := paper[field]
			if !exists || raw == nil {
				continue
			}
			if field == "year" {
				if year, ok := normalizeFloat(raw); ok && year > 0 {
					compact[field] = int(year)
				} else if text := normalizeText(raw, 8); text != "" {
					compact[field] = text
				}
				continue
			}
			if text := normalizeText(raw, 512); text != "" {
				compact[field] = text
			}
		}
		for _, field := range paperAbstractFields {
			if abstract := normalizeText(paper[field], maxAbstractLen); abstract != "" {
				compact[field] = abstract
			}
		}
		if len(compact) > 0 {
			normalized = append(normalized, compact)
		}
	}
	return normalized
}

// CompactDocument 把存量文档压缩成快照条目
// 空字段剔除、长文本截断，保证快照体积可控
func CompactDocument(data map[string]any, docID string) map[string]any {
	compact := make(map[string]any)

	equipmentID := normalizeText(data["equipment_id"], 160)
	if equipmentID == "" {
		equipmentID = docID
	}
	compact["equipment_id"] = equipmentID
	compact["doc_id"] = docID

	for _, field := range stringFields {
		if text := normalizeText(data[field], maxTextLen); text != "" {
			compact[field] = text
		}
	}

	address := normalizeText(data["address_raw"], maxTextLen)
	if address == "" {
		address = normalizeText(data["address"], maxTextLen)
	}
	if address != "" {
		compact["address_raw"] = address
	}

	if lat, ok := normalizeFloat(data["lat"]); ok {
		compact["lat"] = lat
	}
	if lng, ok := normalizeFloat(data["lng"]); ok {
		compact["lng"] = lng
	}

	for _, field := range listStringFields {
		if values := normalizeStringList(data[field]); len(values) > 0 {
			compact[field] = values
		}
	}

	if papers := normalizePapers(data["papers"]); len(papers) > 0 {
		compact["papers"] = papers
	}

	return compact
}

// SortItems 按(name, equipment_id)升序排序快照条目
func SortItems(items []map[string]any) {
	sort.SliceStable(items, func(i, j int) bool {
		ni := normalizeText(items[i]["name"], 512)
		nj := normalizeText(items[j]["name"], 512)
		if ni != nj {
			return ni < nj
		}
		return normalizeText(items[i]["equipment_id"], 256) < normalizeText(items[j]["equipment_id"], 256)
	})
}

// WriteSnapshot gzip压缩写出快照JSON（父目录自动创建）
func WriteSnapshot(path string, snapshot Snapshot) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}

	gz := gzip.NewWriter(file)
	encoder := json.NewEncoder(gz)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(snapshot); err != nil {
		gz.Close()
		file.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		file.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return file.Close()
}
