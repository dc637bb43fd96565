// Package sources scraper适配器边界
//
// 各站点适配器只是"产出原始记录"的函数，在此以Fetcher注册。
// 适配器本体（HTML/JSON解析）在本仓库范围之外，这里只定义契约、
// 来源登记簿的读取和条目默认值补全
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/research-patron/kikidoko/internal/models"
	"github.com/research-patron/kikidoko/internal/textutil"
)

// Fetcher 单一来源的原始记录取得函数
// limit是软上限（0=不限），除网络I/O外对程序状态无副作用
type Fetcher func(ctx context.Context, timeout time.Duration, limit int) ([]models.RawEquipment, error)

var registry = make(map[string]Fetcher)

// Register 注册来源适配器（各适配器包的init调用）
func Register(key string, fetcher Fetcher) {
	registry[key] = fetcher
}

// Available 已注册的来源key（排序后）
func Available() []string {
	keys := make([]string, 0, len(registry))
	for key := range registry {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Fetch 按key调用来源适配器
func Fetch(ctx context.Context, key string, timeout time.Duration, limit int) ([]models.RawEquipment, error) {
	fetcher, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", key)
	}
	return fetcher(ctx, timeout, limit)
}

// RegistryEntry 来源登记簿的一个条目
type RegistryEntry struct {
	Key           string `json:"key"`
	OrgName       string `json:"org_name"`
	Prefecture    string `json:"prefecture"`
	URL           string `json:"url"`
	ParserType    string `json:"parser_type"`
	SourceHandler string `json:"source_handler"`
	CategoryHint  string `json:"category_hint"`
	ExternalUse   string `json:"external_use"`
	Enabled       bool   `json:"enabled"`
}

type registryFile struct {
	Version string          `json:"version"`
	Entries []registryEntry `json:"entries"`
}

// registryEntry enabled缺省为true，需要区分"未指定"
type registryEntry struct {
	Key           string `json:"key"`
	OrgName       string `json:"org_name"`
	Prefecture    string `json:"prefecture"`
	URL           string `json:"url"`
	ParserType    string `json:"parser_type"`
	SourceHandler string `json:"source_handler"`
	CategoryHint  string `json:"category_hint"`
	ExternalUse   string `json:"external_use"`
	Enabled       *bool  `json:"enabled"`
}

// LoadRegistry 读取来源登记簿JSON，返回(版本, 条目列表)
// key或org_name为空的条目剔除
func LoadRegistry(path string) (string, []RegistryEntry, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read source registry: %w", err)
	}
	var file registryFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return "", nil, fmt.Errorf("parse source registry: %w", err)
	}

	entries := make([]RegistryEntry, 0, len(file.Entries))
	for _, item := range file.Entries {
		key := textutil.CleanText(item.Key)
		orgName := textutil.CleanText(item.OrgName)
		if key == "" || orgName == "" {
			continue
		}
		parserType := textutil.CleanText(item.ParserType)
		if parserType == "" {
			parserType = "source_handler"
		}
		enabled := true
		if item.Enabled != nil {
			enabled = *item.Enabled
		}
		entries = append(entries, RegistryEntry{
			Key:           key,
			OrgName:       orgName,
			Prefecture:    textutil.CleanText(item.Prefecture),
			URL:           textutil.CleanText(item.URL),
			ParserType:    parserType,
			SourceHandler: textutil.CleanText(item.SourceHandler),
			CategoryHint:  textutil.CleanText(item.CategoryHint),
			ExternalUse:   textutil.CleanText(item.ExternalUse),
			Enabled:       enabled,
		})
	}
	return textutil.CleanText(file.Version), entries, nil
}

// Hydrate 用登记簿条目补全原始记录的缺失字段
func Hydrate(raw models.RawEquipment, entry RegistryEntry) models.RawEquipment {
	if raw.OrgName == "" {
		raw.OrgName = entry.OrgName
	}
	if raw.Prefecture == "" {
		raw.Prefecture = entry.Prefecture
	}
	if raw.AddressRaw == "" {
		raw.AddressRaw = entry.OrgName
	}
	if raw.Category == "" && raw.CategoryGeneral == "" {
		raw.CategoryGeneral = entry.CategoryHint
	}
	if raw.ExternalUse == "" {
		raw.ExternalUse = entry.ExternalUse
	}
	if raw.SourceURL == "" {
		raw.SourceURL = entry.URL
	}
	return raw
}

// FetchForEntry 按条目的parser_type取得原始记录，返回(记录, 状态)
// 取得失败不报错而是返回状态串：一个来源的失败不能中止整个同步
func FetchForEntry(ctx context.Context, entry RegistryEntry, timeout time.Duration, limit int) ([]models.RawEquipment, string) {
	switch entry.ParserType {
	case "query_only":
		return nil, "query_only"
	case "source_handler":
		sourceKey := entry.SourceHandler
		if sourceKey == "" {
			sourceKey = entry.Key
		}
		if _, ok := registry[sourceKey]; !ok {
			return nil, fmt.Sprintf("unknown_source_handler:%s", sourceKey)
		}
		rows, err := Fetch(ctx, sourceKey, timeout, limit)
		if err != nil {
			return nil, fmt.Sprintf("error:%v", err)
		}
		return rows, "ok"
	default:
		return nil, fmt.Sprintf("unsupported_parser:%s", entry.ParserType)
	}
}
