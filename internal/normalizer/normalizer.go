// Package normalizer RawEquipment → EquipmentRecord 的纯映射（无I/O）
package normalizer

import (
	"strings"
	"time"

	"github.com/research-patron/kikidoko/internal/models"
	"github.com/research-patron/kikidoko/internal/textutil"
)

// categorySeparators 分类拆分分隔符（按优先顺序取第一个命中）
var categorySeparators = []string{">", "＞", "/", "／"}

// SplitCategory 在第一个命中的分隔符处拆分为（大分类, 小分类）
func SplitCategory(category string) (string, string) {
	if category == "" {
		return "", ""
	}
	for _, sep := range categorySeparators {
		if !strings.Contains(category, sep) {
			continue
		}
		parts := make([]string, 0, 2)
		for _, item := range strings.Split(category, sep) {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) == 0 {
			continue
		}
		general := parts[0]
		detail := ""
		if len(parts) > 1 {
			detail = parts[1]
		}
		return general, detail
	}
	return strings.TrimSpace(category), ""
}

// ClassifyOrgType 从机构名关键词推断机构类型
func ClassifyOrgType(orgName string) string {
	if orgName == "" {
		return "不明"
	}
	if strings.Contains(orgName, "高専") || strings.Contains(orgName, "高等専門学校") {
		return "高等専門学校"
	}
	if strings.Contains(orgName, "国立") && strings.Contains(orgName, "大学") {
		return "国立大学"
	}
	if strings.Contains(orgName, "公立") && strings.Contains(orgName, "大学") {
		return "公立大学"
	}
	if strings.Contains(orgName, "私立") && strings.Contains(orgName, "大学") {
		return "私立大学"
	}
	if strings.Contains(orgName, "学校法人") {
		return "私立大学"
	}
	if strings.Contains(orgName, "大学") {
		return "国立大学"
	}
	if strings.Contains(orgName, "研究所") || strings.Contains(orgName, "研究機構") ||
		strings.Contains(orgName, "研究センター") {
		return "公的研究機関"
	}
	return "不明"
}

// NormalizeAt 指定时刻的归一化（测试可注入冻结时钟）
// 同一输入在同一时刻下输出完全一致
func NormalizeAt(raw models.RawEquipment, now time.Time) models.EquipmentRecord {
	categoryGeneral := raw.CategoryGeneral
	categoryDetail := raw.CategoryDetail
	if categoryGeneral == "" {
		categoryGeneral, categoryDetail = SplitCategory(raw.Category)
	}

	orgType := raw.OrgType
	if orgType == "" {
		orgType = ClassifyOrgType(raw.OrgName)
	}

	prefecture := raw.Prefecture
	if prefecture == "" {
		source := raw.AddressRaw
		if source == "" {
			source = raw.OrgName
		}
		prefecture = textutil.GuessPrefecture(source)
	}

	return models.EquipmentRecord{
		EquipmentID:     raw.EquipmentID,
		Name:            raw.Name,
		CategoryGeneral: categoryGeneral,
		CategoryDetail:  categoryDetail,
		OrgName:         raw.OrgName,
		OrgType:         orgType,
		Prefecture:      prefecture,
		Region:          textutil.ResolveRegion(prefecture),
		AddressRaw:      raw.AddressRaw,
		Lat:             raw.Lat,
		Lng:             raw.Lng,
		ExternalUse:     textutil.ClassifyExternalUse(raw.ExternalUse),
		FeeBand:         textutil.ClassifyFeeBand(raw.FeeNote),
		FeeNote:         raw.FeeNote,
		ConditionsNote:  raw.ConditionsNote,
		SourceURL:       raw.SourceURL,
		CrawledAt:       now.UTC().Format(time.RFC3339),
		SourceUpdatedAt: textutil.ParseDate(raw.SourceUpdatedAt),
		DedupeKey:       textutil.ComputeDedupeKey(raw.OrgName, raw.Name, categoryGeneral),
		SearchTokens: textutil.BuildSearchTokens(
			raw.Name, raw.OrgName, categoryGeneral, categoryDetail, prefecture,
		),
		SearchAliases: textutil.BuildSearchAliases(
			raw.Name, raw.OrgName, categoryGeneral, categoryDetail,
		),
	}
}

// Normalize 以当前UTC时刻归一化
func Normalize(raw models.RawEquipment) models.EquipmentRecord {
	return NormalizeAt(raw, time.Now())
}
