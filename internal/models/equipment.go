// Package models 设备数据模型
package models

// RawEquipment 来源站点形状的原始设备记录（scraper产出，归一化后即丢弃）
type RawEquipment struct {
	EquipmentID     string
	Name            string
	Category        string // 未拆分的分类（"装置/SEM"等）
	CategoryGeneral string
	CategoryDetail  string
	OrgName         string
	OrgType         string
	Prefecture      string
	AddressRaw      string
	Lat             float64
	Lng             float64
	ExternalUse     string
	FeeNote         string
	ConditionsNote  string
	SourceURL       string
	SourceUpdatedAt string
}

// EquipmentRecord 规范化后的设备记录（文档库持久化单位）
type EquipmentRecord struct {
	EquipmentID     string
	Name            string
	CategoryGeneral string
	CategoryDetail  string
	OrgName         string
	OrgType         string // 国立大学/公立大学/私立大学/高等専門学校/公的研究機関/不明
	Prefecture      string
	Region          string // 都道府県派生的地方区分
	AddressRaw      string
	Lat             float64
	Lng             float64
	ExternalUse     string // 可/不可/要相談/不明
	FeeBand         string // 無料/有料/不明
	FeeNote         string
	ConditionsNote  string
	SourceURL       string
	CrawledAt       string
	SourceUpdatedAt string
	DedupeKey       string
	SearchTokens    []string
	SearchAliases   []string
}

// Document 转为稀疏文档map（空字段省略，与存储形状一致）
func (r *EquipmentRecord) Document() map[string]any {
	data := make(map[string]any, 20)
	putString := func(key, value string) {
		if value != "" {
			data[key] = value
		}
	}
	putString("equipment_id", r.EquipmentID)
	putString("name", r.Name)
	putString("category_general", r.CategoryGeneral)
	putString("category_detail", r.CategoryDetail)
	putString("org_name", r.OrgName)
	putString("org_type", r.OrgType)
	putString("prefecture", r.Prefecture)
	putString("region", r.Region)
	putString("address_raw", r.AddressRaw)
	putString("external_use", r.ExternalUse)
	putString("fee_band", r.FeeBand)
	putString("fee_note", r.FeeNote)
	putString("conditions_note", r.ConditionsNote)
	putString("source_url", r.SourceURL)
	putString("crawled_at", r.CrawledAt)
	putString("source_updated_at", r.SourceUpdatedAt)
	putString("dedupe_key", r.DedupeKey)
	if r.Lat != 0 || r.Lng != 0 {
		data["lat"] = r.Lat
		data["lng"] = r.Lng
	}
	if len(r.SearchTokens) > 0 {
		data["search_tokens"] = r.SearchTokens
	}
	if len(r.SearchAliases) > 0 {
		data["search_aliases"] = r.SearchAliases
	}
	return data
}
