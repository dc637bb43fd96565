package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/research-patron/kikidoko/internal/config"
	"github.com/research-patron/kikidoko/internal/runner"
	"github.com/research-patron/kikidoko/internal/store"
	"github.com/research-patron/kikidoko/internal/textutil"
)

// SearchBackfill 检索字段补填任务
// search_tokens/search_aliases/region的缺失补填，
// 顺便聚合都道府県/分类统计并写入stats collection
type SearchBackfill struct {
	cfg        *config.Config
	collection *store.Collection
	stats      *store.Collection
	logger     *zap.Logger
	now        func() time.Time
}

// NewSearchBackfill 创建补填任务
func NewSearchBackfill(cfg *config.Config, collection, stats *store.Collection, logger *zap.Logger) *SearchBackfill {
	return &SearchBackfill{
		cfg:        cfg,
		collection: collection,
		stats:      stats,
		logger:     logger,
		now:        time.Now,
	}
}

// isMissingValue 字段是否视为缺失（nil、空串、空列表、期待列表但非列表）
func isMissingValue(value any, expectList bool) bool {
	if value == nil {
		return true
	}
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text) == ""
	}
	list, isList := value.([]any)
	if expectList && !isList {
		return true
	}
	if isList {
		return len(list) == 0
	}
	return false
}

func stringList(value any) []string {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	result := make([]string, 0, len(list))
	for _, item := range list {
		if text, ok := item.(string); ok {
			result = append(result, text)
		}
	}
	return result
}

func equalStringList(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// BuildSearchUpdates 计算一条文档需要补填的检索字段
// tokens/aliases缺失（或force）时重算；aliases与现值不一致时也更新
// （别名taxonomy变更后的追随）。region仅缺失时补填
func BuildSearchUpdates(data map[string]any, forceTokens, forceAliases, includeRegion bool) map[string]any {
	updates := make(map[string]any)

	name := stringValue(data, "name")
	orgName := stringValue(data, "org_name")
	categoryGeneral := stringValue(data, "category_general")
	categoryDetail := stringValue(data, "category_detail")
	prefecture := stringValue(data, "prefecture")
	if prefecture == "" {
		source := stringValue(data, "address_raw")
		if source == "" {
			source = orgName
		}
		prefecture = textutil.GuessPrefecture(source)
	}

	if forceTokens || isMissingValue(data["search_tokens"], true) {
		tokens := textutil.BuildSearchTokens(name, orgName, categoryGeneral, categoryDetail, prefecture)
		if len(tokens) > 0 {
			updates["search_tokens"] = tokens
		}
	}

	aliases := textutil.BuildSearchAliases(name, orgName, categoryGeneral, categoryDetail)
	current := stringList(data["search_aliases"])
	if forceAliases || isMissingValue(data["search_aliases"], true) || !equalStringList(current, aliases) {
		updates["search_aliases"] = aliases
	}

	if includeRegion && isMissingValue(data["region"], false) {
		if region := textutil.ResolveRegion(prefecture); region != "" {
			updates["region"] = region
		}
	}

	return updates
}

type statsAggregate struct {
	prefectureCounts map[string]int
	prefectureOrgs   map[string]map[string]int
	allCategories    map[string]struct{}
	regionCategories map[string]map[string]struct{}
}

func newStatsAggregate() *statsAggregate {
	return &statsAggregate{
		prefectureCounts: make(map[string]int),
		prefectureOrgs:   make(map[string]map[string]int),
		allCategories:    make(map[string]struct{}),
		regionCategories: make(map[string]map[string]struct{}),
	}
}

func (a *statsAggregate) observe(data map[string]any) {
	orgName := strings.TrimSpace(stringValue(data, "org_name"))
	prefecture := strings.TrimSpace(stringValue(data, "prefecture"))
	if prefecture == "" {
		source := stringValue(data, "address_raw")
		if source == "" {
			source = orgName
		}
		prefecture = textutil.GuessPrefecture(source)
	}
	region := strings.TrimSpace(stringValue(data, "region"))
	if region == "" && prefecture != "" {
		region = textutil.ResolveRegion(prefecture)
	}
	categoryGeneral := strings.TrimSpace(stringValue(data, "category_general"))

	if prefecture != "" {
		a.prefectureCounts[prefecture]++
		if orgName != "" {
			orgCounts, ok := a.prefectureOrgs[prefecture]
			if !ok {
				orgCounts = make(map[string]int)
				a.prefectureOrgs[prefecture] = orgCounts
			}
			orgCounts[orgName]++
		}
	}
	if categoryGeneral != "" {
		a.allCategories[categoryGeneral] = struct{}{}
		if region != "" {
			categories, ok := a.regionCategories[region]
			if !ok {
				categories = make(map[string]struct{})
				a.regionCategories[region] = categories
			}
			categories[categoryGeneral] = struct{}{}
		}
	}
}

// Run 执行补填
func (s *SearchBackfill) Run(ctx context.Context) (runner.Summary, error) {
	summary := runner.Summary{}

	retry := runner.RetryPolicy{
		MaxRetries: s.cfg.Run.MaxRetries,
		BaseDelay:  s.cfg.Run.BaseDelay,
		MaxDelay:   s.cfg.Run.MaxDelay,
		Logger:     s.logger,
	}
	writer := runner.NewBatchWriter(s.collection, s.cfg.Run.BatchSize, s.cfg.Run.BatchSleep, retry, s.logger)
	scanner := &runner.Scanner{
		Collection: s.collection,
		PageSize:   s.cfg.Run.PageSize,
		Retry:      retry,
		Logger:     s.logger,
	}

	collectStats := s.cfg.Backfill.WriteSummary ||
		s.cfg.Backfill.WriteUIFilters ||
		s.cfg.Backfill.WritePrefectureOrgs ||
		s.cfg.Backfill.WriteDataVersion
	aggregate := newStatsAggregate()

	err := scanner.Scan(ctx, func(doc store.Document) error {
		summary.Processed++

		updates := BuildSearchUpdates(
			doc.Data,
			s.cfg.Backfill.ForceTokens,
			s.cfg.Backfill.ForceAliases,
			!s.cfg.Backfill.SkipRegion,
		)
		if collectStats {
			aggregate.observe(doc.Data)
		}

		if len(updates) > 0 {
			summary.Updated++
			if !s.cfg.Run.DryRun {
				if err := writer.Set(ctx, doc.ID, updates, true); err != nil {
					return fmt.Errorf("search backfill write: %w", err)
				}
			}
		} else {
			summary.Skipped++
		}

		if s.cfg.Run.LogEvery > 0 && summary.Processed%s.cfg.Run.LogEvery == 0 {
			summary.Log(s.logger, "Search backfill progress")
		}
		if s.cfg.Run.Limit > 0 && summary.Processed >= s.cfg.Run.Limit {
			return runner.ErrStop
		}
		return nil
	})
	if err != nil {
		return summary, err
	}

	if !s.cfg.Run.DryRun {
		if err := writer.Flush(ctx); err != nil {
			return summary, fmt.Errorf("search backfill flush: %w", err)
		}
	}

	if collectStats {
		if err := s.writeStats(ctx, aggregate, summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (s *SearchBackfill) writeStats(ctx context.Context, aggregate *statsAggregate, summary runner.Summary) error {
	updatedAt := s.now().UTC().Format(time.RFC3339)

	if s.cfg.Backfill.WriteSummary {
		type prefectureEntry struct {
			prefecture string
			count      int
		}
		entries := make([]prefectureEntry, 0, len(aggregate.prefectureCounts))
		for prefecture, count := range aggregate.prefectureCounts {
			entries = append(entries, prefectureEntry{prefecture: prefecture, count: count})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].count != entries[j].count {
				return entries[i].count > entries[j].count
			}
			return entries[i].prefecture < entries[j].prefecture
		})
		if len(entries) > 6 {
			entries = entries[:6]
		}
		top := make([]map[string]any, 0, len(entries))
		facilityCounts := make(map[string]any, len(aggregate.prefectureOrgs))
		for prefecture, orgs := range aggregate.prefectureOrgs {
			facilityCounts[prefecture] = len(orgs)
		}
		for _, entry := range entries {
			facilities := 0
			if orgs, ok := aggregate.prefectureOrgs[entry.prefecture]; ok {
				facilities = len(orgs)
			}
			top = append(top, map[string]any{
				"prefecture":     entry.prefecture,
				"equipmentCount": entry.count,
				"facilityCount":  facilities,
			})
		}
		counts := make(map[string]any, len(aggregate.prefectureCounts))
		for prefecture, count := range aggregate.prefectureCounts {
			counts[prefecture] = count
		}
		payload := map[string]any{
			"top_prefectures":   top,
			"prefecture_counts": counts,
			"facility_counts":   facilityCounts,
			"updated_at":        updatedAt,
		}
		if err := s.writeStatsDoc(ctx, "prefecture_summary", payload, false); err != nil {
			return err
		}
	}

	if s.cfg.Backfill.WriteUIFilters {
		regionCategories := make(map[string]any, len(aggregate.regionCategories))
		for region, categories := range aggregate.regionCategories {
			names := make([]string, 0, len(categories))
			for name := range categories {
				names = append(names, name)
			}
			sort.Strings(names)
			regionCategories[region] = names
		}
		allCategories := make([]string, 0, len(aggregate.allCategories))
		for name := range aggregate.allCategories {
			allCategories = append(allCategories, name)
		}
		sort.Strings(allCategories)
		payload := map[string]any{
			"all_categories":    allCategories,
			"region_categories": regionCategories,
			"updated_at":        updatedAt,
		}
		if err := s.writeStatsDoc(ctx, "ui_filters", payload, false); err != nil {
			return err
		}
	}

	if s.cfg.Backfill.WritePrefectureOrgs {
		prefectures := make([]string, 0, len(aggregate.prefectureOrgs))
		for prefecture := range aggregate.prefectureOrgs {
			prefectures = append(prefectures, prefecture)
		}
		sort.Strings(prefectures)
		parent := map[string]any{
			"prefectures": prefectures,
			"updated_at":  updatedAt,
		}
		if err := s.writeStatsDoc(ctx, "prefecture_orgs", parent, true); err != nil {
			return err
		}
		for _, prefecture := range prefectures {
			orgCounts := aggregate.prefectureOrgs[prefecture]
			type orgEntry struct {
				name  string
				count int
			}
			entries := make([]orgEntry, 0, len(orgCounts))
			total := 0
			for name, count := range orgCounts {
				entries = append(entries, orgEntry{name: name, count: count})
				total += count
			}
			sort.Slice(entries, func(i, j int) bool {
				if entries[i].count != entries[j].count {
					return entries[i].count > entries[j].count
				}
				return entries[i].name < entries[j].name
			})
			orgList := make([]map[string]any, 0, len(entries))
			for _, entry := range entries {
				orgList = append(orgList, map[string]any{
					"org_name": entry.name,
					"count":    entry.count,
				})
			}
			payload := map[string]any{
				"prefecture":       prefecture,
				"total_equipment":  total,
				"total_facilities": len(orgCounts),
				"org_list":         orgList,
				"updated_at":       updatedAt,
			}
			docID := "prefecture_orgs__" + prefecture
			if err := s.writeStatsDoc(ctx, docID, payload, false); err != nil {
				return err
			}
		}
	}

	if s.cfg.Backfill.WriteDataVersion {
		equipmentTotal := 0
		for _, count := range aggregate.prefectureCounts {
			equipmentTotal += count
		}
		payload := map[string]any{
			"version":         fmt.Sprintf("%s:%d:%d", updatedAt, equipmentTotal, summary.Updated),
			"updated_at":      updatedAt,
			"equipment_total": equipmentTotal,
			"partial_run":     s.cfg.Run.Limit > 0,
		}
		if err := s.writeStatsDoc(ctx, "data_version", payload, false); err != nil {
			return err
		}
	}

	return nil
}

func (s *SearchBackfill) writeStatsDoc(ctx context.Context, docID string, payload map[string]any, merge bool) error {
	if s.cfg.Run.DryRun {
		s.logger.Info("[dry-run] stats doc", zap.String("doc_id", docID))
		return nil
	}
	if err := s.stats.Set(ctx, docID, payload, merge); err != nil {
		return fmt.Errorf("write stats %s: %w", docID, err)
	}
	return nil
}
