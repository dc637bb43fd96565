package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/research-patron/kikidoko/internal/config"
	"github.com/research-patron/kikidoko/internal/matcher"
	"github.com/research-patron/kikidoko/internal/models"
	"github.com/research-patron/kikidoko/internal/normalizer"
	"github.com/research-patron/kikidoko/internal/report"
	"github.com/research-patron/kikidoko/internal/runner"
	"github.com/research-patron/kikidoko/internal/store"
	"github.com/research-patron/kikidoko/internal/textutil"
	"github.com/research-patron/kikidoko/internal/upsert"
)

// OrgGapFill EQNET机构缺口补填任务
// 主登记簿按所属机构分组，本地未收录的机构整批导入其设备。
// 导入记录的equipment_id固定为"eqnet-<登记簿ID>"，
// 同ID冲突时追加机构名hash后缀
type OrgGapFill struct {
	cfg        *config.Config
	collection *store.Collection
	client     *matcher.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewOrgGapFill 创建缺口补填任务
func NewOrgGapFill(cfg *config.Config, collection *store.Collection, client *matcher.Client, logger *zap.Logger) *OrgGapFill {
	return &OrgGapFill{
		cfg:        cfg,
		collection: collection,
		client:     client,
		logger:     logger,
		now:        time.Now,
	}
}

type existingKeys struct {
	orgNorms     map[string]struct{}
	registryIDs  map[string]struct{}
	equipmentIDs map[string]struct{}
	dedupeKeys   map[string]struct{}
}

func newExistingKeys() *existingKeys {
	return &existingKeys{
		orgNorms:     make(map[string]struct{}),
		registryIDs:  make(map[string]struct{}),
		equipmentIDs: make(map[string]struct{}),
		dedupeKeys:   make(map[string]struct{}),
	}
}

func (k *existingKeys) observe(data map[string]any) {
	if orgName := textutil.CleanText(stringValue(data, "org_name")); orgName != "" {
		k.orgNorms[matcher.NormalizeText(orgName)] = struct{}{}
	}
	registryID := matcher.ParseRegistryID(data["eqnet_equipment_id"])
	if registryID == "" {
		registryID = matcher.ParseRegistryID(data["eqnet_url"])
	}
	if registryID != "" {
		k.registryIDs[registryID] = struct{}{}
	}
	if equipmentID := textutil.CleanText(stringValue(data, "equipment_id")); equipmentID != "" {
		k.equipmentIDs[equipmentID] = struct{}{}
	}
	if dedupeKey := textutil.CleanText(stringValue(data, "dedupe_key")); dedupeKey != "" {
		k.dedupeKeys[dedupeKey] = struct{}{}
	}
}

// orgAliasSuffix 机构名hash的8文字后缀（ID冲突回避用）
func orgAliasSuffix(orgName string) string {
	sum := sha1.Sum([]byte(matcher.NormalizeText(orgName)))
	return hex.EncodeToString(sum[:])[:8]
}

// Run 执行缺口补填
func (s *OrgGapFill) Run(ctx context.Context) (runner.Summary, error) {
	summary := runner.Summary{}

	rows, total, err := s.client.FetchRows(ctx)
	if err != nil {
		return summary, err
	}
	s.logger.Info("Registry rows grouped for gap fill",
		zap.Int("rows", len(rows)),
		zap.Int("total", total),
	)

	retry := runner.RetryPolicy{
		MaxRetries: s.cfg.Run.MaxRetries,
		BaseDelay:  s.cfg.Run.BaseDelay,
		MaxDelay:   s.cfg.Run.MaxDelay,
		Logger:     s.logger,
	}
	scanner := &runner.Scanner{
		Collection: s.collection,
		PageSize:   s.cfg.Run.PageSize,
		Retry:      retry,
		Logger:     s.logger,
	}

	existing := newExistingKeys()
	if err := scanner.Scan(ctx, func(doc store.Document) error {
		existing.observe(doc.Data)
		return nil
	}); err != nil {
		return summary, fmt.Errorf("gap fill scan: %w", err)
	}
	s.logger.Info("Existing keys collected",
		zap.Int("orgs", len(existing.orgNorms)),
		zap.Int("registry_ids", len(existing.registryIDs)),
	)

	orgToRows := make(map[string][]matcher.RegistryRow)
	for _, row := range rows {
		if matcher.ParseRegistryID(row.ID) == "" {
			continue
		}
		affiliation := textutil.CleanText(row.Affiliation)
		if affiliation == "" {
			continue
		}
		orgToRows[affiliation] = append(orgToRows[affiliation], row)
	}

	missingOrgs := make([]string, 0, len(orgToRows))
	for orgName := range orgToRows {
		if _, ok := existing.orgNorms[matcher.NormalizeText(orgName)]; ok {
			continue
		}
		missingOrgs = append(missingOrgs, orgName)
	}
	sort.Strings(missingOrgs)
	if s.cfg.GapFill.LimitOrgs > 0 && len(missingOrgs) > s.cfg.GapFill.LimitOrgs {
		missingOrgs = missingOrgs[:s.cfg.GapFill.LimitOrgs]
	}

	if err := s.writeMissingOrgs(missingOrgs, orgToRows); err != nil {
		return summary, err
	}
	s.logger.Info("Missing organizations resolved",
		zap.Int("missing_orgs", len(missingOrgs)),
		zap.String("report", s.cfg.GapFill.MissingOrgsOut),
	)
	if len(missingOrgs) == 0 {
		return summary, nil
	}

	writer := runner.NewBatchWriter(s.collection, s.cfg.Run.BatchSize, s.cfg.Run.BatchSleep, retry, s.logger)
	nowISO := s.now().UTC().Format(time.RFC3339)

	for _, orgName := range missingOrgs {
		for _, row := range orgToRows[orgName] {
			registryID := matcher.ParseRegistryID(row.ID)
			name := textutil.CleanText(row.Name)
			if name == "" {
				summary.Skipped++
				continue
			}
			summary.Processed++

			equipmentID := "eqnet-" + registryID
			if _, taken := existing.equipmentIDs[equipmentID]; taken {
				equipmentID = equipmentID + "-" + orgAliasSuffix(orgName)
			}
			if _, taken := existing.equipmentIDs[equipmentID]; taken {
				summary.Skipped++
				continue
			}

			externalUse := "不可"
			if row.ExternallyOpen() {
				externalUse = "可"
			}
			raw := models.RawEquipment{
				EquipmentID:     equipmentID,
				Name:            name,
				CategoryGeneral: "EQNET設備",
				OrgName:         orgName,
				Prefecture:      textutil.GuessPrefecture(orgName),
				AddressRaw:      orgName,
				ExternalUse:     externalUse,
				FeeNote:         textutil.CleanText(row.Budget),
				ConditionsNote:  textutil.CleanText(row.Spec),
				SourceURL:       matcher.RegistryURL(registryID),
			}
			record := normalizer.Normalize(raw)
			if record.DedupeKey != "" {
				if _, dup := existing.dedupeKeys[record.DedupeKey]; dup {
					summary.Skipped++
					continue
				}
			}

			data := record.Document()
			data["eqnet_equipment_id"] = registryID
			data["eqnet_url"] = matcher.RegistryURL(registryID)
			data["eqnet_match_status"] = "imported_org_gap"
			data["eqnet_match_confidence"] = matcher.ConfidenceHigh
			data["eqnet_match_name"] = name
			data["eqnet_match_affiliation"] = orgName
			data["eqnet_match_query"] = name
			data["eqnet_match_total"] = 1
			data["eqnet_match_updated_at"] = nowISO
			data["source_site"] = "eqnet"

			summary.Created++
			existing.equipmentIDs[equipmentID] = struct{}{}
			if record.DedupeKey != "" {
				existing.dedupeKeys[record.DedupeKey] = struct{}{}
			}
			existing.registryIDs[registryID] = struct{}{}

			if s.cfg.Run.DryRun {
				continue
			}
			if err := writer.Set(ctx, upsert.SafeDocID(equipmentID), data, true); err != nil {
				return summary, fmt.Errorf("gap fill write: %w", err)
			}
		}
	}

	if !s.cfg.Run.DryRun {
		if err := writer.Flush(ctx); err != nil {
			return summary, fmt.Errorf("gap fill flush: %w", err)
		}
	}
	return summary, nil
}

func (s *OrgGapFill) writeMissingOrgs(missingOrgs []string, orgToRows map[string][]matcher.RegistryRow) error {
	reportRows := make([]report.MissingOrgRow, 0, len(missingOrgs))
	for _, orgName := range missingOrgs {
		rows := orgToRows[orgName]
		sample := ""
		if len(rows) > 0 {
			sample = textutil.CleanText(rows[0].Name)
		}
		reportRows = append(reportRows, report.MissingOrgRow{
			OrgName:             orgName,
			EquipmentCount:      len(rows),
			SampleEquipmentName: sample,
		})
	}
	payload, err := report.GenerateMissingOrgs(reportRows)
	if err != nil {
		return fmt.Errorf("generate missing orgs report: %w", err)
	}
	return report.WriteFile(s.cfg.GapFill.MissingOrgsOut, payload)
}
