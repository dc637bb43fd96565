// Package matcher 本地设备记录与EQNET主登记簿的模糊对账
//
// 主登记簿每次运行拉取一次并预计算归一化名称与token集合（显式缓存，
// 避免 local × master 的全量重打分），之后对每条本地记录做
// 候选池收集 → 打分 → 判定三步。打分绝不报错：缺失字段向0退化。
package matcher

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/unicode/norm"
)

// 置信档位
const (
	ConfidenceNone   = "none"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

var (
	matchTokenPattern    = regexp.MustCompile(`[A-Za-z0-9]+|[ぁ-んァ-ン一-龥々ー]+`)
	matchSpacePattern    = regexp.MustCompile(`\s+`)
	matchKeepCharPattern = regexp.MustCompile(`[^0-9a-zぁ-んァ-ン一-龥々ー]`)
)

// Thresholds 判定阈值（历史运行调出的经验值，按配置可调）
type Thresholds struct {
	HighScore     int // name_exact且org_match时的高置信下限
	HighLoneScore int // 仅凭分数的高置信下限（需满足HighMargin）
	HighMargin    int
	MediumScore   int
	MediumMargin  int
}

// DefaultThresholds 历史默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighScore:     88,
		HighLoneScore: 92,
		HighMargin:    6,
		MediumScore:   82,
		MediumMargin:  10,
	}
}

// Candidate 主登记簿候选行（归一化字段预计算后缓存）
type Candidate struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	Affiliation           string   `json:"affiliation"`
	NormalizedName        string   `json:"normalized_name"`
	NormalizedAffiliation string   `json:"normalized_affiliation"`
	Tokens                []string `json:"tokens"`
}

// NewCandidate 构造候选并预计算归一化字段
func NewCandidate(id, name, affiliation string) Candidate {
	name = strings.TrimSpace(name)
	affiliation = strings.TrimSpace(affiliation)
	return Candidate{
		ID:                    id,
		Name:                  name,
		Affiliation:           affiliation,
		NormalizedName:        NormalizeText(name),
		NormalizedAffiliation: NormalizeText(affiliation),
		Tokens:                tokenSlice(name),
	}
}

// Scored 打分结果（0〜100），审计时Top-N持久化
type Scored struct {
	ID          string
	Name        string
	Affiliation string
	URL         string
	Score       int
	NameExact   bool
	OrgMatch    bool
}

// NormalizeText 比较用归一化：NFKC小写化后去空白，只保留字母数字和日文文字
func NormalizeText(value string) string {
	if value == "" {
		return ""
	}
	text := strings.ToLower(norm.NFKC.String(value))
	text = matchSpacePattern.ReplaceAllString(text, "")
	return matchKeepCharPattern.ReplaceAllString(text, "")
}

// TokenSet 2文字以上的token集合
func TokenSet(value string) map[string]struct{} {
	result := make(map[string]struct{})
	for _, token := range tokenSlice(value) {
		result[token] = struct{}{}
	}
	return result
}

func tokenSlice(value string) []string {
	if value == "" {
		return nil
	}
	normalized := strings.ToLower(norm.NFKC.String(value))
	tokens := make([]string, 0, 8)
	seen := make(map[string]struct{})
	for _, token := range matchTokenPattern.FindAllString(normalized, -1) {
		if len([]rune(token)) < 2 {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens
}

// Similarity 序列相似度（difflib ratio，按rune比较）
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return difflib.NewMatcher(runeSlice(a), runeSlice(b)).Ratio()
}

func runeSlice(value string) []string {
	runes := []rune(value)
	result := make([]string, len(runes))
	for i, r := range runes {
		result[i] = string(r)
	}
	return result
}

// ScoreCandidate 单候选打分
// name_score: 完全一致72 / 包含关系60 / floor(相似度×55)
// org_score:  完全一致30 / 包含关系26 / floor(相似度×22)
// token_score: min(12, 共有token数×3)，合计上限100
func ScoreCandidate(name, orgName string, candidate Candidate) Scored {
	normalizedName := NormalizeText(name)
	normalizedCandidateName := candidate.NormalizedName
	if normalizedCandidateName == "" {
		normalizedCandidateName = NormalizeText(candidate.Name)
	}
	normalizedOrg := NormalizeText(orgName)
	normalizedAffiliation := candidate.NormalizedAffiliation
	if normalizedAffiliation == "" {
		normalizedAffiliation = NormalizeText(candidate.Affiliation)
	}

	nameScore := 0
	nameExact := false
	if normalizedName != "" && normalizedCandidateName != "" {
		switch {
		case normalizedName == normalizedCandidateName:
			nameScore = 72
			nameExact = true
		case strings.Contains(normalizedCandidateName, normalizedName) ||
			strings.Contains(normalizedName, normalizedCandidateName):
			nameScore = 60
		default:
			nameScore = int(Similarity(normalizedName, normalizedCandidateName) * 55)
		}
	}

	orgScore := 0
	orgMatch := false
	if normalizedOrg != "" && normalizedAffiliation != "" {
		switch {
		case normalizedOrg == normalizedAffiliation:
			orgScore = 30
			orgMatch = true
		case strings.Contains(normalizedAffiliation, normalizedOrg) ||
			strings.Contains(normalizedOrg, normalizedAffiliation):
			orgScore = 26
			orgMatch = true
		default:
			orgScore = int(Similarity(normalizedOrg, normalizedAffiliation) * 22)
		}
	}

	nameTokens := TokenSet(name)
	overlap := 0
	for _, token := range candidate.Tokens {
		if _, ok := nameTokens[token]; ok {
			overlap++
		}
	}
	tokenScore := overlap * 3
	if tokenScore > 12 {
		tokenScore = 12
	}

	score := nameScore + orgScore + tokenScore
	if score > 100 {
		score = 100
	}
	return Scored{
		ID:          candidate.ID,
		Name:        candidate.Name,
		Affiliation: candidate.Affiliation,
		URL:         RegistryURL(candidate.ID),
		Score:       score,
		NameExact:   nameExact,
		OrgMatch:    orgMatch,
	}
}

// DecideMatch 对降序排序的打分结果做匹配判定，返回(匹配ID, 置信档位)
// margin = 首位与次位的分差（仅一个候选时为-1）
// 分差过小时即使首位高分也判为不匹配：无人工复核的流水线宁可漏报不可误报
func DecideMatch(scored []Scored, th Thresholds) (string, string) {
	if len(scored) == 0 {
		return "", ConfidenceNone
	}
	top := scored[0]
	secondScore := -1
	if len(scored) > 1 {
		secondScore = scored[1].Score
	}
	margin := top.Score - secondScore

	if top.NameExact && top.OrgMatch && top.Score >= th.HighScore {
		return top.ID, ConfidenceHigh
	}
	if top.Score >= th.HighLoneScore && margin >= th.HighMargin {
		return top.ID, ConfidenceHigh
	}
	if top.Score >= th.MediumScore && margin >= th.MediumMargin {
		return top.ID, ConfidenceMedium
	}
	return "", ConfidenceNone
}

// Config 匹配器配置
type Config struct {
	MaxCandidatePool int // 打分前候选池上限（默认450）
	CandidateLimit   int // 审计持久化的Top-N（默认5）
	Thresholds       Thresholds
}

// DefaultConfig 默认匹配器配置
func DefaultConfig() Config {
	return Config{
		MaxCandidatePool: 450,
		CandidateLimit:   5,
		Thresholds:       DefaultThresholds(),
	}
}

type indexedCandidate struct {
	Candidate
	tokenSet map[string]struct{}
}

// Matcher 一次运行作用域的匹配器（持有预计算的主登记簿）
type Matcher struct {
	candidates []indexedCandidate
	cfg        Config
	now        func() time.Time
}

// New 创建匹配器
func New(candidates []Candidate, cfg Config) *Matcher {
	if cfg.MaxCandidatePool <= 0 {
		cfg.MaxCandidatePool = 450
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 5
	}
	indexed := make([]indexedCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		set := make(map[string]struct{}, len(candidate.Tokens))
		for _, token := range candidate.Tokens {
			set[token] = struct{}{}
		}
		indexed = append(indexed, indexedCandidate{Candidate: candidate, tokenSet: set})
	}
	return &Matcher{candidates: indexed, cfg: cfg, now: time.Now}
}

// Pool 候选池收集
// 1. 归一化名称存在包含关系的直接候选优先
// 2. 否则按共有token数降序
// 3. 全部不中时退化为截断的全量列表
func (m *Matcher) Pool(name string) []Candidate {
	normalizedName := NormalizeText(name)
	nameTokens := TokenSet(name)
	maxPool := m.cfg.MaxCandidatePool

	direct := make([]Candidate, 0, 16)
	type overlapped struct {
		overlap   int
		candidate Candidate
	}
	byToken := make([]overlapped, 0, 64)

	for _, candidate := range m.candidates {
		if normalizedName != "" && candidate.NormalizedName != "" {
			if strings.Contains(candidate.NormalizedName, normalizedName) ||
				strings.Contains(normalizedName, candidate.NormalizedName) {
				direct = append(direct, candidate.Candidate)
				continue
			}
		}
		if len(nameTokens) == 0 {
			continue
		}
		overlap := 0
		for token := range nameTokens {
			if _, ok := candidate.tokenSet[token]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			byToken = append(byToken, overlapped{overlap: overlap, candidate: candidate.Candidate})
		}
	}

	if len(direct) > 0 {
		if len(direct) >= maxPool {
			return direct[:maxPool]
		}
		remaining := maxPool - len(direct)
		sort.SliceStable(byToken, func(i, j int) bool { return byToken[i].overlap > byToken[j].overlap })
		if remaining > len(byToken) {
			remaining = len(byToken)
		}
		for _, item := range byToken[:remaining] {
			direct = append(direct, item.candidate)
		}
		return direct
	}

	if len(byToken) > 0 {
		sort.SliceStable(byToken, func(i, j int) bool { return byToken[i].overlap > byToken[j].overlap })
		if len(byToken) > maxPool {
			byToken = byToken[:maxPool]
		}
		pool := make([]Candidate, len(byToken))
		for i, item := range byToken {
			pool[i] = item.candidate
		}
		return pool
	}

	fallback := make([]Candidate, 0, maxPool)
	for _, candidate := range m.candidates {
		if len(fallback) >= maxPool {
			break
		}
		fallback = append(fallback, candidate.Candidate)
	}
	return fallback
}

// Match 对(name, org_name)做一轮完整匹配，返回降序打分列表与判定结果
func (m *Matcher) Match(name, orgName string) ([]Scored, string, string) {
	pool := m.Pool(name)
	scored := make([]Scored, 0, len(pool))
	for _, candidate := range pool {
		scored = append(scored, ScoreCandidate(name, orgName, candidate))
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	matchID, confidence := DecideMatch(scored, m.cfg.Thresholds)
	return scored, matchID, confidence
}

// BuildUpdates 为一条存量文档计算eqnet匹配字段的更新map
// 判定与否都持久化Top-N候选供审计；name缺失时只写skipped状态
func (m *Matcher) BuildUpdates(data map[string]any) map[string]any {
	name := strings.TrimSpace(stringField(data, "name"))
	orgName := strings.TrimSpace(stringField(data, "org_name"))
	updatedAt := m.now().UTC().Format(time.RFC3339)

	if name == "" {
		return map[string]any{
			"eqnet_match_status":     "skipped",
			"eqnet_match_error":      "missing_name",
			"eqnet_match_updated_at": updatedAt,
		}
	}

	scored, matchID, confidence := m.Match(name, orgName)

	limit := m.cfg.CandidateLimit
	if limit > len(scored) {
		limit = len(scored)
	}
	candidatePayload := make([]map[string]any, 0, limit)
	for _, candidate := range scored[:limit] {
		candidatePayload = append(candidatePayload, map[string]any{
			"id":          candidate.ID,
			"name":        candidate.Name,
			"affiliation": candidate.Affiliation,
			"url":         candidate.URL,
			"score":       candidate.Score,
		})
	}

	updates := map[string]any{
		"eqnet_match_query":      name,
		"eqnet_match_total":      len(scored),
		"eqnet_candidates":       candidatePayload,
		"eqnet_match_updated_at": updatedAt,
	}

	if matchID != "" {
		best := scored[0]
		updates["eqnet_match_status"] = "matched"
		updates["eqnet_match_confidence"] = confidence
		updates["eqnet_equipment_id"] = matchID
		updates["eqnet_url"] = RegistryURL(matchID)
		updates["eqnet_match_name"] = best.Name
		updates["eqnet_match_affiliation"] = best.Affiliation
		updates["eqnet_match_error"] = ""
		return updates
	}

	updates["eqnet_equipment_id"] = ""
	updates["eqnet_url"] = ""
	updates["eqnet_match_name"] = ""
	updates["eqnet_match_affiliation"] = ""
	updates["eqnet_match_confidence"] = ""
	updates["eqnet_match_error"] = ""
	if len(candidatePayload) > 0 {
		updates["eqnet_match_status"] = "candidate"
	} else {
		updates["eqnet_match_status"] = "unmatched"
	}
	return updates
}

// HasUpdates 更新map是否与存量文档存在差异
func HasUpdates(current map[string]any, updates map[string]any) bool {
	for key, value := range updates {
		if fmt.Sprint(current[key]) != fmt.Sprint(value) {
			return true
		}
	}
	return false
}

func stringField(data map[string]any, key string) string {
	if value, ok := data[key].(string); ok {
		return value
	}
	return ""
}
