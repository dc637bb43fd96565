package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// EQNET公开设备检索端点
const (
	DefaultSearchURL = "https://eqnet.jp/public/equipment/search.json"
	detailURLFormat  = "https://eqnet.jp/top#/public/equipment/%s"
)

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	registryIDPattern = regexp.MustCompile(`(?:#?/public/equipment/)(\d+)`)
	digitsPattern     = regexp.MustCompile(`^\d+$`)
	jpScriptPattern   = regexp.MustCompile(`[ぁ-んァ-ン一-龥々ー]`)
)

// ParseRegistryID 从数值/数字串/详情URL中提取登记簿设备ID，无法提取返回空串
func ParseRegistryID(value any) string {
	if value == nil {
		return ""
	}
	var text string
	switch v := value.(type) {
	case string:
		text = strings.TrimSpace(v)
	case json.Number:
		text = v.String()
	case float64:
		text = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		text = strconv.Itoa(v)
	default:
		text = strings.TrimSpace(fmt.Sprint(v))
	}
	if text == "" {
		return ""
	}
	if digitsPattern.MatchString(text) {
		return text
	}
	if match := registryIDPattern.FindStringSubmatch(text); match != nil {
		return match[1]
	}
	return ""
}

// RegistryURL 登记簿详情页URL（ID无效返回空串）
func RegistryURL(equipmentID string) string {
	id := ParseRegistryID(equipmentID)
	if id == "" {
		return ""
	}
	return fmt.Sprintf(detailURLFormat, id)
}

// StripHTMLWrapper 部分代理会把JSON响应包进HTML，剥掉标签取正文
func StripHTMLWrapper(text string) string {
	payload := strings.TrimSpace(text)
	if strings.HasPrefix(payload, "<") {
		payload = strings.TrimSpace(htmlTagPattern.ReplaceAllString(payload, ""))
	}
	return payload
}

// MaybeFixMojibake 修复latin1误解码的UTF-8（修复后日文字符变多才采用）
func MaybeFixMojibake(text string) string {
	if text == "" {
		return text
	}
	bytes := make([]byte, 0, len(text))
	for _, r := range text {
		if r > 0xFF {
			return text
		}
		bytes = append(bytes, byte(r))
	}
	if !utf8.Valid(bytes) {
		return text
	}
	fixed := string(bytes)
	if jpCharCount(fixed) > jpCharCount(text) {
		return fixed
	}
	return text
}

func jpCharCount(text string) int {
	return len(jpScriptPattern.FindAllString(text, -1))
}

// RegistryRow 登记簿一行（上游字段类型不稳定，ID和开放标志按any接收）
type RegistryRow struct {
	ID               any    `json:"id"`
	Name             string `json:"name"`
	Affiliation      string `json:"affiliation"`
	Budget           string `json:"budget"`
	Spec             string `json:"spec"`
	NationalOpenness any    `json:"national_openness"`
	PrivateOpenness  any    `json:"private_openness"`
	CompanyOpenness  any    `json:"company_openness"`
}

// ExternallyOpen 任一开放标志为真值时视为学外利用可
func (r RegistryRow) ExternallyOpen() bool {
	for _, value := range []any{r.NationalOpenness, r.PrivateOpenness, r.CompanyOpenness} {
		if truthy(value) {
			return true
		}
	}
	return false
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && v != "0" && v != "false"
	case float64:
		return v != 0
	default:
		return true
	}
}

func (r *RegistryRow) fixMojibake() {
	r.Name = MaybeFixMojibake(r.Name)
	r.Affiliation = MaybeFixMojibake(r.Affiliation)
	r.Budget = MaybeFixMojibake(r.Budget)
	r.Spec = MaybeFixMojibake(r.Spec)
}

// Client EQNET登记簿HTTP客户端
// 重试由runner的重试策略负责，这里不做resty级重试
type Client struct {
	http      *resty.Client
	searchURL string
	logger    *zap.Logger
}

// NewClient 创建登记簿客户端
func NewClient(searchURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "kikidoko-crawler/1.0").
		SetHeader("Accept", "application/json,text/plain,*/*")
	return &Client{http: httpClient, searchURL: searchURL, logger: logger}
}

// FetchRows 拉取登记簿全量行。拉取失败必须令整个运行中止（必需上下文）
func (c *Client) FetchRows(ctx context.Context) ([]RegistryRow, int, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.searchURL)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch registry: %w", err)
	}
	if resp.IsError() {
		return nil, 0, fmt.Errorf("fetch registry: unexpected status %d", resp.StatusCode())
	}

	payloadText := StripHTMLWrapper(string(resp.Body()))
	var payload struct {
		Data struct {
			Data  []RegistryRow `json:"data"`
			Total int           `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(payloadText), &payload); err != nil {
		return nil, 0, fmt.Errorf("decode registry payload: %w", err)
	}

	rows := payload.Data.Data
	for i := range rows {
		rows[i].fixMojibake()
	}
	total := payload.Data.Total
	if total == 0 {
		total = len(rows)
	}
	c.logger.Info("Registry rows loaded",
		zap.Int("rows", len(rows)),
		zap.Int("total", total),
	)
	return rows, total, nil
}

// CandidatesFromRows 登记簿行 → 预计算候选（无ID行剔除）
func CandidatesFromRows(rows []RegistryRow) []Candidate {
	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		id := ParseRegistryID(row.ID)
		if id == "" {
			continue
		}
		candidates = append(candidates, NewCandidate(id, row.Name, row.Affiliation))
	}
	return candidates
}
