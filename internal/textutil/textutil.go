// Package textutil 设备数据的文本归一化与分类工具
// 所有函数对任意输入全量定义：畸形输入退化为默认值，绝不panic
package textutil

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var (
	spacePattern = regexp.MustCompile(`\s+`)
	datePattern  = regexp.MustCompile(`(\d{4})[./年-](\d{1,2})[./月-](\d{1,2})`)
	// 字母数字串或日文文字串（平假名/片假名/汉字）为一个token
	tokenPattern            = regexp.MustCompile(`[A-Za-z0-9]+|[ぁ-んァ-ン一-龥々ー]+`)
	jpCharPattern           = regexp.MustCompile(`[ぁ-んァ-ン一-龥々ー]`)
	keywordNormalizePattern = regexp.MustCompile(`[^A-Za-z0-9ぁ-んァ-ン一-龥々ー]+`)
)

// CleanText 文本清洗：HTML实体反转义 + NFKC归一化 + 空白折叠
// 幂等：CleanText(CleanText(s)) == CleanText(s)
func CleanText(value string) string {
	if value == "" {
		return ""
	}
	text := html.UnescapeString(value)
	text = norm.NFKC.String(text)
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// NormalizeKeywordText 关键词比较用归一化：小写后只保留字母数字和日文文字
func NormalizeKeywordText(value string) string {
	text := strings.ToLower(CleanText(value))
	if text == "" {
		return ""
	}
	return keywordNormalizePattern.ReplaceAllString(text, "")
}

// NormalizeLabel 表格label归一化（去冒号和全半角空格）
func NormalizeLabel(value string) string {
	text := CleanText(value)
	for _, char := range []string{":", "：", " ", "　"} {
		text = strings.ReplaceAll(text, char, "")
	}
	return text
}

// ClassifyExternalUse 学外利用可否分类 → {不可, 要相談, 可, 不明}
// 否定词优先于肯定词：同时包含「可」与「不可」时判定为不可
func ClassifyExternalUse(value string) string {
	text := value
	if strings.Contains(text, "不可") || strings.Contains(text, "利用不可") {
		return "不可"
	}
	if strings.Contains(text, "要相談") || strings.Contains(text, "お問い合わせ") || strings.Contains(text, "問合せ") {
		return "要相談"
	}
	if strings.Contains(text, "可") || strings.Contains(text, "可能") || strings.Contains(text, "利用可") {
		return "可"
	}
	return "不明"
}

// ClassifyFeeBand 费用区分分类 → {無料, 有料, 不明}
func ClassifyFeeBand(value string) string {
	text := value
	if strings.Contains(text, "無料") {
		return "無料"
	}
	if strings.Contains(text, "有料") || strings.Contains(text, "円") ||
		strings.Contains(text, "¥") || strings.Contains(text, "￥") {
		return "有料"
	}
	return "不明"
}

// ParseDate 解析多种日期分隔符（. / 年月日 -）为ISO日期，解析失败返回空串
func ParseDate(value string) string {
	if value == "" {
		return ""
	}
	match := datePattern.FindStringSubmatch(value)
	if match == nil {
		return ""
	}
	year, _ := strconv.Atoi(match[1])
	month, _ := strconv.Atoi(match[2])
	day, _ := strconv.Atoi(match[3])
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date会自动进位（如2月30日→3月2日），回读校验排除非法日期
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return ""
	}
	return t.Format("2006-01-02")
}

// ComputeDedupeKey 去重键：非空清洗片段以"|"连接后取SHA-1十六进制
// 全部为空时返回空串
func ComputeDedupeKey(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		cleaned = append(cleaned, CleanText(part))
	}
	if len(cleaned) == 0 {
		return ""
	}
	sum := sha1.Sum([]byte(strings.Join(cleaned, "|")))
	return hex.EncodeToString(sum[:])
}

// BuildSearchTokens 生成检索token
// 小写化后按字母数字/日文文字串切分，日文token额外展开2〜3文字的连续n-gram
// （支持部分一致检索），总量超过80个时停止追加后续字段
func BuildSearchTokens(values ...string) []string {
	tokens := make([]string, 0, 32)
	seen := make(map[string]struct{})

	addToken := func(value string) {
		if value == "" {
			return
		}
		if _, ok := seen[value]; ok {
			return
		}
		seen[value] = struct{}{}
		tokens = append(tokens, value)
	}

	for _, value := range values {
		text := strings.ToLower(CleanText(value))
		if text == "" {
			continue
		}
		for _, match := range tokenPattern.FindAllString(text, -1) {
			addToken(match)
			if jpCharPattern.MatchString(match) {
				compact := []rune(strings.ReplaceAll(match, " ", ""))
				for _, size := range []int{2, 3} {
					for index := 0; index+size <= len(compact); index++ {
						addToken(string(compact[index : index+size]))
					}
				}
			}
		}
		if len(tokens) > 80 {
			break
		}
	}

	return tokens
}

// BuildSearchAliases 生成检索别名：把多种表记映射为规范关键词
// 长度>3的变体在归一化全文中以子串命中即可；长度≤3的变体（如"sem"）
// 要求以完整token命中，防止偶然子串误触发
func BuildSearchAliases(values ...string) []string {
	nonEmpty := make([]string, 0, len(values))
	for _, value := range values {
		if value != "" {
			nonEmpty = append(nonEmpty, value)
		}
	}
	base := NormalizeKeywordText(strings.Join(nonEmpty, " "))
	if base == "" {
		return nil
	}

	tokens := make(map[string]struct{})
	for _, value := range values {
		text := strings.ToLower(CleanText(value))
		if text == "" {
			continue
		}
		for _, match := range tokenPattern.FindAllString(text, -1) {
			if normalized := NormalizeKeywordText(match); normalized != "" {
				tokens[normalized] = struct{}{}
			}
		}
	}

	aliases := make([]string, 0, 4)
	seen := make(map[string]struct{})
	for _, entry := range normalizedKeywords {
		candidates := append([]string{entry.Key}, entry.Terms...)
		for _, term := range candidates {
			normalized := NormalizeKeywordText(term)
			length := len([]rune(normalized))
			if normalized == "" || length <= 1 {
				continue
			}
			if length <= 3 {
				if _, ok := tokens[normalized]; !ok {
					continue
				}
			} else if !strings.Contains(base, normalized) {
				continue
			}
			if _, ok := seen[entry.Key]; !ok {
				aliases = append(aliases, entry.Key)
				seen[entry.Key] = struct{}{}
			}
			break
		}
	}
	return aliases
}

// SortedUnique 去重排序（报表汇总用）
func SortedUnique(values []string) []string {
	seen := make(map[string]struct{})
	result := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	sort.Strings(result)
	return result
}
