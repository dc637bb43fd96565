package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	// 全角英数のNFKC正規化と空白折叠
	assert.Equal(t, "SEM 装置", CleanText("ＳＥＭ　　装置"))
	// HTML实体反转义
	assert.Equal(t, "A&B", CleanText("A&amp;B"))
	assert.Equal(t, "", CleanText("   "))
	assert.Equal(t, "", CleanText(""))
}

func TestCleanText_Idempotent(t *testing.T) {
	inputs := []string{
		"ＳＥＭ　装置",
		"A&amp;B  C",
		"  走査型電子顕微鏡\nJSM-7001F  ",
	}
	for _, input := range inputs {
		once := CleanText(input)
		assert.Equal(t, once, CleanText(once))
	}
}

func TestClassifyExternalUse(t *testing.T) {
	// 否定が肯定より優先
	assert.Equal(t, "不可", ClassifyExternalUse("学内限定、学外不可"))
	assert.Equal(t, "不可", ClassifyExternalUse("利用不可"))
	assert.Equal(t, "要相談", ClassifyExternalUse("学外の方は要相談"))
	assert.Equal(t, "要相談", ClassifyExternalUse("事前にお問い合わせください"))
	assert.Equal(t, "可", ClassifyExternalUse("学外利用可"))
	assert.Equal(t, "不明", ClassifyExternalUse(""))
	assert.Equal(t, "不明", ClassifyExternalUse("詳細はWebで"))
}

func TestClassifyFeeBand(t *testing.T) {
	assert.Equal(t, "無料", ClassifyFeeBand("学内無料"))
	assert.Equal(t, "有料", ClassifyFeeBand("1時間 3,000円"))
	assert.Equal(t, "有料", ClassifyFeeBand("有料（要見積）"))
	assert.Equal(t, "有料", ClassifyFeeBand("¥5000/h"))
	assert.Equal(t, "不明", ClassifyFeeBand(""))
	assert.Equal(t, "不明", ClassifyFeeBand("応相談"))
}

func TestParseDate(t *testing.T) {
	assert.Equal(t, "2024-03-05", ParseDate("2024年3月5日"))
	assert.Equal(t, "2024-03-05", ParseDate("2024.3.5"))
	assert.Equal(t, "2024-03-05", ParseDate("2024/3/5"))
	assert.Equal(t, "2024-03-05", ParseDate("更新日: 2024-03-05"))
	// 不正な日付は空（2月30日は存在しない）
	assert.Equal(t, "", ParseDate("2024年2月30日"))
	assert.Equal(t, "", ParseDate("日付なし"))
	assert.Equal(t, "", ParseDate(""))
}

func TestComputeDedupeKey(t *testing.T) {
	key1 := ComputeDedupeKey("東京大学", "走査電子顕微鏡", "電子顕微鏡")
	key2 := ComputeDedupeKey("東京大学", "走査電子顕微鏡", "電子顕微鏡")
	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 40)

	// 表記ゆれはCleanTextで吸収される
	key3 := ComputeDedupeKey("東京大学", "走査電子顕微鏡　", "電子顕微鏡")
	assert.Equal(t, key1, key3)

	other := ComputeDedupeKey("京都大学", "走査電子顕微鏡", "電子顕微鏡")
	assert.NotEqual(t, key1, other)

	// 空パートは無視、全部空なら空串
	assert.Equal(t, ComputeDedupeKey("東京大学", "", "SEM"), ComputeDedupeKey("東京大学", "SEM"))
	assert.Equal(t, "", ComputeDedupeKey("", "", ""))
}

func TestBuildSearchTokens(t *testing.T) {
	tokens := BuildSearchTokens("走査電子顕微鏡 JSM-7001F", "東京大学", "", "", "東京都")
	assert.Contains(t, tokens, "jsm")
	assert.Contains(t, tokens, "7001f")
	assert.Contains(t, tokens, "走査電子顕微鏡")
	// 日本語トークンは2〜3文字n-gramにも展開される
	assert.Contains(t, tokens, "走査")
	assert.Contains(t, tokens, "顕微鏡")
	assert.Contains(t, tokens, "東京都")

	assert.Empty(t, BuildSearchTokens("", "", ""))
}

func TestBuildSearchTokens_Deterministic(t *testing.T) {
	first := BuildSearchTokens("透過型電子顕微鏡", "京都大学")
	second := BuildSearchTokens("透過型電子顕微鏡", "京都大学")
	assert.Equal(t, first, second)
}

func TestBuildSearchAliases(t *testing.T) {
	// 日本語表記から規範キーワードへ
	aliases := BuildSearchAliases("走査電子顕微鏡 JSM-7001F", "東京大学", "電子顕微鏡", "")
	assert.Contains(t, aliases, "sem")

	// 短い変体（3文字以下）はトークン完全一致が必要
	aliases = BuildSearchAliases("XRD測定装置", "", "", "")
	assert.Contains(t, aliases, "xrd")

	// "測定"だけでは何も出ない
	assert.Empty(t, BuildSearchAliases("測定", "", "", ""))
	assert.Empty(t, BuildSearchAliases("", "", "", ""))
}

func TestGuessPrefecture(t *testing.T) {
	assert.Equal(t, "東京都", GuessPrefecture("東京都文京区本郷7-3-1"))
	assert.Equal(t, "京都府", GuessPrefecture("京都府京都市左京区"))
	assert.Equal(t, "北海道", GuessPrefecture("北海道大学"))
	assert.Equal(t, "", GuessPrefecture("所在地不明"))
	assert.Equal(t, "", GuessPrefecture(""))
}

func TestResolveRegion(t *testing.T) {
	assert.Equal(t, "関東", ResolveRegion("東京都"))
	assert.Equal(t, "関西", ResolveRegion("大阪府"))
	assert.Equal(t, "九州", ResolveRegion("福岡県"))
	assert.Equal(t, "北海道", ResolveRegion("北海道"))
	assert.Equal(t, "", ResolveRegion("東京"))
	assert.Equal(t, "", ResolveRegion(""))
}

func TestSortedUnique(t *testing.T) {
	result := SortedUnique([]string{"b", "a", " b ", "", "a"})
	assert.Equal(t, []string{"a", "b"}, result)
}
