package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestGenerateSyncPreview(t *testing.T) {
	rows := []PreviewRow{
		{
			RegistryKey:     "univ-a",
			OrgName:         "A大学",
			Prefecture:      "東京都",
			ParserType:      "source_handler",
			URL:             "https://a.example.ac.jp",
			FetchedRawCount: 12,
			NormalizedCount: 10,
			FetchStatus:     "ok",
			ActionHint:      "sync_now",
			Diagnosis:       "取得成功",
			WouldCreate:     3,
			WouldUpdate:     7,
		},
		{
			RegistryKey: "univ-b",
			OrgName:     "B大学",
			ParserType:  "query_only",
			FetchStatus: "query_only",
			ActionHint:  "implement_source",
		},
	}

	payload, err := GenerateSyncPreview(rows)
	require.NoError(t, err)
	require.NotEmpty(t, payload)

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	require.NoError(t, err)
	defer f.Close()

	cells, err := f.GetRows("Sync Preview")
	require.NoError(t, err)
	require.Len(t, cells, 3) // 表头 + 2行
	assert.Equal(t, SyncPreviewHeader, cells[0])
	assert.Equal(t, "univ-a", cells[1][0])
	assert.Equal(t, "取得成功", cells[1][10])
}

func TestGenerateMissingOrgs(t *testing.T) {
	rows := []MissingOrgRow{
		{OrgName: "C研究所", EquipmentCount: 4, SampleEquipmentName: "X線回折装置"},
	}

	payload, err := GenerateMissingOrgs(rows)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	require.NoError(t, err)
	defer f.Close()

	cells, err := f.GetRows("Missing Orgs")
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, MissingOrgsHeader, cells[0])
	assert.Equal(t, "C研究所", cells[1][0])
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "preview.xlsx")
	require.NoError(t, WriteFile(path, []byte("payload")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}
