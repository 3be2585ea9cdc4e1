package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleCSV = `YEAR_MONTH,REGIONAL_OFFICE_NAME,BNF_CHAPTER_PLUS_CODE,TOTAL_COST
2023-01,LONDON,02: Cardiovascular System,100
2023-02,LONDON,02: Cardiovascular System,110
2023-03,LONDON,02: Cardiovascular System,120
2023-04,LONDON,02: Cardiovascular System,130
2023-05,LONDON,02: Cardiovascular System,125
2023-06,LONDON,02: Cardiovascular System,140
2023-01,MIDLANDS,02: Cardiovascular System,90
2023-02,MIDLANDS,02: Cardiovascular System,95
2023-03,MIDLANDS,02: Cardiovascular System,5000
2023-04,MIDLANDS,02: Cardiovascular System,97
2023-05,MIDLANDS,02: Cardiovascular System,99
2023-06,MIDLANDS,02: Cardiovascular System,101
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monthly_summary.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSummaryCommand(t *testing.T) {
	path := writeSample(t)

	out, err := run(t, "summary", "--data", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Observations:")
	assert.Contains(t, out, "12 (0 rows dropped)")
	assert.Contains(t, out, "2023-01 .. 2023-06")

	out, err = run(t, "summary", "--data", path, "--json")
	require.NoError(t, err)
	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "real", summary["mode"])
	assert.Equal(t, float64(12), summary["observations"])
}

func TestForecastCommand(t *testing.T) {
	path := writeSample(t)

	out, err := run(t, "forecast", "--data", path, "--region", "LONDON", "--horizon", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "LONDON: ARIMA(")
	assert.Contains(t, out, "2023-07")
	assert.Contains(t, out, "2023-08")

	_, err = run(t, "forecast", "--data", path, "--region", "ATLANTIS")
	assert.Error(t, err)
}

func TestOutliersCommand(t *testing.T) {
	path := writeSample(t)

	out, err := run(t, "outliers", "--data", path, "--method", "iqr", "--json")
	require.NoError(t, err)

	var result struct {
		OutlierCount int `json:"outlier_count"`
		Outliers     []struct {
			Region string  `json:"region"`
			Cost   float64 `json:"cost"`
		} `json:"outliers"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.NotEmpty(t, result.Outliers)
	assert.Equal(t, "MIDLANDS", result.Outliers[0].Region)
	assert.Equal(t, 5000.0, result.Outliers[0].Cost)
}

func TestBacktestAndExportCommands(t *testing.T) {
	path := writeSample(t)

	out, err := run(t, "backtest", "--data", path, "--test-periods", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2 records, 0 skipped")

	out, err = run(t, "fairness", "--data", path, "--test-periods", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Parity gap:")

	workbook := filepath.Join(t.TempDir(), "errors.xlsx")
	out, err = run(t, "export", "--data", path, "--test-periods", "2", "--outliers", "-o", workbook)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 2 error records")

	f, err := excelize.OpenFile(workbook)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Errors")
	assert.Contains(t, f.GetSheetList(), "Outliers")
}

func TestClustersCommand(t *testing.T) {
	out, err := run(t, "clusters", "--data", filepath.Join(t.TempDir(), "missing.csv"), "--k", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "hierarchical clustering of 11 groups by region into 3 clusters")

	_, err = run(t, "clusters", "--data", writeSample(t), "--k", "5")
	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, "summary", "--log-level", "loud")
	assert.Error(t, err)
}
