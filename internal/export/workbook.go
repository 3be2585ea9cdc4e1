package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"prescription-analytics-api/internal/backtest"
	"prescription-analytics-api/internal/cluster"
	"prescription-analytics-api/internal/fairness"
	"prescription-analytics-api/internal/models"
	"prescription-analytics-api/internal/outlier"
)

// Sheet names written to the workbook
const (
	SheetErrors   = "Errors"
	SheetSkipped  = "Skipped"
	SheetParity   = "Parity"
	SheetTests    = "Tests"
	SheetClusters = "Clusters"
	SheetOutliers = "Outliers"
)

// Report is the set of results written to one workbook. Errors is
// required; the rest are written when present.
type Report struct {
	Errors   *backtest.Report
	Fairness *fairness.Summary
	Clusters *cluster.Result
	Outliers *outlier.Result
}

// Write renders report as an .xlsx workbook to w
func Write(w io.Writer, report Report) error {
	if report.Errors == nil {
		return fmt.Errorf("%w: export needs an error report", models.ErrInvalidParameter)
	}

	f := excelize.NewFile()
	defer f.Close()

	wb := &workbook{file: f}
	if err := wb.init(); err != nil {
		return err
	}

	wb.writeErrors(report.Errors)
	wb.writeSkipped(report.Errors.Skipped)
	if report.Fairness != nil {
		wb.writeParity(report.Fairness)
		wb.writeTests(report.Fairness)
	}
	if report.Clusters != nil {
		wb.writeClusters(report.Clusters)
	}
	if report.Outliers != nil {
		wb.writeOutliers(report.Outliers)
	}
	if wb.err != nil {
		return fmt.Errorf("failed to build workbook: %w", wb.err)
	}

	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// workbook accumulates the first error so sheet writers stay linear
type workbook struct {
	file        *excelize.File
	headerStyle int
	err         error
}

func (wb *workbook) init() error {
	style, err := wb.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DCE6F1"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	wb.headerStyle = style
	return wb.file.SetSheetName(wb.file.GetSheetName(0), SheetErrors)
}

func (wb *workbook) sheet(name string, header ...interface{}) {
	if wb.err != nil {
		return
	}
	if name != SheetErrors {
		if _, err := wb.file.NewSheet(name); err != nil {
			wb.err = err
			return
		}
	}
	wb.row(name, 1, header...)

	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		wb.err = err
		return
	}
	if err := wb.file.SetCellStyle(name, "A1", last, wb.headerStyle); err != nil {
		wb.err = err
		return
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := wb.file.SetColWidth(name, "A", lastCol, 18); err != nil {
		wb.err = err
	}
}

func (wb *workbook) row(name string, n int, values ...interface{}) {
	if wb.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		wb.err = err
		return
	}
	if err := wb.file.SetSheetRow(name, cell, &values); err != nil {
		wb.err = err
	}
}

// optional writes an undefined value as an empty cell
func optional(v float64) interface{} {
	if p := models.Finite(v); p != nil {
		return *p
	}
	return ""
}

func (wb *workbook) writeErrors(report *backtest.Report) {
	wb.sheet(SheetErrors, "Region", "Category", "BNF Code", "Mean Actual", "MAE", "Bias", "MAPE", "Order")
	for i, r := range report.Records {
		order := ""
		if r.Order != nil {
			order = fmt.Sprintf("(%d,%d,%d)", r.Order.P, r.Order.D, r.Order.Q)
		}
		wb.row(SheetErrors, i+2, r.Region, r.Category, r.CategoryCode, r.MeanActual, r.MAE, r.Bias, optional(r.MAPE), order)
	}
}

func (wb *workbook) writeSkipped(skipped []models.SkippedUnit) {
	wb.sheet(SheetSkipped, "Region", "Category", "Reason")
	for i, s := range skipped {
		wb.row(SheetSkipped, i+2, s.Region, s.Category, s.Reason)
	}
}

func (wb *workbook) writeParity(summary *fairness.Summary) {
	wb.sheet(SheetParity, "Region", "Records", "High Cost Rate", "Relative Error Rate", "MAE Mean", "Bias Mean")
	for i, r := range summary.Regions {
		wb.row(SheetParity, i+2, r.Region, r.Records, r.HighCostRate, r.RelativeErrorRate, r.MAEMean, r.BiasMean)
	}
	n := len(summary.Regions) + 3
	wb.row(SheetParity, n, "Cost Threshold", summary.CostThreshold)
	wb.row(SheetParity, n+1, "Parity Gap", summary.ParityGap)
	wb.row(SheetParity, n+2, "Parity Concern", summary.ParityConcern)
}

func (wb *workbook) writeTests(summary *fairness.Summary) {
	wb.sheet(SheetTests, "Test", "Statistic", "P Value", "Significant")
	tests := []struct {
		name   string
		result fairness.TestResult
	}{
		{"ANOVA (bias)", summary.BiasANOVA},
		{"Kruskal-Wallis (MAE)", summary.MAEKruskal},
		{"Kruskal-Wallis (bias)", summary.BiasKruskal},
	}
	for i, t := range tests {
		wb.row(SheetTests, i+2, t.name, t.result.Statistic, t.result.PValue, t.result.Significant)
	}
	if summary.TestsDegenerate {
		wb.row(SheetTests, len(tests)+3, "Degenerate", summary.DegenerateReason)
	}
}

func (wb *workbook) writeClusters(result *cluster.Result) {
	wb.sheet(SheetClusters, "Group", "Cluster", "Total Cost", "Mean Cost", "Cost Variability", "Cost Per Record", "PC1", "PC2")
	for i, a := range result.Assignments {
		wb.row(SheetClusters, i+2, a.Group, a.Cluster, a.TotalCost, a.MeanCost, a.CostVariability, a.CostPerRecord, a.PC1, a.PC2)
	}
	if len(result.Assignments) == 0 && result.Message != "" {
		wb.row(SheetClusters, 2, result.Message)
	}
}

func (wb *workbook) writeOutliers(result *outlier.Result) {
	wb.sheet(SheetOutliers, "Month", "Region", "Category", "Cost", "Score")
	for i, o := range result.Outliers {
		wb.row(SheetOutliers, i+2, o.Month.Format("2006-01"), o.Region, o.Category, o.Cost, o.Score)
	}
}
