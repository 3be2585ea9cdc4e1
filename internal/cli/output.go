package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"prescription-analytics-api/internal/backtest"
	"prescription-analytics-api/internal/cluster"
	"prescription-analytics-api/internal/dto"
	"prescription-analytics-api/internal/outlier"
)

// render prints v as indented JSON with --json, otherwise through text
func (rt *app) render(cmd *cobra.Command, v interface{}, text func(p *printer)) error {
	out := cmd.OutOrStdout()
	if rt.flags.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	p := &printer{w: tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)}
	text(p)
	return p.w.Flush()
}

type printer struct {
	w *tabwriter.Writer
}

func (p *printer) line(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) summary(s *dto.DatasetSummary) {
	p.line("Source:\t%s (%s)", s.Source, s.Mode)
	p.line("Version:\t%d", s.Version)
	p.line("Observations:\t%d (%d rows dropped)", s.Observations, s.DroppedRows)
	p.line("Months:\t%s .. %s", s.FirstMonth.Format("2006-01"), s.LastMonth.Format("2006-01"))
	p.line("Regions:\t%d", len(s.Regions))
	p.line("Categories:\t%d", len(s.Categories))
	p.line("Total cost:\t£%s", s.TotalCost.StringFixed(2))
}

func (p *printer) forecast(r *dto.ForecastResponse) {
	scope := strings.TrimSpace(r.Region + " " + r.Category)
	if scope == "" {
		scope = "All regions and categories"
	}
	fc := r.Forecast
	p.line("%s: ARIMA(%d,%d,%d), AIC %.2f", scope, fc.Order.P, fc.Order.D, fc.Order.Q, fc.AIC)
	p.line("Month\tForecast\tLower\tUpper")
	for _, pt := range fc.Points {
		p.line("%s\t%.2f\t%.2f\t%.2f", pt.Month.Format("2006-01"), pt.Forecast, pt.Lower, pt.Upper)
	}
}

func (p *printer) backtest(r *backtest.Report) {
	p.line("Mode %s, %d series evaluated, %d records, %d skipped", r.Mode, r.Evaluated, len(r.Records), len(r.Skipped))
	p.line("Region\tBNF\tMean actual\tMAE\tBias\tMAPE")
	for _, rec := range r.Records {
		mape := "n/a"
		if rec.MAPEDefined() {
			mape = fmt.Sprintf("%.2f%%", rec.MAPE)
		}
		p.line("%s\t%s\t%.2f\t%.2f\t%.2f\t%s", rec.Region, rec.CategoryCode, rec.MeanActual, rec.MAE, rec.Bias, mape)
	}
}

func (p *printer) fairness(r *dto.FairnessResponse) {
	s := r.Summary
	p.line("Mode %s, %d records, cost threshold %.2f", r.Mode, s.RecordCount, s.CostThreshold)
	p.line("Region\tRecords\tHigh cost rate\tRelative error\tMAE mean\tBias mean")
	for _, reg := range s.Regions {
		p.line("%s\t%d\t%.3f\t%.4f\t%.2f\t%.2f", reg.Region, reg.Records, reg.HighCostRate, reg.RelativeErrorRate, reg.MAEMean, reg.BiasMean)
	}
	p.line("")
	p.line("Parity gap:\t%.4f (concern: %t)", s.ParityGap, s.ParityConcern)
	p.line("ANOVA bias:\tF=%.4f p=%.4f", s.BiasANOVA.Statistic, s.BiasANOVA.PValue)
	p.line("Kruskal MAE:\tH=%.4f p=%.4f", s.MAEKruskal.Statistic, s.MAEKruskal.PValue)
	p.line("Kruskal bias:\tH=%.4f p=%.4f", s.BiasKruskal.Statistic, s.BiasKruskal.PValue)
	if s.TestsDegenerate {
		p.line("Tests degenerate:\t%s", s.DegenerateReason)
	}
}

func (p *printer) outliers(r *outlier.Result) {
	p.line("Method %s (%s): %d of %d records flagged (%.2f%%)", r.Method, r.Granularity, r.OutlierCount, r.TotalRecords, r.OutlierPercentage)
	p.line("Month\tRegion\tCategory\tCost\tScore")
	for _, o := range r.Outliers {
		p.line("%s\t%s\t%s\t%.2f\t%.3f", o.Month.Format("2006-01"), o.Region, o.Category, o.Cost, o.Score)
	}
}

func (p *printer) clusters(r *cluster.Result) {
	if r.Status != cluster.StatusClustered {
		p.line("%s", r.Message)
		return
	}
	p.line("%s clustering of %d groups by %s into %d clusters", r.Algorithm, len(r.Assignments), r.GroupBy, r.Clusters)
	for _, prof := range r.Profiles {
		p.line("")
		p.line("Cluster %s\t(%d members)\t%s", prof.Cluster, prof.Size, strings.Join(prof.Members, ", "))
		for _, reason := range prof.Reasons {
			p.line("\t%s", reason)
		}
	}
}
