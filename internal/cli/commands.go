package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prescription-analytics-api/internal/dto"
	"prescription-analytics-api/internal/export"
)

func addDateFlags(cmd *cobra.Command, filter *dto.DateFilter) {
	cmd.Flags().StringVar(&filter.From, "from", "", "First month to include (YYYY-MM)")
	cmd.Flags().StringVar(&filter.To, "to", "", "Last month to include (YYYY-MM)")
}

func addErrorFlags(cmd *cobra.Command, req *dto.ErrorsRequest) {
	cmd.Flags().StringVar(&req.Mode, "mode", "backtest", "Error mode (backtest, simulated)")
	cmd.Flags().IntVar(&req.TestPeriods, "test-periods", 0, "Months held out per series (default from config)")
	addDateFlags(cmd, &req.DateFilter)
}

func newSummaryCmd(rt *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Describe the loaded dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, err := rt.service.Summary(cmd.Context())
			if err != nil {
				return err
			}
			return rt.render(cmd, summary, func(p *printer) { p.summary(summary) })
		},
	}
}

func newForecastCmd(rt *app) *cobra.Command {
	var req dto.ForecastRequest
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast monthly costs for a region, category or the whole dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, _, err := rt.service.Forecast(cmd.Context(), &req)
			if err != nil {
				return err
			}
			return rt.render(cmd, resp, func(p *printer) { p.forecast(resp) })
		},
	}
	cmd.Flags().StringVar(&req.Region, "region", "", "Region to forecast (default all regions)")
	cmd.Flags().StringVar(&req.Category, "category", "", "BNF category to forecast (default all categories)")
	cmd.Flags().IntVar(&req.Horizon, "horizon", 0, "Months to forecast (default from config)")
	addDateFlags(cmd, &req.DateFilter)
	return cmd
}

func newBacktestCmd(rt *app) *cobra.Command {
	var req dto.ErrorsRequest
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Produce forecast error records for every region and category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, _, err := rt.service.Backtest(cmd.Context(), &req)
			if err != nil {
				return err
			}
			return rt.render(cmd, report, func(p *printer) { p.backtest(report) })
		},
	}
	addErrorFlags(cmd, &req)
	return cmd
}

func newFairnessCmd(rt *app) *cobra.Command {
	var req dto.ErrorsRequest
	cmd := &cobra.Command{
		Use:   "fairness",
		Short: "Compare forecast error across regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, _, err := rt.service.Fairness(cmd.Context(), &req)
			if err != nil {
				return err
			}
			return rt.render(cmd, resp, func(p *printer) { p.fairness(resp) })
		},
	}
	addErrorFlags(cmd, &req)
	return cmd
}

func newOutliersCmd(rt *app) *cobra.Command {
	var req dto.OutlierRequest
	cmd := &cobra.Command{
		Use:   "outliers",
		Short: "Flag anomalous prescription costs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, _, err := rt.service.Outliers(cmd.Context(), &req)
			if err != nil {
				return err
			}
			return rt.render(cmd, result, func(p *printer) { p.outliers(result) })
		},
	}
	cmd.Flags().StringVar(&req.Method, "method", "ensemble", "Detection method (iqr, z_score, isolation_forest, ensemble)")
	cmd.Flags().StringVar(&req.Granularity, "granularity", "record", "Granularity (record, temporal)")
	cmd.Flags().Float64Var(&req.Threshold, "threshold", 0, "IQR multiplier or z-score cutoff (default from config)")
	cmd.Flags().Float64Var(&req.Contamination, "contamination", 0, "Isolation forest contamination (default from config)")
	cmd.Flags().IntVar(&req.Limit, "limit", 20, "Maximum flagged records to print")
	addDateFlags(cmd, &req.DateFilter)
	return cmd
}

func newClustersCmd(rt *app) *cobra.Command {
	var req dto.ClusterRequest
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Group regions or categories by cost profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, _, err := rt.service.Clusters(cmd.Context(), &req)
			if err != nil {
				return err
			}
			return rt.render(cmd, result, func(p *printer) { p.clusters(result) })
		},
	}
	cmd.Flags().StringVar(&req.GroupBy, "group-by", "region", "Grouping (region, category)")
	cmd.Flags().StringVar(&req.Algorithm, "algorithm", "hierarchical", "Algorithm (hierarchical, kmeans, dbscan)")
	cmd.Flags().IntVar(&req.Clusters, "k", 0, "Number of clusters (default from config)")
	addDateFlags(cmd, &req.DateFilter)
	return cmd
}

func newExportCmd(rt *app) *cobra.Command {
	var (
		req          dto.ErrorsRequest
		output       string
		withClusters bool
		withOutliers bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write error records and the fairness summary to an .xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			report, _, err := rt.service.Backtest(ctx, &req)
			if err != nil {
				return err
			}
			workbook := export.Report{Errors: report}

			if fair, _, err := rt.service.Fairness(ctx, &req); err == nil {
				workbook.Fairness = fair.Summary
			} else {
				rt.logger.WithError(err).Warn("Fairness summary not exported")
			}
			if withClusters {
				if workbook.Clusters, _, err = rt.service.Clusters(ctx, &dto.ClusterRequest{DateFilter: req.DateFilter}); err != nil {
					return err
				}
			}
			if withOutliers {
				if workbook.Outliers, _, err = rt.service.Outliers(ctx, &dto.OutlierRequest{DateFilter: req.DateFilter}); err != nil {
					return err
				}
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := export.Write(f, workbook); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to close %s: %w", output, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d error records to %s\n", len(report.Records), output)
			return nil
		},
	}
	addErrorFlags(cmd, &req)
	cmd.Flags().StringVarP(&output, "output", "o", "prescription_errors.xlsx", "Workbook to write")
	cmd.Flags().BoolVar(&withClusters, "clusters", false, "Include a region clustering sheet")
	cmd.Flags().BoolVar(&withOutliers, "outliers", false, "Include an outliers sheet")
	return cmd
}
