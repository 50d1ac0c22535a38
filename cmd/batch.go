package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hmpi-cli/internal/fetcher"
	"github.com/sells-group/hmpi-cli/internal/model"
)

var (
	batchInput       string
	batchOutput      string
	batchConcurrency int
	batchLatCol      string
	batchLonCol      string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Predict the HMPI for every row of a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if batchConcurrency > 0 {
			cfg.Batch.Concurrency = batchConcurrency
		}

		env, err := initEnv(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		tbl, err := fetcher.OpenTable(ctx, batchInput)
		if err != nil {
			return eris.Wrap(err, "open batch input")
		}
		defer tbl.Close() //nolint:errcheck

		out := cmd.OutOrStdout()
		if batchOutput != "" && batchOutput != "-" {
			f, err := os.Create(batchOutput)
			if err != nil {
				return eris.Wrap(err, "create batch output")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		summary, err := runBatch(ctx, env.Predictor, tbl, out, batchOptions{
			Concurrency: cfg.Batch.Concurrency,
			LatCol:      batchLatCol,
			LonCol:      batchLonCol,
		})
		if err != nil {
			return err
		}

		zap.L().Info("batch complete",
			zap.Int("rows", summary.Rows),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
		)
		return nil
	},
}

// locationPredictor is the slice of the predictor the batch needs.
type locationPredictor interface {
	PredictLocation(ctx context.Context, lat, lon float64) (*model.Prediction, error)
}

type batchOptions struct {
	Concurrency int
	LatCol      string
	LonCol      string
}

type batchSummary struct {
	Rows      int
	Succeeded int
	Failed    int
}

type batchResult struct {
	pred *model.Prediction
	err  error
}

// batchColumns are appended to the input header in the output.
var batchColumns = []string{"predicted_hmpi", "defaulted_features", "error"}

// runBatch predicts every row of tbl and writes the input columns plus
// batchColumns to w, in input order. A row that fails carries its error in
// the error column; only I/O failures abort the batch.
func runBatch(ctx context.Context, p locationPredictor, tbl *fetcher.Table, w io.Writer, opts batchOptions) (batchSummary, error) {
	latIdx, lonIdx := tbl.Index(opts.LatCol), tbl.Index(opts.LonCol)
	if latIdx < 0 || lonIdx < 0 {
		return batchSummary{}, eris.Errorf("batch: input needs %q and %q columns", opts.LatCol, opts.LonCol)
	}

	var rows []fetcher.Row
	for row := range tbl.Rows {
		rows = append(rows, row)
	}
	if err := tbl.Err(); err != nil {
		return batchSummary{}, eris.Wrap(err, "batch: read input")
	}

	results := make([]batchResult, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.Concurrency))
	for i, row := range rows {
		g.Go(func() error {
			lat, lon, err := rowLocation(row, latIdx, lonIdx)
			if err != nil {
				results[i] = batchResult{err: err}
				return nil
			}
			pred, err := p.PredictLocation(gctx, lat, lon)
			results[i] = batchResult{pred: pred, err: err}
			if err != nil {
				zap.L().Warn("batch: row failed", zap.Int("line", row.Line), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	cw := csv.NewWriter(w)
	header := append(append([]string{}, tbl.Header...), batchColumns...)
	if err := cw.Write(header); err != nil {
		return batchSummary{}, eris.Wrap(err, "batch: write header")
	}

	summary := batchSummary{Rows: len(rows)}
	for i, row := range rows {
		record := make([]string, len(tbl.Header), len(tbl.Header)+len(batchColumns))
		copy(record, row.Values)

		res := results[i]
		if res.err != nil {
			summary.Failed++
			record = append(record, "", "", res.err.Error())
		} else {
			summary.Succeeded++
			record = append(record,
				strconv.FormatFloat(res.pred.HMPI, 'f', 2, 64),
				strconv.Itoa(len(res.pred.Fallbacks)),
				"",
			)
		}
		if err := cw.Write(record); err != nil {
			return summary, eris.Wrap(err, "batch: write row")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return summary, eris.Wrap(err, "batch: flush output")
	}
	return summary, nil
}

func rowLocation(row fetcher.Row, latIdx, lonIdx int) (float64, float64, error) {
	if latIdx >= len(row.Values) || lonIdx >= len(row.Values) {
		return 0, 0, eris.Errorf("line %d: missing coordinates", row.Line)
	}
	lat, err := strconv.ParseFloat(row.Values[latIdx], 64)
	if err != nil {
		return 0, 0, eris.Errorf("line %d: invalid latitude %q", row.Line, row.Values[latIdx])
	}
	lon, err := strconv.ParseFloat(row.Values[lonIdx], 64)
	if err != nil {
		return 0, 0, eris.Errorf("line %d: invalid longitude %q", row.Line, row.Values[lonIdx])
	}
	return lat, lon, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "input .csv or .xlsx file (required)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "-", "output CSV file, - for stdout")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent predictions (default from config)")
	batchCmd.Flags().StringVar(&batchLatCol, "lat-col", "latitude", "latitude column name")
	batchCmd.Flags().StringVar(&batchLonCol, "lon-col", "longitude", "longitude column name")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}
