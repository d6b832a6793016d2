package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/cellz"
	"github.com/zoobzio/cellz/report"
	"github.com/zoobzio/cellz/schema"
)

var errRejected = errors.New("rejected rows found")

var (
	checkFlags  schemaFlags
	checkReport string
	checkJobs   int

	checkCmd = &cobra.Command{
		Use:   "check --schema FILE [files...]",
		Short: "Validate CSV files against a schema",
		Long: `Read every file through the input chains of the schema and print each
rejected row. Files are checked concurrently, each in its own session, so
uniqueness is tracked per file.

With --report, rejected cells are stored in a SQLite database for later
inspection. The command exits non-zero when any row was rejected.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := checkFlags.compile(cmd)
			if err != nil {
				return err
			}

			path := checkReport
			if path == "" {
				path = cfg.Report
			}
			var store *report.Store
			if path != "" {
				store, err = report.Open(path)
				if err != nil {
					return err
				}
				defer store.Close()
			}

			return runCheck(cmd.Context(), cmd.OutOrStdout(), reg, store, args)
		},
	}
)

func init() {
	checkFlags.register(checkCmd, false)
	checkCmd.Flags().StringVar(&checkReport, "report", "", "SQLite file to store rejected cells in")
	checkCmd.Flags().IntVarP(&checkJobs, "jobs", "j", 4, "Files checked at once")
}

type checkResult struct {
	file     string
	rows     int
	rejected int
}

func runCheck(ctx context.Context, out io.Writer, reg *schema.Registry, store *report.Store, files []string) error {
	results := make([]checkResult, len(files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	if checkJobs > 0 {
		g.SetLimit(checkJobs)
	}
	for i, file := range files {
		g.Go(func() error {
			res, err := checkFile(ctx, reg, store, file, func(rowErr *schema.RowError) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(out, "%s:%v\n", file, rowErr)
			})
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rejected := 0
	for _, r := range results {
		fmt.Fprintf(out, "%s: %d rows, %d rejected\n", r.file, r.rows, r.rejected)
		rejected += r.rejected
	}
	if rejected > 0 {
		return fmt.Errorf("%w: %d", errRejected, rejected)
	}
	return nil
}

func checkFile(ctx context.Context, reg *schema.Registry, store *report.Store, file string, onReject func(*schema.RowError)) (checkResult, error) {
	res := checkResult{file: file}

	f, err := os.Open(file)
	if err != nil {
		return res, err
	}
	defer f.Close()

	sess, err := reg.NewSession(false, schema.WithLogger(log))
	if err != nil {
		return res, err
	}
	defer sess.Close()

	id := sess.ID().String()
	if store != nil {
		if err := store.Begin(ctx, sess, file); err != nil {
			return res, err
		}
	}

	err = schema.Decode(ctx, sess, f, func(_ int, _ []cellz.Cell, err error) error {
		res.rows++
		var rowErr *schema.RowError
		if !errors.As(err, &rowErr) {
			return nil
		}
		res.rejected++
		onReject(rowErr)
		if store != nil {
			if _, err := store.Record(ctx, id, rowErr); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	log.WithFields(logrus.Fields{
		"file":     file,
		"session":  id,
		"rows":     res.rows,
		"rejected": res.rejected,
	}).Info("checked")

	if store != nil {
		if err := store.Finish(ctx, id, res.rows, res.rejected); err != nil {
			return res, err
		}
	}
	return res, nil
}
