package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zoobzio/cellz"
	"github.com/zoobzio/cellz/schema"
)

var (
	formatFlags schemaFlags

	formatCmd = &cobra.Command{
		Use:   "format --schema FILE file",
		Short: "Rewrite a CSV file in the schema's output format",
		Long: `Read a file through the input chains of the schema and write every
accepted row back through the output chains, so numbers, dates and booleans
come out in their configured output form. Rejected rows are reported on
stderr and left out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := formatFlags.compile(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return reformat(cmd.Context(), f, cmd.OutOrStdout(), cmd.ErrOrStderr(), reg, formatFlags.skip(cmd))
		},
	}
)

func init() {
	formatFlags.register(formatCmd, true)
}

func reformat(ctx context.Context, in io.Reader, out, errOut io.Writer, reg *schema.Registry, skipValidation bool) error {
	reader, err := reg.NewSession(false, schema.WithLogger(log))
	if err != nil {
		return err
	}
	defer reader.Close()
	writer, err := reg.NewSession(skipValidation, schema.WithLogger(log))
	if err != nil {
		return err
	}
	defer writer.Close()

	w := csv.NewWriter(out)
	if reg.HasHeader() {
		if err := w.Write(writer.Header()); err != nil {
			return err
		}
	}

	rejected := 0
	err = schema.Decode(ctx, reader, in, func(line int, values []cellz.Cell, err error) error {
		if err == nil {
			var record []string
			record, err = writer.WriteRow(ctx, values)
			if err == nil {
				return w.Write(record)
			}
		}
		var rowErr *schema.RowError
		if !errors.As(err, &rowErr) {
			return err
		}
		rejected++
		if rowErr.Err != nil {
			fmt.Fprintf(errOut, "line %d: %v\n", line, rowErr.Err)
		}
		for _, ce := range rowErr.Errors {
			fmt.Fprintf(errOut, "line %d: %v\n", line, ce)
		}
		return nil
	})
	w.Flush()
	if err != nil {
		return err
	}
	if err := w.Error(); err != nil {
		return err
	}
	if rejected > 0 {
		return fmt.Errorf("%w: %d", errRejected, rejected)
	}
	return nil
}
