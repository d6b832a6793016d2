package main

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/zoobzio/cellz"
	"github.com/zoobzio/cellz/schema"
)

var (
	describeFlags   schemaFlags
	describeVerbose bool

	describeCmd = &cobra.Command{
		Use:   "describe --schema FILE",
		Short: "Show the chains a schema compiles to",
		Long: `Compile the schema and print the input and output chain of every column,
stage by stage. With --verbose the normalized field configuration is dumped
as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := describeFlags.compile(cmd)
			if err != nil {
				return err
			}
			return describe(cmd.OutOrStdout(), reg, describeFlags.skip(cmd), describeVerbose)
		},
	}
)

func init() {
	describeFlags.register(describeCmd, true)
	describeCmd.Flags().BoolVarP(&describeVerbose, "verbose", "v", false, "Dump normalized field configuration")
}

func describe(out io.Writer, reg *schema.Registry, skipValidation, verbose bool) error {
	sess, err := reg.NewSession(skipValidation, schema.WithLogger(log))
	if err != nil {
		return err
	}
	defer sess.Close()

	name := reg.Name()
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(out, "schema %s: %d columns, header %t\n", name, reg.Width(), reg.HasHeader())

	dump := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
	for _, f := range reg.Fields() {
		fmt.Fprintf(out, "\n[%d] %s (%s)\n", f.Position, f.Column.HeaderLabel(), f.Spec.Type)
		input, _ := sess.Chain(f.Spec.Name, cellz.Input)
		output, _ := sess.Chain(f.Spec.Name, cellz.Output)
		fmt.Fprintf(out, "  %s\n  %s\n", input, output)
		if verbose {
			fmt.Fprint(out, dump.Sdump(f.Spec))
		}
	}
	return nil
}
