package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"backoffice/pkg/config"
	"backoffice/pkg/fieldpath"
)

func newFieldsCmd(_ *options) *cobra.Command {
	var (
		schemaPath string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Print the default and nested field lists of the search schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if schemaPath == "" {
				cfg, err := config.GetConfig()
				if err != nil {
					return err
				}
				schemaPath = cfg.Search.SchemaPath
			}

			fields, err := fieldpath.Load(schemaPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if all {
				fmt.Fprintln(out, "# all")
				for _, f := range fields.All {
					fmt.Fprintln(out, f)
				}
			}
			fmt.Fprintln(out, "# default")
			for _, f := range fields.Default {
				fmt.Fprintln(out, f)
			}
			fmt.Fprintln(out, "# nested")
			for _, f := range fields.Nested {
				fmt.Fprintln(out, f)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "Schema file (defaults to search.schema_path, then the built-in schema)")
	cmd.Flags().BoolVar(&all, "all", false, "Also print every leaf path")
	return cmd
}
