package main

import (
	"github.com/joeycumines/go-fpguard/catalog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCatalogCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the effective catalog, as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCatalog(file)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(c); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&file, "catalog", "", "catalog file, validated and printed instead of the default")
	return cmd
}

func loadCatalog(file string) (*catalog.Catalog, error) {
	if file == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(file)
}
