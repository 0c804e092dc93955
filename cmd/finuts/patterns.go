package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tech1ee/finuts/internal/registry"
)

func patternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "List the built-in merchant pattern table",
		RunE: func(_ *cobra.Command, _ []string) error {
			r, err := registry.New(registry.DefaultGroups())
			if err != nil {
				return err
			}
			for _, group := range r.Groups() {
				fmt.Printf("%s (priority %d)\n", group.Name, group.Priority)
				for _, p := range group.Patterns {
					name := p.DisplayName
					if name == "" {
						name = "-"
					}
					fmt.Printf("  %-16s %-14s %.2f  %s\n", name, p.Category, p.Confidence, p.Pattern)
				}
			}
			return nil
		},
	}
}
