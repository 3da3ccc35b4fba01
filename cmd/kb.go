package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage knowledge base namespaces",
}

var kbCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show the number of records in the knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		count, err := store.Count(ctx, cfg.Namespace)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d records\n", cfg.Namespace, count)
		return nil
	},
}

var kbDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete every record in the knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteNamespace(ctx, cfg.Namespace); err != nil {
			return err
		}
		fmt.Printf("dropped namespace %q\n", cfg.Namespace)
		return nil
	},
}

func init() {
	kbCmd.AddCommand(kbCountCmd, kbDropCmd)
	rootCmd.AddCommand(kbCmd)
}
