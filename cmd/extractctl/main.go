// Command extractctl runs product extraction from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/diysmart/productinfo/config"
	"github.com/diysmart/productinfo/internal/app"
	"github.com/diysmart/productinfo/internal/domain"
	"github.com/diysmart/productinfo/internal/infrastructure/logger"
	"github.com/diysmart/productinfo/internal/usecase"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "extractctl",
		Short: "Extract structured product information from retailer URLs",
		Long: `extractctl runs the product extraction pipeline locally.
Configuration is read the same way as the server: config.yaml, PRODUCTINFO_* env vars and .env.`,
		SilenceUsage: true,
	}

	root.AddCommand(newExtractCmd(), newClassifyCmd())
	return root
}

// newExtractCmd creates the extract command.
func newExtractCmd() *cobra.Command {
	var (
		imagePath string
		timeout   time.Duration
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Extract a product record",
		Long: `Extract a normalized product record for a product page URL.
An optional screenshot enables the vision strategy first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var image []byte
			if imagePath != "" {
				b, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
				image = b
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			level := "error"
			if verbose {
				level = "debug"
			}
			log, err := logger.New(logger.Config{Level: level, OutputPaths: []string{"stderr"}})
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			a, err := app.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			ext, err := a.Coordinator.Extract(ctx, args[0], image)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"product":              ext.Record,
				"attempted_strategies": domain.FailureKinds(ext.Attempts),
				"attempts":             ext.Attempts,
			})
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "path to a screenshot of the product page")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall deadline, e.g. 45s")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log strategy attempts to stderr")
	return cmd
}

// newClassifyCmd creates the classify command.
func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <url>",
		Short: "Show the merchant and strategy order for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := usecase.ClassifyURL(args[0])
			if err != nil {
				return err
			}
			out := map[string]any{
				"merchant":       c.Merchant,
				"canonical_host": c.CanonicalHost,
				"short_link":     c.ShortLink,
				"strategy_order": usecase.StrategyOrder(c, false),
			}
			if id := usecase.ParseURLIdentity(c); id.ItemID != "" || id.Slug != "" {
				out["item_id"] = id.ItemID
				out["slug"] = id.Slug
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return config.Load()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
