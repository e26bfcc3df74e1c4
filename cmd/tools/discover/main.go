// Command discover drives a customer-discovery session from the terminal
// against the same store the API server uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/epiphany/backend/internal/app"
	"github.com/zhouzirui/epiphany/backend/internal/config"
)

var version = "dev"

var (
	flagStoreDriver string
	flagStorePath   string
	flagProvider    string
	flagVerbose     bool

	application *app.App
)

var rootCmd = &cobra.Command{
	Use:           "discover",
	Short:         "Run simulated customer-discovery interviews",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if !flagVerbose {
			log.SetOutput(io.Discard)
		}
		if err := godotenv.Load(); err != nil {
			log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("配置加载失败: %w", err)
		}
		applyOverrides(cfg)

		application, err = app.New(cmd.Context(), cfg, version)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if application == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := application.Close(ctx)
		application = nil
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "discover %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagStoreDriver, "store", "", "Store driver override (memory, pebble, postgres)")
	rootCmd.PersistentFlags().StringVar(&flagStorePath, "store-path", "", "Pebble data directory override")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "AI provider override (openai, ark, anthropic, gemini, fake)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Show service logs")
	rootCmd.AddCommand(versionCmd)
}

func applyOverrides(cfg *config.Config) {
	if flagStoreDriver != "" {
		cfg.Store.Driver = flagStoreDriver
	}
	if flagStorePath != "" {
		cfg.Store.Path = flagStorePath
	}
	if flagProvider != "" {
		cfg.AI.Provider = flagProvider
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
