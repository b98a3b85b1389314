// Command ctxengine 在命令行上运行上下文引擎的各项操作
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/easyops/contextengine-go/pkg/core/config"
	"github.com/easyops/contextengine-go/pkg/engine"
)

var (
	configPath string
	dbPath     string
	jsonOutput bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ctxengine",
		Short:         "Context retrieval and assembly engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.yaml, .toml, .json)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite database path (overrides storage config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(retrieveCmd())
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(infoCmd())
	rootCmd.AddCommand(structuredCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(compressCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(kbCmd())
	rootCmd.AddCommand(summarizeCmd())
	rootCmd.AddCommand(progressionCmd())
	rootCmd.AddCommand(replyCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(healthCmd())
	return rootCmd
}

// openEngine 按全局参数创建引擎，调用方负责 Close
func openEngine(ctx context.Context) (*engine.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.Storage.Driver = "sqlite"
		cfg.Storage.DSN = dbPath
	}
	return engine.FromConfig(ctx, cfg)
}

// withEngine 打开引擎执行 fn，结束后释放资源
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *engine.Engine) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close(ctx)
	return fn(ctx, eng)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
