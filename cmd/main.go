package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"bwhelper/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "bwhelper",
	Short:         "在线练习页面答题助手",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		setupLogging(cmd, cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "配置文件路径（.json / .yaml）")
	rootCmd.PersistentFlags().String("log-level", "", "日志级别: debug, info, warn, error（覆盖配置文件）")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(offlineCmd)
	rootCmd.AddCommand(extractCmd)
}

var loaded bool

// loadConfig 按 --config 加载配置单例，一个进程只加载一次
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.GetConfig()
	if loaded {
		return cfg, nil
	}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg.FilePath = path
	}
	if err := cfg.Load(); err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	loaded = true
	return cfg, nil
}

func setupLogging(cmd *cobra.Command, cfg *config.Config) {
	name, _ := cmd.Flags().GetString("log-level")
	if name == "" {
		name = cfg.LogLevel()
	}

	var level slog.Level
	switch strings.ToLower(name) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
