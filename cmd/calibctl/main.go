// calibctl 运维命令行：数据库迁移、离线计算校准表、初始化管理员账号
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/config"
	applogger "github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "calibctl",
	Short:         "CaliFlow 运维工具",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（默认 ./config/config.yaml）")

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newGridCmd())
	rootCmd.AddCommand(newSeedAdminCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}

// loadEnv 读取配置并构造日志；仅需要数据库的子命令调用
func loadEnv() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, logger, nil
}
