// Command node是ai3chain节点的可执行入口，装配并运行internal/app里的全部子系统。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ai3chain/node/internal/app"
)

// Version由发布流程通过-ldflags注入，未注入时保持开发态标识。
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "node",
	Short: "ai3chain节点",
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "启动节点，阻塞直到收到SIGINT/SIGTERM",
	RunE:  runStart,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "打印版本号",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(Version)
		return nil
	},
}

func init() {
	startCmd.Flags().StringVar(&configPath, "config", "", "配置文件路径，留空则使用内置默认值")
	rootCmd.AddCommand(startCmd, versionCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	return app.Run(app.Params{ConfigPath: configPath})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
