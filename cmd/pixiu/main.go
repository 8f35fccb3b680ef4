// Command pixiu is the CLI for the fund advisory system: market data
// refresh, quantitative analysis, LLM-backed recommendations, learning
// loops and the long-running scheduler/API service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "pixiu",
	Short: "貔貅 — 个人基金智能投顾",
	Long: `貔貅是面向中国开放式基金市场的单用户量化投顾。
它跟踪观察池基金的净值与指数行情，叠加估值/宏观/基金经理数据，
用多策略加权复合信号与 LLM 三步决策流程生成每日操作建议，
并通过信号验证与反思复盘持续进化。`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "配置文件路径 (默认 ./pixiu.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
