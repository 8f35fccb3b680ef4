package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/athang/pixiu/internal/backtest"
	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/internal/strategy"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "回测趋势策略 (逐基金独立账本)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		fundData, err := a.loadFundData(cmd.Context())
		if err != nil {
			return err
		}

		engine := backtest.NewEngine(strategy.NewTrendFollowing(), a.cfg.Account.InitialCapital, a.log)
		res := engine.Run(cmd.Context(), fundData)

		fmt.Printf("\n═══ 回测结果: %s ═══\n\n", res.StrategyName)
		fmt.Printf("  总收益率:   %+.2f%%\n", res.TotalReturn)
		fmt.Printf("  年化收益率: %+.2f%%\n", res.AnnualizedReturn)
		fmt.Printf("  最大回撤:   %.2f%%\n", res.MaxDrawdown)
		fmt.Printf("  胜率:       %.1f%% (%d/%d)\n", res.WinRate, res.ProfitTrades, res.TotalTrades)
		if res.TotalTrades == 0 {
			fmt.Println("\n  无交易产生: 净值历史不足或信号未触发。")
		}
		return nil
	},
}

var walkForwardCmd = &cobra.Command{
	Use:   "walk-forward",
	Short: "滚动窗口验证策略稳健性",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		fundData, err := a.loadFundData(cmd.Context())
		if err != nil {
			return err
		}

		res := backtest.WalkForward(fundData, 0, 0)
		if res.Windows == 0 {
			fmt.Println("净值历史不足 (至少需要 200 条), 请先执行 pixiu update")
			return nil
		}

		fmt.Printf("\n═══ Walk-Forward 验证: %s ═══\n\n", res.StrategyName)
		fmt.Printf("  窗口数:     %d (有效 %d)\n", res.Windows, res.ActiveWindows)
		fmt.Printf("  平均收益:   %+.2f%%\n", res.AvgReturn)
		fmt.Printf("  最差/最好:  %+.2f%% / %+.2f%%\n", res.WorstReturn, res.BestReturn)
		fmt.Printf("  方向胜率:   %.1f%%\n", res.WinRate)
		fmt.Printf("  稳健性评分: %.0f / 100\n", res.RobustnessScore)
		return nil
	},
}

var monteCarloSims int

var monteCarloCmd = &cobra.Command{
	Use:   "monte-carlo",
	Short: "蒙特卡洛重排交易序列评估风险分布",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		fundData, err := a.loadFundData(cmd.Context())
		if err != nil {
			return err
		}

		engine := backtest.NewEngine(strategy.NewTrendFollowing(), a.cfg.Account.InitialCapital, a.log)
		bt := engine.Run(cmd.Context(), fundData)
		pnls := backtest.SellPnLs(bt)

		res := backtest.MonteCarlo(pnls, monteCarloSims, a.cfg.Account.InitialCapital, nil)
		if res.Simulations == 0 {
			fmt.Printf("交易样本不足 (%d 笔, 至少需要 3 笔), 无法模拟。\n", len(pnls))
			return nil
		}

		fmt.Printf("\n═══ 蒙特卡洛模拟 (%d 次, %d 笔交易) ═══\n\n", res.Simulations, res.TradeCount)
		fmt.Printf("  中位收益:   %+.2f%%\n", res.MedianReturn)
		fmt.Printf("  5%%/95%% 分位: %+.2f%% / %+.2f%%\n", res.Percentile5, res.Percentile95)
		fmt.Printf("  最差情形:   %+.2f%% (回撤 %.2f%%)\n", res.WorstReturn, res.WorstMaxDrawdown)
		fmt.Printf("  盈利概率:   %.1f%%\n", res.ProfitProbability)
		fmt.Printf("  稳健性评分: %.0f / 100\n", res.RobustnessScore)
		return nil
	},
}

func init() {
	monteCarloCmd.Flags().IntVar(&monteCarloSims, "sims", 1000, "模拟次数")
	rootCmd.AddCommand(backtestCmd, walkForwardCmd, monteCarloCmd)
}

func (a *app) loadFundData(ctx context.Context) ([]*domain.FundData, error) {
	items, err := a.watchlist.List(ctx)
	if err != nil {
		return nil, err
	}
	return a.funds.LoadFundData(ctx, items, 500)
}
