package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/internal/market"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "更新观察池净值与指数行情",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.runUpdate(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("更新完成: %d 只基金, %d 个指数, 失败 %d, 耗时 %s\n",
			res.FundsUpdated, res.IndicesUpdated, len(res.Failures), res.Elapsed.Round(time.Millisecond))
		for _, f := range res.Failures {
			fmt.Printf("  失败: %s\n", f)
		}
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "执行市场分析",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return a.runAnalyze(cmd.Context())
	},
}

var watchlistCmd = &cobra.Command{
	Use:   "watchlist [add|remove|list]",
	Short: "管理基金观察池",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		ctx := cmd.Context()

		if len(args) >= 2 && args[0] == "add" {
			reason := strings.Join(args[2:], " ")
			item := domain.WatchItem{
				FundCode:     args[1],
				AddedDate:    time.Now().Format("2006-01-02"),
				Reason:       reason,
				TargetAction: "watch",
				Category:     domain.CategoryEquity,
			}
			if err := a.watchlist.Add(ctx, item); err != nil {
				return err
			}
			fmt.Printf("已添加 %s 到观察池\n", args[1])
			return nil
		}
		if len(args) >= 2 && args[0] == "remove" {
			if err := a.watchlist.Remove(ctx, args[1]); err != nil {
				return err
			}
			fmt.Printf("已从观察池移除 %s\n", args[1])
			return nil
		}

		items, err := a.watchlist.List(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("观察池为空。添加基金: pixiu watchlist add <基金代码> [原因]")
			return nil
		}

		counts, err := a.watchlist.CategoryCounts(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("分类统计: %s | 合计 %d\n\n", categoryStats(counts), len(items))
		for _, it := range items {
			fmt.Printf("  %s  %-4s  %s  %s\n",
				it.FundCode, it.Category.DisplayName(), it.AddedDate, it.Reason)
		}
		return nil
	},
}

var (
	tradeCode   string
	tradeAction string
	tradeAmount float64
	tradeNAV    float64
	tradeDate   string
	tradeReason string
)

var recordTradeCmd = &cobra.Command{
	Use:   "record-trade",
	Short: "记录已执行的交易",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		t, err := a.book.RecordTrade(cmd.Context(), domain.Trade{
			FundCode: tradeCode,
			Action:   tradeAction,
			Amount:   tradeAmount,
			NAV:      tradeNAV,
			Date:     tradeDate,
			Reason:   tradeReason,
		})
		if err != nil {
			return err
		}
		fmt.Printf("交易已记录: %s %s %.2f RMB @ %.4f (份额 %.2f)\n",
			t.Action, t.FundCode, t.Amount, t.NAV, t.Shares)
		return nil
	},
}

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "查看当前组合状态并生成快照",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return a.runPortfolio(cmd.Context())
	},
}

func init() {
	recordTradeCmd.Flags().StringVar(&tradeCode, "code", "", "基金代码")
	recordTradeCmd.Flags().StringVar(&tradeAction, "action", "", "操作 (buy/sell)")
	recordTradeCmd.Flags().Float64Var(&tradeAmount, "amount", 0, "金额 (RMB)")
	recordTradeCmd.Flags().Float64Var(&tradeNAV, "nav", 0, "成交净值")
	recordTradeCmd.Flags().StringVar(&tradeDate, "date", "", "交易日期 (YYYY-MM-DD, 默认今天)")
	recordTradeCmd.Flags().StringVar(&tradeReason, "reason", "", "备注")
	_ = recordTradeCmd.MarkFlagRequired("code")
	_ = recordTradeCmd.MarkFlagRequired("action")
	_ = recordTradeCmd.MarkFlagRequired("amount")
	_ = recordTradeCmd.MarkFlagRequired("nav")

	rootCmd.AddCommand(updateCmd, analyzeCmd, watchlistCmd, recordTradeCmd, portfolioCmd)
}

// runUpdate seeds the configured fund universe into the watchlist,
// then refreshes NAV and index history.
func (a *app) runUpdate(ctx context.Context) (market.UpdateResult, error) {
	for category, seeds := range a.cfg.Universe.All() {
		for _, seed := range seeds {
			if err := a.funds.Upsert(ctx, domain.Fund{Code: seed.Code, Name: seed.Name}); err != nil {
				return market.UpdateResult{}, err
			}
			existing, err := a.watchlist.Get(ctx, seed.Code)
			if err != nil {
				return market.UpdateResult{}, err
			}
			if existing != nil {
				continue
			}
			err = a.watchlist.Add(ctx, domain.WatchItem{
				FundCode:     seed.Code,
				AddedDate:    time.Now().Format("2006-01-02"),
				Reason:       "种子基金池",
				TargetAction: "watch",
				Category:     domain.Category(category),
			})
			if err != nil {
				return market.UpdateResult{}, err
			}
		}
	}
	return a.updater.Run(ctx)
}

func (a *app) runAnalyze(ctx context.Context) error {
	fmt.Println("\n═══ 市场分析 ═══")

	regimes := a.detector.DetectAll(ctx, domain.Categories())
	cats := make([]string, 0, len(regimes))
	for c := range regimes {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	fmt.Println("\n市场状态:")
	for _, c := range cats {
		r := regimes[domain.Category(c)]
		fmt.Printf("  %-6s %s (%s)\n", domain.Category(c).DisplayName(), r.DisplayName(), r)
	}

	fmt.Println("\n主要指数:")
	for _, ref := range a.cfg.Benchmark {
		bars, err := a.indices.Bars(ctx, ref.Code, 2)
		if err != nil || len(bars) == 0 {
			fmt.Printf("  %s: 暂无数据\n", ref.Name)
			continue
		}
		latest := bars[len(bars)-1]
		if len(bars) >= 2 && bars[len(bars)-2].Close > 0 {
			prev := bars[len(bars)-2].Close
			fmt.Printf("  %s: %.2f (%+.2f%%)  %s\n",
				ref.Name, latest.Close, (latest.Close-prev)/prev*100, latest.Date)
		} else {
			fmt.Printf("  %s: %.2f  %s\n", ref.Name, latest.Close, latest.Date)
		}
	}

	items, err := a.watchlist.List(ctx)
	if err != nil {
		return err
	}
	fundData, err := a.funds.LoadFundData(ctx, items, 400)
	if err != nil {
		return err
	}
	if len(fundData) == 0 {
		fmt.Println("\n暂无基金净值数据，请先执行 pixiu update")
		return nil
	}

	state, err := a.detector.Detect(ctx, domain.CategoryEquity)
	if err != nil {
		state = domain.RegimeState{Regime: domain.RegimeRanging, Volatility: 0.2}
	}
	enrich := a.enrichment.FetchAll(ctx)
	md := &domain.MarketData{
		GlobalRegime:    state.Regime,
		CategoryRegimes: regimes,
		Valuation:       enrich.Valuation,
		Macro:           enrich.Macro,
		ManagerScores:   enrich.ManagerScores,
		DataQuality:     enrich.DataQuality,
	}
	weights, err := a.learner.LearnedWeights(ctx, state.Regime)
	if err != nil {
		weights = nil
	}

	signals := a.guard.Apply(ctx, a.composite.Generate(ctx, fundData, md, weights))
	if len(signals) == 0 {
		fmt.Println("\n复合信号: 无 (各策略未达成一致)")
	} else {
		fmt.Printf("\n复合信号 (%d 条):\n", len(signals))
		for _, sig := range signals {
			fmt.Printf("  [%s] %s 置信度 %.0f%% — %s\n",
				sig.Type, sig.FundCode, sig.Confidence*100, sig.Reason)
		}
	}

	scores, err := a.scorer.ScoreAll(ctx)
	if err != nil {
		return err
	}
	if len(scores) > 0 {
		if len(scores) > 10 {
			scores = scores[:10]
		}
		fmt.Println("\n基金质量评分 Top 10:")
		fmt.Println("  代码     总分   收益  风控  稳定  费率  基金")
		for _, sc := range scores {
			fmt.Printf("  %-8s %5.1f  %4.1f  %4.1f  %4.1f  %4.1f  [%s] %s\n",
				sc.FundCode, sc.Total, sc.Return, sc.Risk, sc.Stability, sc.Fee,
				sc.Category.DisplayName(), sc.Name)
		}
	}
	return nil
}

func (a *app) runPortfolio(ctx context.Context) error {
	cash, err := a.book.LatestCash(ctx, a.cfg.Account.CurrentCash)
	if err != nil {
		return err
	}
	acct, err := a.book.AccountState(ctx, cash, a.cfg.Account.InitialCapital)
	if err != nil {
		return err
	}
	if err := a.book.SaveSnapshot(ctx, acct); err != nil {
		return err
	}

	names := make(map[string]string, len(acct.Holdings))
	for _, h := range acct.Holdings {
		if f, err := a.funds.Get(ctx, h.FundCode); err == nil && f != nil {
			names[h.FundCode] = f.Name
		}
	}
	path, err := a.reports.Portfolio(acct, names)
	if err != nil {
		return err
	}

	fmt.Printf("总资产 %.2f RMB | 现金 %.2f | 已投资 %.2f | 收益 %+.2f%%\n",
		acct.TotalValue, acct.Cash, acct.Invested, acct.ReturnPct)
	fmt.Printf("持仓 %d 只 | 报告: %s\n", len(acct.Holdings), path)
	return nil
}

func categoryStats(counts map[domain.Category]int) string {
	keys := make([]string, 0, len(counts))
	for c := range counts {
		keys = append(keys, string(c))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		c := domain.Category(k)
		parts = append(parts, fmt.Sprintf("%s %d", c.DisplayName(), counts[c]))
	}
	return strings.Join(parts, " | ")
}
