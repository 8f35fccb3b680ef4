package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/athang/pixiu/internal/advisor"
	"github.com/athang/pixiu/internal/events"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "生成今日交易建议 (量化信号 + LLM 裁决)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		_, err = a.runRecommend(cmd.Context())
		return err
	},
}

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "日常例行流程: 学习 → 反思 → 更新 → 建议 → 快照",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return a.runDaily(cmd.Context())
	},
}

var reflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "LLM 反思复盘已到期的历史决策",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		outcome, err := a.reflector.Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("反思完成: 复盘 %d 条决策, 沉淀 %d 条教训, 消耗 %d tokens\n",
			outcome.Reviewed, outcome.Lessons, outcome.Tokens)
		return nil
	},
}

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "查看知识库",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		entries, err := a.knowledge.All(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("知识库为空，反思复盘后将自动积累。")
			return nil
		}
		fmt.Printf("\n═══ 知识库 (%d 条) ═══\n\n", len(entries))
		for _, e := range entries {
			fmt.Printf("  [%s] %s (验证 %d 次, %s)\n",
				e.Category, e.Content, e.TimesValidated, e.CreatedAt)
		}
		return nil
	},
}

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "验证历史信号并更新策略表现",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.runLearning(cmd.Context()); err != nil {
			return err
		}
		stats, err := a.learner.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("信号总数 %d | 已验证 %d | 待验证 %d\n",
			stats.TotalSignals, stats.Validated, stats.Pending)
		return nil
	},
}

var llmCmd = &cobra.Command{
	Use:   "llm [gemini|anthropic]",
	Short: "查看或切换 LLM 后端",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			if args[0] != "gemini" && args[0] != "anthropic" {
				return fmt.Errorf("未知的 LLM 后端 %q, 可选 gemini/anthropic", args[0])
			}
			if err := persistProvider(args[0]); err != nil {
				return err
			}
			fmt.Printf("已切换到 %s\n", args[0])
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		fmt.Println("\n═══ LLM 配置 ═══")
		fmt.Printf("  当前后端: %s\n", a.cfg.LLM.Provider)
		fmt.Printf("  分析模型: %s  (市场摘要)\n", a.gateway.AnalysisModel())
		fmt.Printf("  决策模型: %s  (反思/情景)\n", a.gateway.DecisionModel())
		fmt.Printf("  关键模型: %s  (核心决策)\n", a.gateway.CriticalModel())

		counts, err := a.watchlist.CategoryCounts(cmd.Context())
		if err != nil {
			return err
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		if total > 0 {
			fmt.Printf("\n  基金池: %s | 合计 %d\n", categoryStats(counts), total)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recommendCmd, dailyCmd, reflectCmd, knowledgeCmd, learnCmd, llmCmd)
}

func (a *app) runRecommend(ctx context.Context) (*advisor.Advisory, error) {
	adv, err := a.advisor.Recommend(ctx)
	if err != nil {
		return nil, err
	}

	fmt.Printf("\n═══ %s | %s | %s ═══\n", adv.Date, adv.Mode.DisplayName(), adv.Regime.DisplayName())
	if adv.Note != "" {
		fmt.Printf("\n%s\n", adv.Note)
	}
	for _, rec := range adv.Recommendations {
		fmt.Printf("\n  %s %s (%s)", rec.ActionLabel, rec.FundName, rec.FundCode)
		if rec.Amount > 0 {
			fmt.Printf("  %.2f RMB", rec.Amount)
		}
		fmt.Printf("  置信度 %.0f%%\n    %s\n", rec.Confidence*100, rec.Reason)
	}

	if adv.Mode == advisor.ModeClosed {
		return adv, nil
	}

	path, err := a.reports.Advisory(adv)
	if err != nil {
		return nil, err
	}
	fmt.Printf("\n报告: %s\n", path)

	a.bus.Publish(events.AdvisoryReady, map[string]interface{}{
		"date": adv.Date,
		"mode": string(adv.Mode),
	})
	return adv, nil
}

// runDaily chains the full routine; individual stage failures are
// logged and skipped so one flaky upstream cannot kill the day.
func (a *app) runDaily(ctx context.Context) error {
	fmt.Println("\n═══ 貔貅日常分析流程 ═══")

	fmt.Println("\n步骤 1/5: 学习进化")
	if err := a.runLearning(ctx); err != nil {
		a.log.Warn().Err(err).Msg("学习阶段失败，继续")
	}

	fmt.Println("\n步骤 2/5: LLM 反思复盘")
	if outcome, err := a.reflector.Run(ctx); err != nil {
		a.log.Warn().Err(err).Msg("反思阶段失败，继续")
	} else if outcome.Reviewed > 0 {
		fmt.Printf("  复盘 %d 条决策\n", outcome.Reviewed)
	}

	fmt.Println("\n步骤 3/5: 更新市场数据")
	if res, err := a.runUpdate(ctx); err != nil {
		a.log.Warn().Err(err).Msg("行情更新失败，继续")
	} else {
		fmt.Printf("  %d 只基金, %d 个指数\n", res.FundsUpdated, res.IndicesUpdated)
	}

	fmt.Println("\n步骤 4/5: 生成建议")
	if _, err := a.runRecommend(ctx); err != nil {
		return err
	}

	fmt.Println("\n步骤 5/5: 组合快照")
	if err := a.runPortfolio(ctx); err != nil {
		a.log.Warn().Err(err).Msg("组合快照失败")
	}

	fmt.Println("\n═══ 日常分析完成 ═══")
	return nil
}

func (a *app) runLearning(ctx context.Context) error {
	n, err := a.learner.ValidatePending(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		fmt.Printf("  验证了 %d 条历史信号\n", n)
	}
	return a.learner.UpdatePerformance(ctx)
}

// persistProvider rewrites LLM_PROVIDER in .env, keeping other keys.
func persistProvider(provider string) error {
	env, err := godotenv.Read()
	if err != nil {
		env = map[string]string{}
	}
	env["LLM_PROVIDER"] = provider
	return godotenv.Write(env, ".env")
}
