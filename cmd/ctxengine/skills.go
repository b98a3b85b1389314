package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/easyops/contextengine-go/pkg/engine"
	"github.com/easyops/contextengine-go/pkg/skill"
)

func summarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize [entity-id]",
		Short: "Generate the entity profile and save it back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				sum, err := eng.Summarize(ctx, id)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), sum)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "stage: %s\n", sum.Stage)
				if sum.RiskProfile != "" {
					fmt.Fprintf(w, "risk:  %s\n", sum.RiskProfile)
				}
				fmt.Fprintln(w, sum.Summary)
				return nil
			})
		},
	}
}

func progressionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progression [entity-id]",
		Short: "Judge whether the deal is ready to move forward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				p, err := eng.EvaluateProgression(ctx, id)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), p)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s: %s\n", p.Recommendation, p.Reason)
				for _, b := range p.KeyBlockers {
					fmt.Fprintf(w, "  - %s\n", b)
				}
				if p.NextStep != "" {
					fmt.Fprintf(w, "next: %s\n", p.NextStep)
				}
				return nil
			})
		},
	}
}

func replyCmd() *cobra.Command {
	var intent string

	cmd := &cobra.Command{
		Use:   "reply [entity-id] [chat-context]",
		Short: "Suggest a reply to send to the entity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			req := skill.ReplyRequest{EntityID: id, Intent: intent, ChatContext: strings.Join(args[1:], " ")}
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				s, err := eng.SuggestReply(ctx, req)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), s)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, s.SuggestedReply)
				if s.Rationale != "" {
					fmt.Fprintf(w, "rationale: %s\n", s.Rationale)
				}
				if s.RiskAlert != "" {
					fmt.Fprintf(w, "risk: %s\n", s.RiskAlert)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&intent, "intent", "", "what the reply should achieve")
	return cmd
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage keyword rules that trigger skills",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add [keyword] [skill]",
		Short: "Add a rule (skill: risk_analysis or deal_evaluation)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				rule, err := eng.AddRoutingRule(ctx, args[0], skill.Name(args[1]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added rule %d\n", rule.ID)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				rules, err := eng.Store().ListRoutingRules(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), rules)
				}
				for _, r := range rules {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", r.ID, r.Keyword, r.Skill)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm [id]",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				if err := eng.Store().DeleteRoutingRule(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted rule %d\n", id)
				return nil
			})
		},
	})
	return cmd
}

func healthCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the configured model endpoint answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				status := eng.CheckHealth(ctx, timeout)
				if jsonOutput {
					if err := printJSON(cmd.OutOrStdout(), status); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s/%s healthy=%t latency=%s\n",
						status.Provider, status.Model, status.Healthy, status.Latency.Round(time.Millisecond))
				}
				if !status.Healthy {
					return fmt.Errorf("model endpoint unhealthy: %s", status.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "request timeout (default 10s)")
	return cmd
}
