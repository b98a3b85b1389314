package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/engine"
	"github.com/easyops/contextengine-go/pkg/history"
	"github.com/easyops/contextengine-go/pkg/knowledge"
)

func retrieveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retrieve [entity-id] [query]",
		Short: "Select the stored entries relevant to a query",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			query := strings.Join(args[1:], " ")
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				out := eng.RetrieveContext(ctx, id, query)
				if out == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "(no relevant entries)")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func matchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match [entity-id] [query]",
		Short: "Match a query against the entity's imported tables and fields",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			query := strings.Join(args[1:], " ")
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				res, err := eng.MatchSchema(ctx, id, query)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), res)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "explicit: %s\n", strings.Join(res.ExplicitTables, ", "))
				fmt.Fprintf(w, "fuzzy:    %s\n", strings.Join(res.FuzzyTables, ", "))
				fmt.Fprintf(w, "field:    %s\n", strings.Join(res.FieldTables, ", "))
				fmt.Fprintf(w, "fields:   %s\n", strings.Join(res.MatchedFields, ", "))
				return nil
			})
		},
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [entity-id] [query]",
		Short: "Report whether a query only asks to view stored data",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			query := strings.Join(args[1:], " ")
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				fmt.Fprintln(cmd.OutOrStdout(), eng.IsInfoQuery(ctx, id, query))
				return nil
			})
		},
	}
}

func structuredCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "structured [entity-id] [query]",
		Short: "Render the entity profile and tables without calling the model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			query := strings.Join(args[1:], " ")
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				out, err := eng.BuildStructuredResponse(ctx, id, query)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func searchCmd() *cobra.Command {
	var (
		topK    int
		scripts bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Semantic search over the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				var hits []knowledge.Hit
				if scripts {
					hits = eng.SearchScripts(ctx, query, topK)
				} else {
					hits = eng.SearchKnowledge(ctx, query, topK)
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), hits)
				}
				if len(hits) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "(no hits)")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), knowledge.FormatHits(hits))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&topK, "top", "k", 0, "number of hits (0 uses the configured default)")
	cmd.Flags().BoolVar(&scripts, "scripts", false, "search the sales-talk library instead")
	return cmd
}

func compressCmd() *cobra.Command {
	var (
		input    string
		keepLast int
	)

	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Compress a JSON conversation ([{\"role\":..,\"content\":..}]) read from a file or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				msgs := eng.CompressRecords(ctx, records, keepLast)
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), msgs)
				}
				printMessages(cmd.OutOrStdout(), msgs)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&input, "file", "f", "", "conversation file (default stdin)")
	cmd.Flags().IntVar(&keepLast, "keep-last", 0, "turns kept verbatim (0 uses the configured default)")
	return cmd
}

func readRecords(stdin io.Reader, path string) ([]history.Record, error) {
	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var records []history.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return records, nil
}

func printMessages(w io.Writer, msgs []message.Message) {
	for _, m := range msgs {
		fmt.Fprintf(w, "[%s] %s\n", m.Role, m.Content)
	}
}
