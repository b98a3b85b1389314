package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/easyops/contextengine-go/pkg/engine"
	"github.com/easyops/contextengine-go/pkg/knowledge"
)

func kbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage knowledge base documents",
	}
	cmd.AddCommand(kbAddCmd())
	cmd.AddCommand(kbUpdateCmd())
	cmd.AddCommand(kbRmCmd())
	cmd.AddCommand(kbListCmd())
	return cmd
}

// contentArg 正文来自参数，或 --file 指定的文件
func contentArg(args []string, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return strings.Join(args, " "), nil
}

func kbAddCmd() *cobra.Command {
	var title, source, category, file string

	cmd := &cobra.Command{
		Use:   "add [content]",
		Short: "Add a document",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := contentArg(args, file)
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				doc, err := eng.Library().Add(ctx, title, content, source, category)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added document %d\n", doc.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "document title")
	cmd.Flags().StringVar(&source, "source", "manual", "document source")
	cmd.Flags().StringVar(&category, "category", "", "document category")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read content from file")
	return cmd
}

func kbUpdateCmd() *cobra.Command {
	var title, category, file string

	cmd := &cobra.Command{
		Use:   "update [id] [content]",
		Short: "Update a document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			content, err := contentArg(args[1:], file)
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				doc, err := eng.Library().Update(ctx, id, knowledge.DocumentUpdate{
					Title:    title,
					Content:  content,
					Category: category,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated document %d\n", doc.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVar(&category, "category", "", "new category")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read new content from file")
	return cmd
}

func kbRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm [id]",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				if err := eng.Library().Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted document %d\n", id)
				return nil
			})
		},
	}
}

func kbListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				docs, err := eng.Library().List(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), docs)
				}
				for _, d := range docs {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", d.ID, d.Category, d.Title)
				}
				return nil
			})
		},
	}
}
