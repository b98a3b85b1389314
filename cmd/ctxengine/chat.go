package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/easyops/contextengine-go/pkg/engine"
)

func chatCmd() *cobra.Command {
	var (
		entity  int64
		session string
		stream  bool
		persist bool
		extra   []string
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Run one conversational turn with assembled context",
		Long: `Run one conversational turn. The entity is taken from --entity or
resolved from mentions such as "客户 12" in the message. Info queries are
answered from stored data without calling the model.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := engine.ChatRequest{
				EntityID:       entity,
				Message:        strings.Join(args, " "),
				SessionID:      session,
				ExtraKnowledge: extra,
				Persist:        persist,
			}
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				w := cmd.OutOrStdout()
				if !stream {
					reply, err := eng.Chat(ctx, req)
					if err != nil {
						return err
					}
					fmt.Fprintln(w, reply.Content)
					return nil
				}

				s, err := eng.ChatStream(ctx, req)
				if err != nil {
					return err
				}
				defer s.Close()
				for token := range s.Tokens() {
					fmt.Fprint(w, token)
				}
				fmt.Fprintln(w)
				return nil
			})
		},
	}

	cmd.Flags().Int64VarP(&entity, "entity", "e", 0, "entity id (default: resolve from the message)")
	cmd.Flags().StringVarP(&session, "session", "s", "", "session id used to load and store history")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the reply")
	cmd.Flags().BoolVar(&persist, "persist", false, "store the question and reply as entity data")
	cmd.Flags().StringArrayVar(&extra, "knowledge", nil, "extra knowledge snippet (repeatable)")
	return cmd
}
