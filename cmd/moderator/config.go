package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/conf"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate environment, instructions and chat overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := conf.LoadFromEnv()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if _, err := conf.LoadInstructions(cfg.InstructionsPath); err != nil {
				return err
			}
			chats, err := conf.LoadChats(cfg.ChatsPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state db:      %s\n", cfg.Store.DBPath)
			fmt.Fprintf(out, "instructions:  %s\n", cfg.InstructionsPath)
			fmt.Fprintf(out, "chat overrides: %d\n", len(chats.Chats))
			fmt.Fprintf(out, "review actions: %v\n", cfg.ReviewActions())
			fmt.Fprintln(out, "ok")
			return nil
		},
	})
	return cmd
}
