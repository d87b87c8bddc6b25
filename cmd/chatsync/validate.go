package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/tutorchat/internal/config"
	"github.com/capitalize-ai/tutorchat/internal/validation"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [message]",
		Short: "Check a message body against the send rules",
		Long:  "Checks a message body offline. With no argument the body is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body string
			if len(args) == 1 {
				body = args[0]
			} else {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read message: %w", err)
				}
				body = strings.TrimRight(string(raw), "\n")
			}
			return runValidate(cmd.OutOrStdout(), config.Load(), body)
		},
	}
}

func runValidate(w io.Writer, cfg *config.Config, body string) error {
	v := validation.New(rulesFromConfig(cfg))
	clean, err := v.Body(body)
	if err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			return errors.New(verr.Message)
		}
		return err
	}
	fmt.Fprintf(w, "ok (%d characters)\n", len([]rune(clean)))
	return nil
}

func rulesFromConfig(cfg *config.Config) validation.Rules {
	return validation.Rules{
		MaxLength:      cfg.MaxBodyLength,
		ShoutingLimit:  cfg.ShoutingLimit,
		MaxRepeatedRun: cfg.MaxRepeatedRun,
	}
}
