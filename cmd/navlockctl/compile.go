package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haukened/navlock/internal/navlock/common/log"
	"github.com/haukened/navlock/internal/navlock/gateways/wire"
	"github.com/haukened/navlock/internal/navlock/repos/settings"
	"github.com/haukened/navlock/internal/navlock/services/allowlist"
	"github.com/haukened/navlock/internal/navlock/services/compiler"
)

func newCompileCmd() *cobra.Command {
	var settingsPath string
	var compact bool

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the rule set a settings file compiles to, as declarativeNetRequest JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if settingsPath == "" {
				return errors.New("settings path is required")
			}
			logger := log.GetLogger()

			s, err := settings.New(settingsPath, logger).Load()
			if err != nil {
				return err
			}
			entries := allowlist.NewNormalizer(logger).Normalize(s.AllowedList)
			set, err := compiler.Assemble(entries)
			if err != nil {
				return err
			}

			codec := wire.NewIndentedDNRCodec()
			if compact {
				codec = wire.NewDNRCodec()
			}
			data, err := codec.EncodeRuleSet(set)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	cmd.Flags().StringVarP(&settingsPath, "settings", "s", "", "Path to the settings file")
	cmd.Flags().BoolVar(&compact, "compact", false, "Print compact JSON")

	return cmd
}
