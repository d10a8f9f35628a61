package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haukened/navlock/internal/navlock/common/log"
	"github.com/haukened/navlock/internal/navlock/domain"
	"github.com/haukened/navlock/internal/navlock/gateways/wire"
	"github.com/haukened/navlock/internal/navlock/repos/ruleengine"
	"github.com/haukened/navlock/internal/navlock/repos/ruleengine/bloom"
	"github.com/haukened/navlock/internal/navlock/repos/ruleengine/bolt"
	"github.com/haukened/navlock/internal/navlock/repos/ruleengine/lru"
)

// openEngine opens the rules db read side with the decision cache disabled.
// The caller must close the returned store.
func openEngine(dbPath string) (*ruleengine.Engine, ruleengine.Store, error) {
	if dbPath == "" {
		return nil, nil, errors.New("rules db path is required")
	}
	store, err := bolt.New(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open rules db: %w", err)
	}
	cache, err := lru.New(0)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	engine, err := ruleengine.New(ruleengine.Options{
		Store:   store,
		Cache:   cache,
		Factory: bloom.NewFactory(),
		Logger:  log.GetLogger(),
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return engine, store, nil
}

func newRulesCmd() *cobra.Command {
	var dbPath string
	var stats bool

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the rules installed in a rules db",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := openEngine(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()
			if stats {
				st, _ := engine.Stats()
				_, err := fmt.Fprintf(out, "rules=%d hosts=%d generation=%d updated=%s\n",
					st.Rules, st.Hosts, st.Generation, time.Unix(st.UpdatedUnix, 0).UTC().Format(time.RFC3339))
				return err
			}

			rules, err := engine.Rules()
			if err != nil {
				return err
			}
			data, err := wire.NewIndentedDNRCodec().EncodeRuleSet(domain.RuleSet{Rules: rules})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(data))
			return err
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the rules db")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print store counters instead of rules")

	return cmd
}
