// Command kitshop is a terminal storefront client. It keeps the shopper's
// cart session and sign-in token in a local state file and talks to the
// storefront API.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fjod/aquakit/internal/client"
	"github.com/fjod/aquakit/internal/identity"
	"github.com/fjod/aquakit/internal/localstore"
	"github.com/fjod/aquakit/internal/store"
	"github.com/fjod/aquakit/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	apiURL    string
	statePath string
	timeout   time.Duration
	verbose   bool
)

// app is built once per invocation by the root command.
type app struct {
	log     *zap.Logger
	api     *client.Client
	tracker *identity.Tracker
	cart    *store.Store
}

var shop *app

var rootCmd = &cobra.Command{
	Use:           "kitshop",
	Short:         "Shop for water-quality test kits from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		shop = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if shop != nil {
			_ = shop.log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("KITSHOP_API", "http://localhost:8080"), "Storefront API base URL")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", os.Getenv("KITSHOP_STATE"), "Local state file (default: user config dir)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(cartCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(ordersCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(shellCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() (*app, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	log, err := logger.New("kitshop", level, false)
	if err != nil {
		return nil, err
	}

	path := statePath
	if path == "" {
		if path, err = localstore.DefaultPath(); err != nil {
			return nil, err
		}
	}
	storage := localstore.NewFileStorage(path)

	api := client.New(apiURL, timeout)
	tracker := identity.NewTracker(storage, log)
	return &app{
		log:     log,
		api:     api,
		tracker: tracker,
		cart:    store.New(api, tracker, storage, log),
	}, nil
}

// principal is the account when signed in, otherwise an error telling the
// shopper to log in.
func (a *app) principal() (store.Principal, error) {
	id, err := a.tracker.Current()
	if err != nil {
		return store.Principal{}, fmt.Errorf("%w: run 'kitshop login --token <jwt>'", store.ErrNotSignedIn)
	}
	return store.Principal{Owner: accountOwner(id), Token: id.Token}, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
