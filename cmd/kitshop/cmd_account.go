package main

import (
	"errors"
	"fmt"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/fjod/aquakit/internal/identity"
	"github.com/fjod/aquakit/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	loginToken     string
	shipTo         domain.ShippingAddress
	idempotencyKey string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with an account token",
	Long: `Sign in with an account token. Items added before signing in are moved
into the account's cart. If the move fails, the anonymous cart is kept and
'kitshop login' can be run again.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Pay for the current cart",
	Long: `Pay for the current cart. The charged total is the cart subtotal plus
13% tax and a flat 9.99 shipping fee.

Re-running checkout with the same --key never charges twice.`,
	Args: cobra.NoArgs,
	RunE: runCheckout,
}

var ordersCmd = &cobra.Command{
	Use:   "orders [order-id]",
	Short: "List past orders, or show one order",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOrders,
}

var resultsCmd = &cobra.Command{
	Use:   "results [result-id]",
	Short: "List lab results, or show one result",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runResults,
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Account bearer token")
	_ = loginCmd.MarkFlagRequired("token")

	f := checkoutCmd.Flags()
	f.StringVar(&shipTo.Name, "name", "", "Recipient name")
	f.StringVar(&shipTo.Email, "email", "", "Contact email")
	f.StringVar(&shipTo.Phone, "phone", "", "Contact phone")
	f.StringVar(&shipTo.Street, "street", "", "Street address")
	f.StringVar(&shipTo.City, "city", "", "City")
	f.StringVar(&shipTo.State, "province", "", "Province or state")
	f.StringVar(&shipTo.PostalCode, "postal-code", "", "Postal code")
	f.StringVar(&shipTo.Country, "country", "CA", "Country code")
	f.StringVar(&idempotencyKey, "key", "", "Idempotency key (default: a new one)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	id, err := shop.tracker.SignIn(loginToken)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", id.AccountID)

	ctx, cancel := commandContext(cmd)
	defer cancel()

	if err := shop.cart.MergeOnAuthentication(ctx); err != nil {
		return fmt.Errorf("signed in, but the cart could not be moved to your account: %w", err)
	}
	printCart(cmd.OutOrStdout(), shop.cart.Snapshot())
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := shop.tracker.SignOut(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}

func runCheckout(cmd *cobra.Command, args []string) error {
	p, err := shop.principal()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	if err := shop.cart.FetchCart(ctx); err != nil {
		return err
	}
	handoff, err := shop.cart.BeginCheckout()
	if errors.Is(err, store.ErrEmptyCart) {
		return fmt.Errorf("your cart is empty, browse 'kitshop catalog' to find a kit")
	}
	if err != nil {
		return err
	}

	key := idempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	printQuote(cmd.OutOrStdout(), handoff.Quote)

	order, err := shop.api.Checkout(ctx, p, handoff, shipTo, key)
	if err != nil {
		return fmt.Errorf("checkout failed (retry with --key %s): %w", key, err)
	}
	printOrder(cmd.OutOrStdout(), order)
	return nil
}

func runOrders(cmd *cobra.Command, args []string) error {
	p, err := shop.principal()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	if len(args) == 1 {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid order id %q", args[0])
		}
		order, err := shop.api.GetOrder(ctx, p, id)
		if err != nil {
			return err
		}
		printOrder(cmd.OutOrStdout(), order)
		return nil
	}

	orders, err := shop.api.ListOrders(ctx, p)
	if err != nil {
		return err
	}
	printOrders(cmd.OutOrStdout(), orders)
	return nil
}

func runResults(cmd *cobra.Command, args []string) error {
	p, err := shop.principal()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	if len(args) == 1 {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid result id %q", args[0])
		}
		result, err := shop.api.GetResult(ctx, p, id)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), result)
		return nil
	}

	results, err := shop.api.ListResults(ctx, p)
	if err != nil {
		return err
	}
	printResults(cmd.OutOrStdout(), results)
	return nil
}

func accountOwner(id identity.Identity) domain.Owner {
	return domain.AccountOwner(id.AccountID)
}
