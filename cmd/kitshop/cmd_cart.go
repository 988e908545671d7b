package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var addQuantity int

var catalogCmd = &cobra.Command{
	Use:   "catalog [item-id]",
	Short: "List test kits, or show one kit",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalog,
}

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Show the current cart",
	Args:  cobra.NoArgs,
	RunE:  runCart,
}

var addCmd = &cobra.Command{
	Use:   "add <item-id>",
	Short: "Add a test kit to the cart",
	Long: `Add a test kit to the cart. Adding a kit that is already in the cart
increases the quantity of the existing line.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var updateCmd = &cobra.Command{
	Use:   "update <line-id> <quantity>",
	Short: "Change the quantity of a cart line",
	Args:  cobra.ExactArgs(2),
	RunE:  runUpdate,
}

var removeCmd = &cobra.Command{
	Use:   "remove <line-id>",
	Short: "Remove a line from the cart",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	addCmd.Flags().IntVarP(&addQuantity, "quantity", "q", 1, "Number of kits to add")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	if len(args) == 1 {
		item, err := shop.api.GetCatalogItem(ctx, args[0])
		if err != nil {
			return err
		}
		printCatalogItem(cmd.OutOrStdout(), item)
		return nil
	}

	items, err := shop.api.ListCatalog(ctx)
	if err != nil {
		return err
	}
	printCatalog(cmd.OutOrStdout(), items)
	return nil
}

func runCart(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	if err := shop.cart.FetchCart(ctx); err != nil {
		return err
	}
	printCart(cmd.OutOrStdout(), shop.cart.Snapshot())
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	if err := shop.cart.AddItem(ctx, args[0], addQuantity); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %d x %s\n\n", addQuantity, args[0])
	printCart(cmd.OutOrStdout(), shop.cart.Snapshot())
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	quantity, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("quantity must be a number: %q", args[1])
	}
	if quantity < 1 {
		return fmt.Errorf("quantity must be at least 1, use 'kitshop remove %s' to drop the line", args[0])
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	if err := shop.cart.UpdateQuantity(ctx, args[0], quantity); err != nil {
		return err
	}
	printCart(cmd.OutOrStdout(), shop.cart.Snapshot())
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	if err := shop.cart.RemoveItem(ctx, args[0]); err != nil {
		return err
	}
	printCart(cmd.OutOrStdout(), shop.cart.Snapshot())
	return nil
}
