package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fjod/aquakit/internal/store"
	"github.com/spf13/cobra"
)

const shellHelp = `Commands:
  cart                  show the cart
  add <kit-id> [qty]    add a kit
  update <line> <qty>   change a line's quantity
  remove <line>         remove a line
  login <token>         sign in, moving the cart into the account
  logout                sign out and switch back to an anonymous cart
  help                  show this help
  quit                  leave the shell`

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session that keeps the cart in view",
	Long: `Start an interactive session. The cart is printed after every change,
and follows sign-in and sign-out as they happen.

` + shellHelp,
	Args: cobra.NoArgs,
	RunE: runShell,
}

// shell serializes output from the command loop and from the store's
// subscriber, which runs on the identity watcher's goroutine.
type shell struct {
	mu  sync.Mutex
	out io.Writer
}

func (sh *shell) printf(format string, args ...any) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	fmt.Fprintf(sh.out, format, args...)
}

func (sh *shell) render(v store.View) {
	if v.Status != store.StatusReady || v.Err != nil {
		return
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	printCart(sh.out, v)
}

func runShell(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sh := &shell{out: cmd.OutOrStdout()}
	unsubscribe := shop.cart.Subscribe(sh.render)
	defer unsubscribe()

	watching := shop.cart.Watch(ctx)
	defer func() {
		cancel()
		<-watching
	}()

	if err := sh.run(ctx, "cart", nil); err != nil {
		sh.printf("error: %v\n", err)
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		sh.printf("kitshop> ")
		if !scanner.Scan() {
			sh.printf("\n")
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := sh.run(ctx, fields[0], fields[1:]); err != nil {
			sh.printf("error: %v\n", err)
		}
	}
}

func (sh *shell) run(ctx context.Context, name string, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch name {
	case "help":
		sh.printf("%s\n", shellHelp)
		return nil
	case "cart":
		return shop.cart.FetchCart(ctx)
	case "add":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: add <kit-id> [qty]")
		}
		qty := 1
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			qty = n
		}
		return shop.cart.AddItem(ctx, args[0], qty)
	case "update":
		if len(args) != 2 {
			return errors.New("usage: update <line> <qty>")
		}
		qty, err := strconv.Atoi(args[1])
		if err != nil || qty < 1 {
			return fmt.Errorf("quantity must be a whole number of at least 1, use 'remove %s' to drop the line", args[0])
		}
		return shop.cart.UpdateQuantity(ctx, args[0], qty)
	case "remove":
		if len(args) != 1 {
			return errors.New("usage: remove <line>")
		}
		return shop.cart.RemoveItem(ctx, args[0])
	case "login":
		if len(args) != 1 {
			return errors.New("usage: login <token>")
		}
		var account string
		err := sh.switchIdentity(ctx, func() error {
			id, err := shop.tracker.SignIn(args[0])
			account = id.AccountID
			return err
		})
		if err != nil {
			return err
		}
		sh.printf("Signed in as %s\n", account)
		return nil
	case "logout":
		if err := sh.switchIdentity(ctx, shop.tracker.SignOut); err != nil {
			return err
		}
		sh.printf("Signed out\n")
		return nil
	default:
		return fmt.Errorf("unknown command %q, type 'help'", name)
	}
}

// switchIdentity runs change and waits for the store's watcher to finish
// reloading the cart for the new identity, so the next command sees it.
func (sh *shell) switchIdentity(ctx context.Context, change func() error) error {
	settled := make(chan store.View, 1)
	unsubscribe := shop.cart.Subscribe(func(v store.View) {
		if v.Status != store.StatusReady {
			return
		}
		select {
		case settled <- v:
		default:
		}
	})
	defer unsubscribe()

	if err := change(); err != nil {
		return err
	}

	select {
	case v := <-settled:
		return v.Err
	case <-ctx.Done():
		return fmt.Errorf("cart did not reload: %w", ctx.Err())
	}
}
