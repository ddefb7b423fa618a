package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/sweetshop-backend/internal/cart"
	"github.com/angelmondragon/sweetshop-backend/pkg/client"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
)

const tokenKey = "sweetshop_token"

var errUsage = errors.New("usage")

type shop struct {
	api   *client.Client
	store cart.Store
	out   io.Writer
}

type command struct {
	usage string
	run   func(ctx context.Context, s *shop, args []string) error
}

var commands = map[string]command{
	"login":    {usage: "login <email> <password>", run: runLogin},
	"register": {usage: "register <name> <email> <password>", run: runRegister},
	"list":     {usage: "list [-q text] [-category name] [-min price] [-max price]", run: runList},
	"add":      {usage: "add <sweet-id>", run: runAdd},
	"set":      {usage: "set <sweet-id> <quantity>", run: runSet},
	"remove":   {usage: "remove <sweet-id>", run: runRemove},
	"show":     {usage: "show", run: runShow},
	"clear":    {usage: "clear", run: runClear},
	"buy":      {usage: "buy <sweet-id>", run: runBuy},
	"checkout": {usage: "checkout", run: runCheckout},
	"orders":   {usage: "orders [-limit n] [-cursor c]", run: runOrders},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *shop) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	if err := cmd.run(ctx, s, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("%w: %s", errUsage, cmd.usage)
		}
		return err
	}
	return nil
}

func (s *shop) authenticated() *client.Client {
	raw, err := s.store.Load(tokenKey)
	if err != nil || len(raw) == 0 {
		return s.api
	}
	return s.api.WithToken(string(raw))
}

func runLogin(ctx context.Context, s *shop, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	res, err := s.api.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if err := s.store.Save(tokenKey, []byte(res.AccessToken)); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "signed in as %s (token expires %s)\n", args[0], res.ExpiresAt.Format("2006-01-02 15:04"))
	return nil
}

func runRegister(ctx context.Context, s *shop, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	res, err := s.api.Register(ctx, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	if err := s.store.Save(tokenKey, []byte(res.AccessToken)); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "registered %s\n", args[1])
	return nil
}

func runList(ctx context.Context, s *shop, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	query := fs.String("q", "", "search text")
	category := fs.String("category", "", "category filter")
	minPrice := fs.String("min", "", "minimum price")
	maxPrice := fs.String("max", "", "maximum price")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	filters := client.SweetFilters{Query: *query, Category: *category}
	var err error
	if filters.MinPrice, err = optionalDecimal(*minPrice); err != nil {
		return err
	}
	if filters.MaxPrice, err = optionalDecimal(*maxPrice); err != nil {
		return err
	}

	list, err := s.authenticated().ListSweets(ctx, filters)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK")
	for _, sweet := range list {
		stock := strconv.Itoa(sweet.Quantity)
		if !sweet.InStock {
			stock = "out of stock"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", sweet.ID, sweet.Name, sweet.Category, sweet.Price.StringFixed(2), stock)
	}
	return tw.Flush()
}

func runAdd(ctx context.Context, s *shop, args []string) error {
	id, err := parseID(args, 1)
	if err != nil {
		return err
	}
	sweet, err := s.authenticated().GetSweet(ctx, id)
	if err != nil {
		return err
	}

	crt, err := cart.Load(s.store)
	if err != nil {
		return err
	}
	crt.AddItem(client.CatalogItem(*sweet))
	line, _ := crt.Line(id)
	fmt.Fprintf(s.out, "%s x%d in cart\n", line.Name, line.Quantity)
	if line.Quantity > line.Stock {
		w := cart.StockWarning{SweetID: id, Name: line.Name, Requested: line.Quantity, Available: line.Stock}
		fmt.Fprintf(s.out, "warning: %s\n", w.Message())
	}
	return cart.Save(s.store, crt)
}

func runSet(ctx context.Context, s *shop, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	id, err := parseID(args[:1], 1)
	if err != nil {
		return err
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be a number")
	}

	crt, err := cart.Load(s.store)
	if err != nil {
		return err
	}
	changed, warning := crt.SetQuantity(id, qty)
	if warning != nil {
		fmt.Fprintf(s.out, "warning: %s\n", warning.Message())
		return nil
	}
	if !changed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "sweet is not in the cart")
	}
	return cart.Save(s.store, crt)
}

func runRemove(ctx context.Context, s *shop, args []string) error {
	id, err := parseID(args, 1)
	if err != nil {
		return err
	}
	crt, err := cart.Load(s.store)
	if err != nil {
		return err
	}
	if !crt.Remove(id) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "sweet is not in the cart")
	}
	return cart.Save(s.store, crt)
}

// runShow refreshes the cart from the catalog before printing. A failed refresh still prints the
// cached view.
func runShow(ctx context.Context, s *shop, args []string) (err error) {
	crt, err := cart.Load(s.store)
	if err != nil {
		return err
	}
	if crt.IsEmpty() {
		fmt.Fprintln(s.out, "cart is empty")
		return nil
	}

	if refreshErr := s.authenticated().RefreshCart(ctx, crt); refreshErr != nil {
		fmt.Fprintf(s.out, "showing cached prices: %v\n", refreshErr)
	} else {
		defer func() {
			err = multierr.Append(err, cart.Save(s.store, crt))
		}()
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tPRICE\tSUBTOTAL")
	for _, line := range crt.Lines() {
		subtotal := line.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", line.SweetID, line.Name, line.Quantity, line.Price.StringFixed(2), subtotal.StringFixed(2))
	}
	fmt.Fprintf(tw, "\t\t%d\t\t%s\n", crt.TotalItems(), crt.TotalPrice().StringFixed(2))
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, w := range crt.Overstocked() {
		fmt.Fprintf(s.out, "warning: %s\n", w.Message())
	}
	return nil
}

func runClear(ctx context.Context, s *shop, args []string) error {
	crt, err := cart.Load(s.store)
	if err != nil {
		return err
	}
	crt.Clear()
	return cart.Save(s.store, crt)
}

func runBuy(ctx context.Context, s *shop, args []string) error {
	id, err := parseID(args, 1)
	if err != nil {
		return err
	}
	res, err := s.authenticated().Purchase(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s: %s (%d left)\n", res.Message, res.Sweet.Name, res.Sweet.Quantity)
	return nil
}

func runCheckout(ctx context.Context, s *shop, args []string) error {
	crt, err := cart.Load(s.store)
	if err != nil {
		return err
	}
	order, err := s.authenticated().CheckoutCart(ctx, crt, s.store, uuid.NewString())
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInsufficient {
			fmt.Fprintf(s.out, "%s; adjust the cart and try again\n", typed.Message())
		}
		return err
	}
	fmt.Fprintf(s.out, "order %s placed: %d lines, total %s\n", order.ID, len(order.Items), order.TotalAmount.StringFixed(2))
	return nil
}

func runOrders(ctx context.Context, s *shop, args []string) error {
	fs := flag.NewFlagSet("orders", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 0, "page size")
	cursor := fs.String("cursor", "", "page cursor")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	list, err := s.authenticated().MyOrders(ctx, *limit, *cursor)
	if err != nil {
		return err
	}
	if len(list.Orders) == 0 {
		fmt.Fprintln(s.out, "no orders yet")
		return nil
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tPLACED\tITEMS\tTOTAL")
	for _, o := range list.Orders {
		names := make([]string, 0, len(o.Items))
		for _, item := range o.Items {
			names = append(names, fmt.Sprintf("%s x%d", item.Name, item.Quantity))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.ID, o.CreatedAt.Format("2006-01-02 15:04"), strings.Join(names, ", "), o.TotalAmount.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if list.NextCursor != "" {
		fmt.Fprintf(s.out, "more: orders -cursor %s\n", list.NextCursor)
	}
	return nil
}

func parseID(args []string, want int) (uuid.UUID, error) {
	if len(args) != want {
		return uuid.Nil, errUsage
	}
	id, err := uuid.Parse(strings.TrimSpace(args[0]))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sweet id")
	}
	return id, nil
}

func optionalDecimal(raw string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price")
	}
	return &value, nil
}
