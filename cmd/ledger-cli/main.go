// ledger-cli is a command-line client for the ledger service.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/ledgerd/ledgerd/core/types"
	"github.com/ledgerd/ledgerd/ledgerclient"
)

var addrFlag = &cli.StringFlag{
	Name:  "addr",
	Usage: "server address",
	Value: "127.0.0.1:9092",
}

func main() {
	app := &cli.App{
		Name:  "ledger-cli",
		Usage: "talk to a ledger server",
		Flags: []cli.Flag{addrFlag},
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "create an account",
				ArgsUsage: "<account>",
				Action:    withClient(cmdCreate),
			},
			{
				Name:      "deposit",
				Usage:     "deposit into an account",
				ArgsUsage: "<account> <amount>",
				Action:    withClient(cmdDeposit),
			},
			{
				Name:      "withdraw",
				Usage:     "withdraw from an account",
				ArgsUsage: "<account> <amount>",
				Action:    withClient(cmdWithdraw),
			},
			{
				Name:      "move",
				Usage:     "transfer between accounts",
				ArgsUsage: "<from> <to> <amount>",
				Action:    withClient(cmdMove),
			},
			{
				Name:      "balance",
				Usage:     "show an account",
				ArgsUsage: "<account>",
				Action:    withClient(cmdBalance),
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}

// withClient dials the server for the duration of one subcommand and ends
// the session with the proper farewell.
func withClient(fn func(*cli.Context, *ledgerclient.Client) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		client, err := ledgerclient.Dial(ctx.String(addrFlag.Name))
		if err != nil {
			return err
		}
		defer client.Quit()
		return fn(ctx, client)
	}
}

func cmdCreate(ctx *cli.Context, client *ledgerclient.Client) error {
	if ctx.NArg() != 1 {
		return errors.New("usage: create <account>")
	}
	account, err := client.CreateAccount(types.AccountID(ctx.Args().Get(0)))
	if err != nil {
		return err
	}
	printAccounts(account)
	return nil
}

func cmdDeposit(ctx *cli.Context, client *ledgerclient.Client) error {
	id, amount, err := accountAndAmount(ctx)
	if err != nil {
		return err
	}
	account, err := client.Deposit(id, amount)
	if err != nil {
		return err
	}
	printAccounts(account)
	return nil
}

func cmdWithdraw(ctx *cli.Context, client *ledgerclient.Client) error {
	id, amount, err := accountAndAmount(ctx)
	if err != nil {
		return err
	}
	account, err := client.Withdraw(id, amount)
	if err != nil {
		return err
	}
	printAccounts(account)
	return nil
}

func cmdMove(ctx *cli.Context, client *ledgerclient.Client) error {
	if ctx.NArg() != 3 {
		return errors.New("usage: move <from> <to> <amount>")
	}
	amount, err := parseAmount(ctx.Args().Get(2))
	if err != nil {
		return err
	}
	from, to, err := client.Move(
		types.AccountID(ctx.Args().Get(0)),
		types.AccountID(ctx.Args().Get(1)),
		amount,
	)
	if err != nil {
		return err
	}
	printAccounts(from, to)
	return nil
}

func cmdBalance(ctx *cli.Context, client *ledgerclient.Client) error {
	if ctx.NArg() != 1 {
		return errors.New("usage: balance <account>")
	}
	account, err := client.Balance(types.AccountID(ctx.Args().Get(0)))
	if err != nil {
		return err
	}
	printAccounts(account)
	return nil
}

func accountAndAmount(ctx *cli.Context) (types.AccountID, types.Amount, error) {
	if ctx.NArg() != 2 {
		return "", types.Amount{}, errors.New("usage: <account> <amount>")
	}
	amount, err := parseAmount(ctx.Args().Get(1))
	if err != nil {
		return "", types.Amount{}, err
	}
	return types.AccountID(ctx.Args().Get(0)), amount, nil
}

func parseAmount(s string) (types.Amount, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return types.Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return types.NewAmount(uint32(v))
}

func printAccounts(accounts ...types.Account) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Account", "Balance"})
	for _, account := range accounts {
		table.Append([]string{string(account.ID), strconv.FormatUint(uint64(account.Balance), 10)})
	}
	table.Render()
}
