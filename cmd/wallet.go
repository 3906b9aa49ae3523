package main

import (
	"context"
	"fmt"
	"log"

	model2 "github.com/blnkfinance/payroute/api/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func walletCommands(p *payrouteInstance) *cobra.Command {
	walletCmd := &cobra.Command{
		Use:   "wallet",
		Short: "manage party wallets",
	}
	walletCmd.AddCommand(walletFundCommand(p))
	return walletCmd
}

func walletFundCommand(p *payrouteInstance) *cobra.Command {
	var address, token, amount string

	cmd := &cobra.Command{
		Use:   "fund",
		Short: "credit a wallet from the world balance",
		Run: func(cmd *cobra.Command, args []string) {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				log.Fatalf("invalid amount %q: %v", amount, err)
			}
			minor, err := model2.ToMinorUnits(value, p.cnf.Fees.Tokens[token].Decimals)
			if err != nil {
				log.Fatal(err)
			}

			transfer, err := p.payroute.FundWallet(context.Background(), address, token, minor)
			if err != nil {
				log.Fatal(err)
			}
			fmt.Printf("funded %s with %s %s (transfer %s)\n", address, minor.String(), token, transfer.TransferID)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "wallet address")
	cmd.Flags().StringVar(&token, "token", "", "token id")
	cmd.Flags().StringVar(&amount, "amount", "0", "amount in whole token units")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}
