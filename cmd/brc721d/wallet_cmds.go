package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brc721/brc721d/internal/keyprovider"
)

func walletCmd(envFile *string) *cobra.Command {
	cmd := &cobra.Command{Use: "wallet", Short: "watch-only wallet commands"}

	var mnemonic, passphrase string
	var rescanOnInit bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "initialize the wallet from a mnemonic",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mnemonic == "" {
				return fmt.Errorf("--mnemonic is required")
			}
			a, err := bootstrap(*envFile, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.wallet.Init(context.Background(), mnemonic, passphrase, rescanOnInit)
		},
	}
	initCmd.Flags().StringVar(&mnemonic, "mnemonic", "", "12..24 word BIP-39 mnemonic")
	initCmd.Flags().StringVar(&passphrase, "passphrase", "", "optional BIP-39 passphrase")
	initCmd.Flags().BoolVar(&rescanOnInit, "rescan", false, "rescan the chain after importing descriptors")
	cmd.AddCommand(initCmd)

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "emit a fresh mnemonic (no side effects)",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := keyprovider.NewDefault().GenerateMnemonic()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m)
			return nil
		},
	}
	cmd.AddCommand(generateCmd)

	addressCmd := &cobra.Command{
		Use:   "address",
		Short: "derive the next receive address",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(*envFile, false)
			if err != nil {
				return err
			}
			defer a.Close()
			addr, err := a.wallet.NextAddress(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}
	cmd.AddCommand(addressCmd)

	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "report the watch-only wallet's balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(*envFile, false)
			if err != nil {
				return err
			}
			defer a.Close()
			ws, bal, err := a.wallet.Balance(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "network=%s confirmed_sat=%d pending_sat=%d\n",
				ws.Network, bal.ConfirmedSat, bal.PendingSat)
			return nil
		},
	}
	cmd.AddCommand(balanceCmd)

	rescanCmd := &cobra.Command{
		Use:   "rescan",
		Short: "trigger a full rescan of the node's watch-only wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(*envFile, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.wallet.Rescan(context.Background())
		},
	}
	cmd.AddCommand(rescanCmd)

	return cmd
}
