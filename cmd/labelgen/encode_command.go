package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ryabkov82/um-label-server/internal/barcode"
)

func newEncodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <12 digits>",
		Short: "Print the EAN-13 code and module pattern for a payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sym, err := barcode.Encode(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, sym.Digits)
			fmt.Fprintln(out, sym.String())
			return nil
		},
	}
}
