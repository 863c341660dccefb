package main

import (
	"strings"

	"github.com/BTreeMap/LoopPipe/internal/smartlink"
	"github.com/BTreeMap/LoopPipe/internal/util"
	"github.com/spf13/cobra"
)

func newQRCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "qr <url|short-code>",
		Short: "Render a URL or smart-link short code as a terminal QR code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			smartlink.WriteQR(cmd.OutOrStdout(), qrContent(opts.cfg.Server.BaseURL, args[0]))
			return nil
		},
	}
}

// qrContent expands a bare short code into its public link.
func qrContent(baseURL, arg string) string {
	if util.IsShortCode(arg) {
		return strings.TrimRight(baseURL, "/") + "/l/" + arg
	}
	return arg
}
