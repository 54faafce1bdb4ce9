// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:   "chatlink",
		Short: "Link chat accounts to OIDC identities",
		Long: `chatlink registers a chat command that hands each user a one-time login
link. Following it runs an OpenID Connect login, and the verified identity is
reported back to the user in chat.

Configuration is read from the environment (CHATLINK_*, OIDC_*, DISCORD_*).`,
		Version: version,
		// errors are already reported; usage would only bury them
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         serve.RunE,
	}
	root.SetVersionTemplate(`{{printf "chatlink version %s\n" .Version}}`)
	root.AddCommand(serve, newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of chatlink",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chatlink version %s\n", version)
		},
	}
}
