// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// chatlink links chat platform accounts to OIDC identities.
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
