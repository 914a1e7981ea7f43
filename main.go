// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/locacash/sitescore/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
