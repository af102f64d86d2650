// SPDX-License-Identifier: MIT

// Command scalebp runs filtering, smoothing and evidence checks on chain
// models described in YAML (see internal/config for the format).
package main

func main() {
	Execute()
}
