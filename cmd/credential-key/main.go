// Package main provides a one-shot utility for credential key generation.
//
// It emits the asymmetric keypair used to sign session credentials.
package main

import (
	"os"

	"github.com/caliperhq/caliper/internal/platform/config"
	"github.com/caliperhq/caliper/internal/tools/credentialkey"
)

func main() {
	if err := credentialkey.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate credential key: %v", err)
	}
}
