package commands

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/actorxio/actorx/sign"
)

var verifyIn string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a signed guest WASM binary and print its Metadata",
	Long: `verify extracts and validates the embedded Metadata section
from a signed WASM binary, failing with
errs.InvalidSignatureFormat or errs.SignatureMismatch if the section is
missing, corrupt, or does not validate against its own embedded signer
key.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyIn, "in", "", "path to the signed WASM binary (required)")
	_ = verifyCmd.MarkFlagRequired("in")
}

func runVerify(cmd *cobra.Command, args []string) error {
	wasmBytes, err := os.ReadFile(verifyIn)
	if err != nil {
		return fmt.Errorf("reading %s: %w", verifyIn, err)
	}

	md, err := sign.Verify(wasmBytes)
	if err != nil {
		return fmt.Errorf("verifying %s: %w", verifyIn, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "reg-id:     %s\n", md.RegID)
	fmt.Fprintf(out, "signer-key: %s\n", hex.EncodeToString(md.SignerKey))
	fmt.Fprintf(out, "claims:     %d\n", len(md.Claims))
	for _, c := range md.Claims {
		switch c.Kind {
		case sign.ClaimActorAccess:
			fmt.Fprintf(out, "  - actor-access: %s\n", c.ActorAccessRegID)
		case sign.ClaimTokenID:
			fmt.Fprintf(out, "  - token-id: %s\n", hex.EncodeToString(c.TokenID[:]))
		}
	}
	return nil
}
