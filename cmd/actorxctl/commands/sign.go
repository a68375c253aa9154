package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/sign"
)

var (
	signIn          string
	signOut         string
	signKeyPath     string
	signRegID       string
	signActorAccess []string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Embed a signed Metadata section into a guest WASM binary",
	Long: `sign reads a WASM binary, embeds a Metadata envelope (identity,
signer public key, claims) signed with an ed25519 key, and writes the
result to --out.

If --key is omitted, a fresh ed25519 key pair is generated and its seed
is printed so it can be reused for later signing.`,
	RunE: runSign,
}

func init() {
	signCmd.Flags().StringVar(&signIn, "in", "", "path to the unsigned WASM binary (required)")
	signCmd.Flags().StringVar(&signOut, "out", "", "path to write the signed binary to (required)")
	signCmd.Flags().StringVar(&signKeyPath, "key", "", "path to a 32-byte ed25519 seed (generated if omitted)")
	signCmd.Flags().StringVar(&signRegID, "reg-id", "", "registration id this binary identifies as (required)")
	signCmd.Flags().StringArrayVar(&signActorAccess, "actor-access", nil, "grant a ClaimActorAccess claim for this registration id (repeatable)")
	_ = signCmd.MarkFlagRequired("in")
	_ = signCmd.MarkFlagRequired("out")
	_ = signCmd.MarkFlagRequired("reg-id")
}

func runSign(cmd *cobra.Command, args []string) error {
	wasmBytes, err := os.ReadFile(signIn)
	if err != nil {
		return fmt.Errorf("reading %s: %w", signIn, err)
	}

	priv, err := loadOrGenerateKey(signKeyPath)
	if err != nil {
		return err
	}

	claims := make([]sign.Claim, 0, len(signActorAccess))
	for _, regID := range signActorAccess {
		claims = append(claims, sign.ActorAccess(actorid.RegistrationIDFromString(regID)))
	}

	md := sign.Metadata{
		RegID:  actorid.RegistrationIDFromString(signRegID),
		Claims: claims,
	}

	signed, err := sign.Sign(wasmBytes, md, priv, nil)
	if err != nil {
		return fmt.Errorf("signing %s: %w", signIn, err)
	}

	if err := os.WriteFile(signOut, signed, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", signOut, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "signed %s -> %s (reg-id=%s, %d claim(s))\n", signIn, signOut, signRegID, len(claims))
	return nil
}

// loadOrGenerateKey reads a 32-byte ed25519 seed from path, or
// generates and prints a fresh one if path is empty.
func loadOrGenerateKey(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generating ed25519 key: %w", err)
		}
		fmt.Fprintf(os.Stderr, "generated signing key, seed=%s\n", hex.EncodeToString(priv.Seed()))
		return priv, nil
	}

	seed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading signing key %s: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing key %s: expected %d raw seed bytes, got %d", path, ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
