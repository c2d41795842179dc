package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/GoPolymarket/intentgate/internal/config"
	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/permit"
	"github.com/GoPolymarket/intentgate/internal/signer"
)

// inspector prints the signing digest of an intent and, when a signature is present, who signed it.
// The input file holds either a bare intent or {"intent": ..., "signature": "0x..."}.
func main() {
	file := flag.String("file", "", "Path to the intent JSON file")
	spender := flag.String("spender", "", "Settling contract the permit is bound to (default: contracts.reactor)")
	sig := flag.String("sig", "", "Hex signature, overrides the one in the file")
	chainID := flag.Int64("chain-id", 0, "Chain id override")
	printTyped := flag.Bool("typed", false, "Print the full EIP-712 typed data")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	domain := signer.Domain{
		Name:              cfg.Domain.Name,
		Version:           cfg.Domain.Version,
		ChainID:           cfg.Chain.ID,
		VerifyingContract: common.HexToAddress(cfg.Contracts.Permit2),
		Salt:              cfg.Domain.DomainSalt(),
	}
	if *chainID != 0 {
		domain.ChainID = *chainID
	}

	to := common.HexToAddress(cfg.Contracts.Reactor)
	if *spender != "" {
		if !common.IsHexAddress(*spender) {
			log.Fatalf("invalid spender %q", *spender)
		}
		to = common.HexToAddress(*spender)
	}

	signed, err := readIntent(*file)
	if err != nil {
		log.Fatalf("reading %s: %v", *file, err)
	}
	if *sig != "" {
		if signed.Signature, err = hexutil.Decode(*sig); err != nil {
			log.Fatalf("invalid signature: %v", err)
		}
	}

	if err := run(os.Stdout, domain, to, signed, *printTyped); err != nil {
		log.Fatalf("inspecting intent: %v", err)
	}
}

func readIntent(path string) (model.SignedIntent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.SignedIntent{}, err
	}
	var signed model.SignedIntent
	if err := json.Unmarshal(raw, &signed); err != nil {
		return model.SignedIntent{}, err
	}
	if signed.Intent == nil {
		var bare model.Intent
		if err := json.Unmarshal(raw, &bare); err != nil {
			return model.SignedIntent{}, err
		}
		signed.Intent = &bare
	}
	return signed, nil
}

func run(out io.Writer, domain signer.Domain, spender common.Address, signed model.SignedIntent, printTyped bool) error {
	intent := signed.Intent
	if err := intent.Validate(); err != nil {
		return err
	}

	separator, err := domain.Separator()
	if err != nil {
		return fmt.Errorf("domain separator: %w", err)
	}
	hash, err := signer.IntentHash(domain, intent, spender)
	if err != nil {
		return fmt.Errorf("intent hash: %w", err)
	}

	fmt.Fprintf(out, "Domain separator: %s\n", separator.Hex())
	fmt.Fprintf(out, "Spender:          %s\n", spender.Hex())
	fmt.Fprintf(out, "Digest:           %s\n", hexutil.Encode(hash))
	fmt.Fprintf(out, "Owner:            %s\n", intent.Owner.Hex())
	wordPos, bit := permit.BitmapPositions(intent.Nonce)
	fmt.Fprintf(out, "Nonce:            %s (word %s, bit %d)\n", intent.Nonce, wordPos, bit)
	fmt.Fprintf(out, "Valid until:      %s\n", time.Unix(int64(intent.Expiration), 0).UTC().Format(time.RFC3339))

	if len(signed.Signature) > 0 {
		recovered, err := signer.RecoverHash(hash, signed.Signature)
		switch {
		case err != nil:
			fmt.Fprintf(out, "Signer:           unrecoverable (%v)\n", err)
		case recovered == intent.Owner:
			fmt.Fprintf(out, "Signer:           %s (owner)\n", recovered.Hex())
		default:
			fmt.Fprintf(out, "Signer:           %s (NOT the owner; contract wallets need EIP-1271)\n", recovered.Hex())
		}
	}

	if printTyped {
		typed, err := signer.PermitTypedData(domain, intent.Permit(), spender, intent)
		if err != nil {
			return fmt.Errorf("typed data: %w", err)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(typed)
	}
	return nil
}
