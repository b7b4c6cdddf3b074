// The recover command reconstructs a secret from shares, fully offline.
// Beneficiaries combine their shares with the released custodial share
// without trusting the service or any network.
package main

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/deadhandprotocol/deadhand-backend/kms"
	"github.com/deadhandprotocol/deadhand-backend/shamir"
)

func main() {
	app := &cli.App{
		Name:  "recover",
		Usage: "Offline share tools for owners, beneficiaries and administrators",
		Commands: []*cli.Command{
			{
				Name:  "combine",
				Usage: "Reconstruct a secret from threshold shares",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "share",
						Usage: "encoded share (repeatable)",
					},
					&cli.StringFlag{
						Name:  "shares-file",
						Usage: "file with one encoded share per line",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "write the secret to this file instead of stdout",
					},
				},
				Action: runCombine,
			},
			{
				Name:  "sign-share",
				Usage: "Sign a master key share for KMS bootstrap submission",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "share",
						Required: true,
						Usage:    "encoded share to sign",
					},
					&cli.StringFlag{
						Name:     "key",
						Required: true,
						Usage:    "PEM file with the administrator's ECDSA private key",
					},
				},
				Action: runSignShare,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runCombine(cCtx *cli.Context) error {
	encoded := cCtx.StringSlice("share")
	if file := cCtx.String("shares-file"); file != "" {
		fromFile, err := readSharesFile(file)
		if err != nil {
			return err
		}
		encoded = append(encoded, fromFile...)
	}
	if len(encoded) == 0 {
		return fmt.Errorf("no shares provided; use --share or --shares-file")
	}

	shares := make([]shamir.Share, 0, len(encoded))
	for i, enc := range encoded {
		share, err := shamir.DecodeShareString(strings.TrimSpace(enc))
		if err != nil {
			return fmt.Errorf("share %d: %w", i+1, err)
		}
		shares = append(shares, share)
	}

	secret, err := shamir.Reconstruct(shares)
	if err != nil {
		return err
	}

	if out := cCtx.String("out"); out != "" {
		if err := os.WriteFile(out, secret, 0600); err != nil {
			return fmt.Errorf("failed to write secret: %w", err)
		}
		fmt.Fprintf(os.Stderr, "secret written to %s\n", out)
		return nil
	}

	os.Stdout.Write(secret)
	return nil
}

func runSignShare(cCtx *cli.Context) error {
	share, err := base64.RawURLEncoding.DecodeString(cCtx.String("share"))
	if err != nil {
		return fmt.Errorf("share must be URL-safe base64: %w", err)
	}

	keyPEM, err := os.ReadFile(cCtx.String("key"))
	if err != nil {
		return fmt.Errorf("failed to read key file: %w", err)
	}
	privKey, err := parseECDSAPrivateKey(keyPEM)
	if err != nil {
		return err
	}

	signature, err := kms.SignShare(share, privKey)
	if err != nil {
		return fmt.Errorf("failed to sign share: %w", err)
	}

	fmt.Println(base64.StdEncoding.EncodeToString(signature))
	return nil
}

func readSharesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shares file: %w", err)
	}
	defer f.Close()

	var shares []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		shares = append(shares, line)
	}
	return shares, scanner.Err()
}

func parseECDSAPrivateKey(keyPEM []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not an ECDSA key")
	}
	return key, nil
}
