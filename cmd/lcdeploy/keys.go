// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/livecode/capsule/cmd/lcdeploy/cli"
	"github.com/livecode/capsule/lib/deploy"
	"github.com/livecode/capsule/lib/masking"
	"github.com/livecode/capsule/lib/sealed"
	"github.com/livecode/capsule/lib/secret"
)

type keygenParams struct {
	Out string `flag:"out,o" desc:"file to create, mode 0600 (required)"`
	Age bool   `flag:"age" desc:"generate an age identity instead of a masking key"`
}

func keygenCommand(out io.Writer) *cli.Command {
	var params keygenParams

	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate a masking key or an age identity",
		Description: `Generate a random masking key and write it hex-encoded to --out.

With --age, write an age identity instead and print its recipient. The
recipient is what seal-key seals masking keys to; the identity file is
passed to build, verify and inspect with --identity.`,
		Usage: "lcdeploy keygen --out FILE [--age]",
		Examples: []cli.Example{
			{Command: "lcdeploy keygen --out mask.key"},
			{
				Description: "Create an identity for a build machine",
				Command:     "lcdeploy keygen --age --out builder.identity",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("keygen", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if params.Out == "" {
				return fmt.Errorf("--out is required")
			}

			if params.Age {
				keypair, err := sealed.GenerateKeypair()
				if err != nil {
					return err
				}
				defer keypair.Close()
				if err := secret.WriteToPath(params.Out, keypair.PrivateKey); err != nil {
					return fmt.Errorf("writing identity: %w", err)
				}
				_, err = fmt.Fprintln(out, keypair.PublicKey)
				return err
			}

			key, err := masking.GenerateKey()
			if err != nil {
				return err
			}
			defer key.Close()
			encoded, err := masking.EncodeKey(key)
			if err != nil {
				return err
			}
			defer encoded.Close()
			if err := secret.WriteToPath(params.Out, encoded); err != nil {
				return fmt.Errorf("writing masking key: %w", err)
			}
			_, err = fmt.Fprintf(out, "wrote %d-byte masking key to %s\n", key.Len(), params.Out)
			return err
		},
	}
}

type sealKeyParams struct {
	Recipients []string `flag:"recipient,r" desc:"age recipient (repeatable, at least one)"`
	In         string   `flag:"in" desc:"hex masking key file (required)"`
	Out        string   `flag:"out,o" desc:"sealed key file to write (required)"`
}

func sealKeyCommand(out io.Writer) *cli.Command {
	var params sealKeyParams

	return &cli.Command{
		Name:    "seal-key",
		Summary: "Seal a masking key to age recipients",
		Description: `Encrypt a masking key to one or more age recipients. The sealed file
can be committed alongside the parameters file; only holders of a
matching identity can build or load projects masked with it.`,
		Usage: "lcdeploy seal-key --recipient age1... --in FILE --out FILE",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("seal-key", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if params.In == "" || params.Out == "" {
				return fmt.Errorf("--in and --out are required")
			}
			if len(params.Recipients) == 0 {
				return fmt.Errorf("at least one --recipient is required")
			}
			for _, recipient := range params.Recipients {
				if err := sealed.ParsePublicKey(recipient); err != nil {
					return fmt.Errorf("--recipient %s: %w", recipient, err)
				}
			}
			ciphertext, err := deploy.SealKey(params.In, params.Recipients)
			if err != nil {
				return err
			}
			if err := os.WriteFile(params.Out, []byte(ciphertext+"\n"), 0o600); err != nil {
				return fmt.Errorf("writing sealed key: %w", err)
			}
			_, err = fmt.Fprintf(out, "sealed %s to %d recipients in %s\n", params.In, len(params.Recipients), params.Out)
			return err
		},
	}
}
