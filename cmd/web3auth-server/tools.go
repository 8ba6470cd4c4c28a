package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/web3auth/internal/abi"
	"github.com/pendergraft/web3auth/internal/keccak"
	"github.com/pendergraft/web3auth/pkg/client"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Offline hashing and encoding helpers",
	}

	cmd.AddCommand(newToolsKeccakCmd())
	cmd.AddCommand(newToolsSelectorCmd())
	cmd.AddCommand(newToolsEncodeCmd())

	return cmd
}

func newToolsKeccakCmd() *cobra.Command {
	var hexInput bool

	cmd := &cobra.Command{
		Use:   "keccak [data]",
		Short: "Compute the Keccak-256 digest of the argument or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if len(args) == 1 {
				data = []byte(args[0])
			} else {
				in, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				data = in
			}

			if hexInput {
				decoded, err := hex.DecodeString(string(data))
				if err != nil {
					return fmt.Errorf("decoding hex input: %w", err)
				}
				data = decoded
			}

			sum := keccak.Sum256(data)
			fmt.Println(hex.EncodeToString(sum[:]))
			return nil
		},
	}

	cmd.Flags().BoolVar(&hexInput, "hex", false, "treat the input as hex-encoded bytes")

	return cmd
}

func newToolsSelectorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selector <signature>",
		Short: "Compute the 4-byte function selector for a signature",
		Long: `Compute the 4-byte function selector for a canonical signature.

EXAMPLES:
  web3auth-server tools selector 'getDigestHash(string,string,string,string,string)'
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(abi.SelectorHex(args[0]))
			return nil
		},
	}
}

func newToolsEncodeCmd() *cobra.Command {
	var signature string

	cmd := &cobra.Command{
		Use:   "encode <username> <realm> <method> <uri> <nonce>",
		Short: "Encode a getDigestHash call for the given credential fields",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(abi.EncodeStringCall(signature, args...))
			return nil
		},
	}

	cmd.Flags().StringVar(&signature, "signature",
		"getDigestHash(string,string,string,string,string)",
		"contract function signature")

	return cmd
}

// credentialsFile is the YAML shape accepted by the check command.
type credentialsFile struct {
	Credentials []client.Credentials `yaml:"credentials"`
}

func newCheckCmd() *cobra.Command {
	var file string
	var serverURL string
	var apiKey string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify credential sets from a YAML file against a running server",
		Long: `Verify one or more credential sets against a running server.

The file holds a credentials list:

  credentials:
    - username: alice
      realm: sip.example.com
      uri: sip:sip.example.com
      nonce: abc123
      response: 9c2b2e...
      method: REGISTER

EXAMPLES:
  web3auth-server check --file creds.yaml
  web3auth-server check --file creds.yaml --server http://auth.internal:8080
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(file, serverURL, apiKey, timeout)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with credential sets (required)")
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("WEB3AUTH_API_KEY"), "API key (or WEB3AUTH_API_KEY)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runCheck(file, serverURL, apiKey string, timeout time.Duration) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading %s: %w", file, err)
	}

	var creds credentialsFile
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("parsing %s: %w", file, err)
	}
	if len(creds.Credentials) == 0 {
		return fmt.Errorf("%s holds no credential sets", file)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c := client.New(serverURL, apiKey)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tREALM\tVERDICT\tREASON")

	failures := 0
	for _, cred := range creds.Credentials {
		result, err := c.Verify(ctx, cred)
		if err != nil {
			failures++
			fmt.Fprintf(w, "%s\t%s\terror\t%v\n", cred.Username, cred.Realm, err)
			continue
		}
		if !result.Accepted {
			failures++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cred.Username, cred.Realm, result.Verdict, result.Reason)
	}
	w.Flush()

	if failures > 0 {
		return fmt.Errorf("%d of %d credential sets not accepted", failures, len(creds.Credentials))
	}
	return nil
}
