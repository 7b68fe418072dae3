package main

import (
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vitalvas/mantasig/headers"
	"github.com/vitalvas/mantasig/httpsig"
)

func newFingerprintCommand() *cobra.Command {
	var passphrase string

	cmd := &cobra.Command{
		Use:   "fingerprint FILE",
		Short: "Print the MD5 fingerprint of a public or private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			defer clear(data)

			if pub, err := httpsig.ParsePublicKey(data); err == nil {
				fp, err := httpsig.Fingerprint(pub)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), fp)
				return nil
			}

			key, err := httpsig.ParseKey(data, httpsig.KeyConfig{Passphrase: []byte(passphrase)})
			if err != nil {
				return err
			}
			defer key.Close()

			fmt.Fprintln(cmd.OutOrStdout(), key.Fingerprint())

			return nil
		},
	}

	cmd.Flags().StringVar(&passphrase, "passphrase", os.Getenv("MANTA_PASSWORD"), "Passphrase for an encrypted private key")

	return cmd
}

func newSignCommand(opts *rootOptions, logger *logrus.Logger) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print Date and Authorization headers for a request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			signer, err := cfg.NewSigner(logger)
			if err != nil {
				return err
			}
			defer signer.Close()

			h := http.Header{}
			if date != "" {
				h.Set(httpsig.HeaderDate, date)
			}

			if err := signer.SignHeader(h); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Date: %s\n", h.Get(httpsig.HeaderDate))
			fmt.Fprintf(out, "Authorization: %s\n", h.Get("Authorization"))

			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Date header value to sign (default: now)")

	return cmd
}

func newVerifyCommand() *cobra.Command {
	var (
		publicKey     string
		authorization string
		date          string
		maxSkew       time.Duration
		extra         []string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify an Authorization header against a public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(publicKey)
			if err != nil {
				return err
			}

			pub, err := httpsig.ParsePublicKey(data)
			if err != nil {
				return err
			}

			fp, err := httpsig.Fingerprint(pub)
			if err != nil {
				return err
			}

			h := http.Header{}
			h.Set("Authorization", authorization)
			h.Set(httpsig.HeaderDate, date)

			for _, kv := range extra {
				name, value, ok := strings.Cut(kv, ":")
				if !ok {
					return fmt.Errorf("invalid header %q, want NAME:VALUE", kv)
				}

				h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
			}

			verifier, err := httpsig.NewVerifier(httpsig.VerifierConfig{
				Resolver: fingerprintResolver(fp, pub),
				MaxSkew:  maxSkew,
			})
			if err != nil {
				return err
			}

			res := verifier.VerifyHeader(h)
			if !res.Verified {
				return fmt.Errorf("signature rejected (%s): %w", res.Reason, res.Err())
			}

			fmt.Fprintf(cmd.OutOrStdout(), "OK %s %s\n", res.KeyID, res.Algorithm)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&publicKey, "public-key", "", "Public key file (authorized_keys or PEM)")
	flags.StringVar(&authorization, "authorization", "", "Authorization header value")
	flags.StringVar(&date, "date", "", "Date header value")
	flags.DurationVar(&maxSkew, "max-skew", 0, "Reject dates further than this from now (0 disables)")
	flags.StringArrayVarP(&extra, "header", "H", nil, "Additional covered header as NAME:VALUE")

	for _, name := range []string{"public-key", "authorization", "date"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

// fingerprintResolver accepts any key ID whose last path segment is the
// fingerprint of pub.
func fingerprintResolver(fp string, pub crypto.PublicKey) httpsig.KeyResolver {
	return func(keyID string) (crypto.PublicKey, error) {
		if !strings.HasSuffix(keyID, "/keys/"+fp) {
			return nil, httpsig.ErrUnknownKey
		}

		return pub, nil
	}
}

func newRequestCommand(opts *rootOptions, logger *logrus.Logger) *cobra.Command {
	var (
		method     string
		roles      []string
		durability int
	)

	cmd := &cobra.Command{
		Use:   "request PATH",
		Short: "Send a signed request and print the response status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			base, err := url.Parse(cfg.URL)
			if err != nil {
				return fmt.Errorf("invalid url %q: %w", cfg.URL, err)
			}

			signer, err := cfg.NewSigner(logger)
			if err != nil {
				return err
			}
			defer signer.Close()

			req, err := http.NewRequestWithContext(cmd.Context(), strings.ToUpper(method), base.JoinPath(args[0]).String(), nil)
			if err != nil {
				return err
			}

			if len(roles) > 0 {
				if err := headers.SetRoles(req.Header, mapset.NewSet(roles...)); err != nil {
					return err
				}
			}

			if cmd.Flags().Changed("durability") {
				if err := headers.SetDurabilityLevel(req.Header, durability); err != nil {
					return err
				}
			}

			client := &http.Client{
				Transport: httpsig.NewTransport(nil, signer),
				Timeout:   cfg.Timeout,
			}

			logger.WithFields(logrus.Fields{
				"method": req.Method,
				"url":    req.URL.String(),
			}).Debug("sending signed request")

			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", resp.Proto, resp.Status)

			if resp.StatusCode >= http.StatusBadRequest {
				return errors.New(resp.Status)
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&method, "method", "X", http.MethodHead, "HTTP method")
	flags.StringSliceVar(&roles, "role-tag", nil, "Role tags to attach (comma separated)")
	flags.IntVar(&durability, "durability", headers.MinDurabilityLevel, "Durability level for stored objects")

	return cmd
}
