package portalauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/portal-credential-exchange/internal/config"
	"github.com/sandeepkv93/portal-credential-exchange/internal/di"
	"github.com/sandeepkv93/portal-credential-exchange/internal/observability"
	"github.com/sandeepkv93/portal-credential-exchange/internal/security"
	"github.com/sandeepkv93/portal-credential-exchange/internal/tools/common"
)

type options struct {
	envFile string
	ci      bool
}

type verifyOptions struct {
	secret   string
	issuer   string
	audience string
}

type issueOptions struct {
	hours   float64
	apiURL  string
	apiKey  string
	timeout time.Duration
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "portal-auth",
		Short:         "Magic-link credential exchange for the client portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.LoadEnvFile(opts.envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file applied before reading configuration")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newServeCommand(), newVerifyCommand(opts), newIssueCommand(opts))
	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(os.Getenv)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, lp, err := observability.NewLogger(ctx, cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			a, err := di.InitializeApp(cfg, logger, lp)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			return a.Run(ctx)
		},
	}
}

type verifyOutput struct {
	Valid     bool      `json:"valid"`
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CompanyID string    `json:"company_id,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenID   string    `json:"jti,omitempty"`
}

func newVerifyCommand(root *options) *cobra.Command {
	opts := &verifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify <jwt>",
		Short: "Verify a session credential offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := envOr(opts.secret, "JWT_SECRET", "")
			if secret == "" {
				return errors.New("signing secret is required (--secret or JWT_SECRET)")
			}
			subject, err := security.Verify(
				strings.TrimSpace(args[0]),
				secret,
				envOr(opts.issuer, "JWT_ISSUER", "portal-credential-exchange"),
				envOr(opts.audience, "JWT_AUDIENCE", "client-portal"),
			)
			if root.ci {
				var details []string
				if subject != nil {
					details = []string{"sub=" + subject.Subject, "expires_at=" + subject.ExpiresAt.UTC().Format(time.RFC3339)}
				}
				common.PrintCIResult(cmd.OutOrStdout(), err == nil, "portal-auth verify", details, err)
				return err
			}
			if err != nil {
				return err
			}
			return common.PrintJSON(cmd.OutOrStdout(), verifyOutput{
				Valid:     true,
				Subject:   subject.Subject,
				Email:     subject.Email,
				Name:      subject.Name,
				CompanyID: subject.CompanyID,
				IssuedAt:  subject.IssuedAt.UTC(),
				ExpiresAt: subject.ExpiresAt.UTC(),
				TokenID:   subject.TokenID,
			})
		},
	}
	cmd.Flags().StringVar(&opts.secret, "secret", "", "HMAC signing secret (default $JWT_SECRET)")
	cmd.Flags().StringVar(&opts.issuer, "issuer", "", "expected issuer (default $JWT_ISSUER)")
	cmd.Flags().StringVar(&opts.audience, "audience", "", "expected audience (default $JWT_AUDIENCE)")
	return cmd
}

type issueOutput struct {
	MagicLink string    `json:"magic_link"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newIssueCommand(root *options) *cobra.Command {
	opts := &issueOptions{}
	cmd := &cobra.Command{
		Use:   "issue <email>",
		Short: "Issue a magic link, through a running API or in-process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.hours < 0 || math.IsNaN(opts.hours) || math.IsInf(opts.hours, 0) {
				return errors.New("--hours must be a non-negative number")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			var (
				out *issueOutput
				err error
			)
			if opts.apiURL != "" {
				out, err = issueRemote(ctx, opts, args[0])
			} else {
				out, err = issueLocal(ctx, opts, args[0])
			}
			if root.ci {
				var details []string
				if out != nil {
					details = []string{"expires_at=" + out.ExpiresAt.UTC().Format(time.RFC3339)}
				}
				common.PrintCIResult(cmd.OutOrStdout(), err == nil, "portal-auth issue", details, err)
				return err
			}
			if err != nil {
				return err
			}
			return common.PrintJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().Float64Var(&opts.hours, "hours", 0, "link lifetime in hours (default MAGIC_LINK_DEFAULT_TTL)")
	cmd.Flags().StringVar(&opts.apiURL, "api-url", "", "base URL of a running API; empty issues in-process")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "issuer API key (default $ISSUER_API_KEY)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline")
	return cmd
}

func issueLocal(ctx context.Context, opts *issueOptions, email string) (*issueOutput, error) {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return nil, err
	}
	svc, err := di.InitializeCredentialService(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize credential service: %w", err)
	}
	ttl := svc.DefaultTTL()
	if opts.hours > 0 {
		if opts.hours > svc.MaxTTL().Hours() {
			return nil, fmt.Errorf("--hours exceeds the %s maximum", svc.MaxTTL())
		}
		ttl = time.Duration(opts.hours * float64(time.Hour))
	}
	res, err := svc.IssueMagicLink(ctx, email, ttl)
	if err != nil {
		return nil, err
	}
	return &issueOutput{MagicLink: res.Link, ExpiresAt: res.ExpiresAt}, nil
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func issueRemote(ctx context.Context, opts *issueOptions, email string) (*issueOutput, error) {
	payload := map[string]any{"email": email}
	if opts.hours > 0 {
		payload["expiresInHours"] = opts.hours
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(opts.apiURL, "/") + "/api/v1/auth/magic-link"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := envOr(opts.apiKey, "ISSUER_API_KEY", ""); key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := (&http.Client{Timeout: opts.timeout}).Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Code != "" {
			return nil, fmt.Errorf("issue failed: %s %s: %s (request_id=%s)", resp.Status, apiErr.Error.Code, apiErr.Error.Message, apiErr.RequestID)
		}
		return nil, fmt.Errorf("issue failed: %s", resp.Status)
	}
	var out issueOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode issue response: %w", err)
	}
	return &out, nil
}

func envOr(flagValue, key, def string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
