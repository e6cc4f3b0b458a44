// Package loadersim is a scripted loader client for exercising a running API.
package loadersim

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/tools/common"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/tools/loaderclient"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/tools/loadgen"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/tools/ui"
)

type options struct {
	baseURL     string
	username    string
	password    string
	fingerprint string
	licenseKey  string
	heartbeats  int
	interval    time.Duration
	ci          bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "loader-sim", Short: "Simulate a desktop loader against the API"}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.PersistentFlags().StringVar(&opts.username, "username", "loadgen", "account username")
	cmd.PersistentFlags().StringVar(&opts.password, "password", "loadgen-password", "account password")
	cmd.PersistentFlags().StringVar(&opts.fingerprint, "fingerprint", "loader-sim-device", "device fingerprint")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newFlowCommand(opts), newLoadCommand(opts))
	return cmd
}

func newFlowCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Register, activate, handshake, log in, heartbeat and replay once",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "loader flow", func(ctx context.Context) ([]string, error) {
				return Flow(ctx, loaderclient.New(opts.baseURL), *opts)
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "loader flow", details, err)
			}
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.licenseKey, "license", "", "license key to activate before loader login")
	cmd.Flags().IntVar(&opts.heartbeats, "heartbeats", 3, "heartbeats to send")
	cmd.Flags().DurationVar(&opts.interval, "interval", time.Second, "delay between heartbeats")
	return cmd
}

func newLoadCommand(opts *options) *cobra.Command {
	cfg := loadgen.Config{}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Drive loader and auth traffic at a fixed rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.BaseURL = opts.baseURL
			cfg.Username = opts.username
			cfg.Password = opts.password
			cfg.Fingerprint = opts.fingerprint
			details, err := run(opts, "loader load", func(ctx context.Context) ([]string, error) {
				res, err := loadgen.Run(ctx, cfg)
				if err != nil {
					return nil, err
				}
				return []string{
					fmt.Sprintf("total=%d failures=%d", res.TotalRequests, res.Failures),
					fmt.Sprintf("2xx=%d 4xx=%d 5xx=%d", res.StatusClasses["2xx"], res.StatusClasses["4xx"], res.StatusClasses["5xx"]),
				}, nil
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "loader load", details, err)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&cfg.Profile, "profile", "mixed", "health, auth, loader or mixed")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 10*time.Second, "how long to run")
	cmd.Flags().IntVar(&cfg.RPS, "rps", 10, "requests per second")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 4, "parallel workers")
	cmd.Flags().Uint64Var(&cfg.Seed, "seed", 42, "operation mix seed")
	return cmd
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

// Flow walks the full loader lifecycle. Registration conflicts are
// tolerated so the flow can be rerun against the same account.
func Flow(ctx context.Context, c *loaderclient.Client, opts options) ([]string, error) {
	var details []string
	err := c.Register(ctx, opts.username, opts.username+"@loader.local", opts.password)
	var apiErr *loaderclient.APIError
	switch {
	case err == nil:
		details = append(details, "registered "+opts.username)
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict:
		details = append(details, "account exists")
	default:
		return details, fmt.Errorf("register: %w", err)
	}

	if opts.licenseKey != "" {
		login, err := c.Login(ctx, opts.username, opts.password, opts.fingerprint)
		if err != nil {
			return details, fmt.Errorf("login: %w", err)
		}
		if err := c.ActivateLicense(ctx, login.AccessToken, opts.licenseKey, opts.fingerprint); err != nil {
			return details, fmt.Errorf("activate license: %w", err)
		}
		details = append(details, "activated "+opts.licenseKey)
	}

	sess, err := c.LoaderLogin(ctx, opts.username, opts.password, opts.fingerprint)
	if err != nil {
		return details, err
	}
	details = append(details, fmt.Sprintf("loader session established license=%s status=%s", sess.License.Key, sess.License.Status))

	var last string
	for i := 0; i < opts.heartbeats; i++ {
		nonce := fmt.Sprintf("%s-%d-%d", opts.fingerprint, time.Now().UnixNano(), i)
		if err := c.Heartbeat(ctx, sess, nonce); err != nil {
			return details, fmt.Errorf("heartbeat %d: %w", i+1, err)
		}
		last = nonce
		if i+1 < opts.heartbeats && opts.interval > 0 {
			select {
			case <-ctx.Done():
				return details, ctx.Err()
			case <-time.After(opts.interval):
			}
		}
	}
	details = append(details, fmt.Sprintf("heartbeats ok=%d", opts.heartbeats))

	if last != "" {
		err := c.Heartbeat(ctx, sess, last)
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
			return details, fmt.Errorf("replayed heartbeat was not rejected: %v", err)
		}
		details = append(details, "replayed heartbeat rejected")
	}
	return details, nil
}
