package obscheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/tools/common"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/tools/loadgen"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/tools/ui"
)

// requiredFamilies are the prometheus names the API must expose after mixed
// loader traffic.
var requiredFamilies = []string{
	"auth_login_attempts_total",
	"loader_handshake_attempts_total",
	"http_rate_limit_decisions_total",
	"auth_access_token_validations_total",
}

type options struct {
	baseURL     string
	metricsPath string
	username    string
	password    string
	duration    time.Duration
	ci          bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "obscheck", Short: "Verify the API exports its auth and loader metrics"}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.PersistentFlags().StringVar(&opts.metricsPath, "metrics-path", "/metrics", "prometheus scrape path")
	cmd.PersistentFlags().StringVar(&opts.username, "username", "loadgen", "account used for login traffic")
	cmd.PersistentFlags().StringVar(&opts.password, "password", "loadgen-password", "password for --username")
	cmd.PersistentFlags().DurationVar(&opts.duration, "duration", 6*time.Second, "traffic duration")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Generate traffic and check the scraped metric families",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "obscheck run", func(ctx context.Context) ([]string, error) {
				res, err := loadgen.Run(ctx, loadgen.Config{
					BaseURL:     opts.baseURL,
					Profile:     "mixed",
					Duration:    opts.duration,
					RPS:         20,
					Concurrency: 4,
					Seed:        42,
					Username:    opts.username,
					Password:    opts.password,
				})
				if err != nil {
					return nil, err
				}
				details := []string{fmt.Sprintf("traffic generated total=%d failures=%d", res.TotalRequests, res.Failures)}
				families, err := scrapeFamilies(ctx, opts.baseURL+opts.metricsPath)
				if err != nil {
					return details, err
				}
				missing := missingFamilies(families, requiredFamilies)
				if len(missing) > 0 {
					return details, fmt.Errorf("metric families missing: %s", strings.Join(missing, ", "))
				}
				return append(details, fmt.Sprintf("metric families present: %d", len(requiredFamilies))), nil
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "obscheck run", details, err)
			}
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	}
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

func scrapeFamilies(ctx context.Context, url string) (map[string]struct{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := (&http.Client{Timeout: 20 * time.Second}).Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("scrape %s: %s", url, resp.Status)
	}
	return parseFamilies(resp.Body)
}

// parseFamilies returns the metric family names in a text exposition body.
func parseFamilies(r io.Reader) (map[string]struct{}, error) {
	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}
	out := make(map[string]struct{}, len(families))
	for name := range families {
		out[name] = struct{}{}
	}
	return out, nil
}

func missingFamilies(have map[string]struct{}, want []string) []string {
	var missing []string
	for _, name := range want {
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
