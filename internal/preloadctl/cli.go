package preloadctl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"preloadd/pkg/types"
)

// Client talks to a running preloadd instance.
type Client struct {
	Addr string
	HTTP *http.Client
}

// NewClient resolves the server address from the flag value, then the
// PRELOADCTL_ADDR environment variable, then the local default.
func NewClient(addr string) *Client {
	if addr == "" {
		addr = os.Getenv("PRELOADCTL_ADDR")
	}
	if addr == "" {
		addr = "http://127.0.0.1:8080"
	}
	return &Client{Addr: strings.TrimRight(addr, "/"), HTTP: &http.Client{Timeout: 60 * time.Second}}
}

// BuildRootCmd constructs the preloadctl command tree.
func BuildRootCmd() *cobra.Command {
	var addr string
	root := &cobra.Command{
		Use:           "preloadctl",
		Short:         "Control a running preloadd image cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", "", "preloadd base URL (defaults PRELOADCTL_ADDR or http://127.0.0.1:8080)")

	var quality int
	preloadCmd := &cobra.Command{
		Use:     "preload <url> [url...]",
		Short:   "Preload one or more image URLs into the cache",
		Example: "  preloadctl preload https://cdn.example.com/hero.jpg\n  preloadctl --addr http://10.0.0.5:8080 preload --quality 90 https://cdn.example.com/a.jpg https://cdn.example.com/b.jpg",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := NewClient(addr)
			var out types.PreloadResponse
			req := types.PreloadRequest{URLs: args, Quality: quality}
			if err := c.postJSON("/preload", req, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	preloadCmd.Flags().IntVar(&quality, "quality", 0, "JPEG quality hint (0=server default)")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache hit/miss/coalesce counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := NewClient(addr)
			var out types.CacheStats
			if err := c.getJSON("/stats", &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Evict every cached image (in-flight loads are unaffected)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := NewClient(addr)
			var out types.ClearResponse
			if err := c.postJSON("/clear", nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	root.AddCommand(preloadCmd, statsCmd, clearCmd)
	return root
}

// Main is the process entrypoint shared with cmd/preloadctl.
func Main() {
	if err := BuildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (c *Client) getJSON(path string, out any) error {
	resp, err := c.HTTP.Get(c.Addr + path)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func (c *Client) postJSON(path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	resp, err := c.HTTP.Post(c.Addr+path, "application/json", rd)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

// decodeResponse surfaces the server's structured error body on non-2xx.
func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e types.ErrorResponse
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.Unmarshal(b, out)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
