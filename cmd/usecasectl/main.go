// SPDX-License-Identifier: Apache-2.0

// usecasectl is a small operator tool for the core service. It talks to
// the REST API with the internal service token, so every call bypasses
// the per-user permission checks.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	apiURL        string
	internalToken string
)

func main() {
	root := &cobra.Command{
		Use:           "usecasectl",
		Short:         "Operator tool for the use-case core service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&apiURL, "api-url", envOr("API_URL", "http://localhost:8080"), "base URL of the core service API")
	root.PersistentFlags().StringVar(&internalToken, "internal-token", os.Getenv("INTERNAL_TOKEN"), "internal service token")

	root.AddCommand(plantsCmd(), useCasesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func plantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plants",
		Short: "Manage plants",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all plants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/v1/plants", nil)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <id> <name>",
		Short: "Create a plant (id must match P<nn>)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"id": args[0], "name": args[1]}
			return call(http.MethodPost, "/v1/plants", body)
		},
	})

	return cmd
}

func useCasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usecases",
		Short: "Inspect and override use cases",
	}

	var plantID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List use cases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/use-cases"
			if plantID != "" {
				path += "?plant_id=" + plantID
			}
			return call(http.MethodGet, path, nil)
		},
	}
	list.Flags().StringVar(&plantID, "plant", "", "filter by plant id")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "set-status <id> <status>",
		Short: "Privileged status override (e.g. declined)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodPost, fmt.Sprintf("/v1/use-cases/%s/status/%s", args[0], args[1]), nil)
		},
	})

	return cmd
}

func call(method, path string, body any) error {
	if internalToken == "" {
		return fmt.Errorf("internal token is required (--internal-token or INTERNAL_TOKEN)")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(encoded))
	}

	req, err := http.NewRequest(method, strings.TrimRight(apiURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Internal-Token", internalToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	fmt.Println(strings.TrimSpace(string(payload)))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
