// Package main provides the suri CLI, a thin client over the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/surisearch/suri-search/internal/accuracy"
	"github.com/surisearch/suri-search/internal/ask"
	"github.com/surisearch/suri-search/internal/client"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "suri",
		Short: "Suri Search - question answering over commission documents",
		Long: `Suri Search answers natural-language questions over ingested
commission statements and other tabular documents.

Run 'suri-server' to start the server, then point this CLI at it.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "server base URL")
	rootCmd.PersistentFlags().String("api-key", "", "API key (or SURI_API_KEY)")
	rootCmd.PersistentFlags().Duration("timeout", 2*time.Minute, "request timeout")
	rootCmd.PersistentFlags().Bool("json", false, "print raw JSON responses")

	rootCmd.AddCommand(
		askCmd(),
		analyzeCmd(),
		uploadCmd(),
		schemasCmd(),
		accuracyCmd(),
		optimizeCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newClient(cmd *cobra.Command) *client.Client {
	baseURL, _ := cmd.Flags().GetString("server")
	apiKey, _ := cmd.Flags().GetString("api-key")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if apiKey == "" {
		apiKey = os.Getenv("SURI_API_KEY")
	}

	return client.New(client.Config{BaseURL: baseURL, APIKey: apiKey, Timeout: timeout})
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// readDocument loads a file argument into an upload payload, inferring the
// kind from the extension.
func readDocument(path string) (client.DocumentPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return client.DocumentPayload{}, err
	}

	kind := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return client.DocumentPayload{
		Name:    filepath.Base(path),
		Kind:    kind,
		Content: string(data),
	}, nil
}

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			employee, _ := cmd.Flags().GetString("employee")
			period, _ := cmd.Flags().GetString("period")
			schemaSlug, _ := cmd.Flags().GetString("schema")
			userID, _ := cmd.Flags().GetString("user")
			clearance, _ := cmd.Flags().GetString("clearance")
			asJSON, _ := cmd.Flags().GetBool("json")

			target := map[string]string{}
			if employee != "" {
				target["employee_id"] = employee
			}
			if period != "" {
				target["period"] = period
			}

			c := newClient(cmd)
			outcome, err := c.Ask(context.Background(), ask.Request{
				Query:         args[0],
				UserID:        userID,
				Clearance:     clearance,
				SchemaSlug:    schemaSlug,
				TargetContext: target,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(outcome)
			}

			fmt.Println(outcome.Response)
			fmt.Printf("\n[route=%s intent=%s partitions=%v total=%dms]\n",
				outcome.RouteType, outcome.IntentType, outcome.Partitions, outcome.Timings.TotalMS)
			return nil
		},
	}

	cmd.Flags().String("employee", "", "target employee id")
	cmd.Flags().String("period", "", "target period (YYYYMM)")
	cmd.Flags().String("schema", "", "schema slug hint")
	cmd.Flags().String("user", "", "requesting user id")
	cmd.Flags().String("clearance", "", "clearance level")
	return cmd
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a document's structure without ingesting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}

			raw, err := newClient(cmd).Analyze(context.Background(), doc)
			if err != nil {
				return err
			}

			var pretty any
			if err := json.Unmarshal(raw, &pretty); err != nil {
				fmt.Println(string(raw))
				return nil
			}
			return printJSON(pretty)
		},
	}
}

func uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Enqueue a document for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			doc.SchemaSlug, _ = cmd.Flags().GetString("schema")
			doc.Partition, _ = cmd.Flags().GetString("partition")

			jobID, err := newClient(cmd).UploadDocument(context.Background(), doc)
			if err != nil {
				return err
			}
			fmt.Printf("accepted: job %s\n", jobID)
			return nil
		},
	}

	cmd.Flags().String("schema", "", "schema slug (skips matching)")
	cmd.Flags().String("partition", "", "default partition for identifier-less chunks")
	return cmd
}

func schemasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schemas",
		Short: "Manage document schemas",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schemas, err := newClient(cmd).ListSchemas(context.Background())
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				return printJSON(schemas)
			}
			for _, s := range schemas {
				active := " "
				if s.IsActive {
					active = "*"
				}
				fmt.Printf("%s %-24s v%-3d fields=%d\n", active, s.TemplateSlug, s.Version, len(s.Fields))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <slug>",
		Short: "Show one schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := newClient(cmd).GetSchema(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(def)
		},
	})

	discover := &cobra.Command{
		Use:   "discover <file>",
		Short: "Derive or update a schema from a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			doc.SlugHint, _ = cmd.Flags().GetString("slug")

			result, err := newClient(cmd).DiscoverSchema(context.Background(), doc)
			if err != nil {
				return err
			}

			verb := "created"
			if result.IsUpdate {
				verb = "updated"
			}
			fmt.Printf("%s schema %s (v%d)\n", verb, result.Schema.TemplateSlug, result.Schema.Version)
			return nil
		},
	}
	discover.Flags().String("slug", "", "slug hint for the schema")
	cmd.AddCommand(discover)

	cmd.AddCommand(&cobra.Command{
		Use:   "alias <slug> <field> <alias>",
		Short: "Add a field alias to a schema",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(cmd).AddAlias(context.Background(), args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Println("added")
			return nil
		},
	})

	return cmd
}

func accuracyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accuracy",
		Short: "Manage and run the accuracy suite",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List accuracy tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schemaSlug, _ := cmd.Flags().GetString("schema")
			tests, err := newClient(cmd).ListTests(context.Background(), schemaSlug)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				return printJSON(tests)
			}
			for _, t := range tests {
				state := "active"
				if !t.IsActive {
					state = "inactive"
				}
				fmt.Printf("%-36s %-8s %-8s %s  %s\n", t.ID, t.Priority, state, t.SchemaSlug, t.Query)
			}
			return nil
		},
	}
	list.Flags().String("schema", "", "filter by schema slug")
	cmd.AddCommand(list)

	add := &cobra.Command{
		Use:   "add <file>",
		Short: "Register accuracy tests from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var tests []accuracy.Test
			if err := json.Unmarshal(data, &tests); err != nil {
				// A single test object is accepted too.
				var one accuracy.Test
				if err := json.Unmarshal(data, &one); err != nil {
					return fmt.Errorf("invalid test file: %w", err)
				}
				tests = []accuracy.Test{one}
			}

			c := newClient(cmd)
			for _, t := range tests {
				created, err := c.CreateTest(context.Background(), t)
				if err != nil {
					return err
				}
				fmt.Printf("created %s (%s)\n", created.ID, created.Query)
			}
			return nil
		},
	}
	cmd.AddCommand(add)

	run := &cobra.Command{
		Use:   "run <schema>",
		Short: "Run the accuracy suite for a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			priority, _ := cmd.Flags().GetString("priority")

			report, err := newClient(cmd).RunSuite(context.Background(), args[0], category, priority)
			if err != nil {
				return err
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				return printJSON(report)
			}

			fmt.Printf("accuracy: %.1f%% (%d/%d passed)\n",
				report.Accuracy*100, report.TestsPassed, report.TestsRun)
			for _, r := range report.Results {
				if r.Passed {
					continue
				}
				fmt.Printf("  FAIL %s", r.TestID)
				for _, d := range r.Discrepancies {
					fmt.Printf("  [%s %s %s]", d.Severity, d.Type, d.Field)
				}
				fmt.Println()
			}
			return nil
		},
	}
	run.Flags().String("category", "", "filter by category")
	run.Flags().String("priority", "", "filter by priority")
	cmd.AddCommand(run)

	history := &cobra.Command{
		Use:   "history <test-id>",
		Short: "Show one test's result history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			results, err := newClient(cmd).History(context.Background(), args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
	history.Flags().Int("limit", 50, "maximum results to return")
	cmd.AddCommand(history)

	actions := &cobra.Command{
		Use:   "actions",
		Short: "Show the optimization audit trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			acts, err := newClient(cmd).ListActions(context.Background(), limit)
			if err != nil {
				return err
			}
			return printJSON(acts)
		},
	}
	actions.Flags().Int("limit", 50, "maximum actions to return")
	cmd.AddCommand(actions)

	return cmd
}

func optimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize <schema>",
		Short: "Run the suite, diagnose failures and apply fixes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			raw, err := newClient(cmd).Optimize(context.Background(), args[0], dryRun)
			if err != nil {
				return err
			}

			var pretty any
			if err := json.Unmarshal(raw, &pretty); err != nil {
				fmt.Println(string(raw))
				return nil
			}
			return printJSON(pretty)
		},
	}

	cmd.Flags().Bool("dry-run", false, "preview changes without applying them")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("suri %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}
