// Package main provides the retrievalctl CLI entry point: a thin cobra-based
// wrapper for local smoke-testing the retrieval pipeline against the
// in-memory adapters (hnsw + bleve), without a running qdrant or
// cross-encoder service. Grounded on the teacher's
// nornicdb/cmd/nornicdb/main.go command layout (root command with
// subcommands carrying their own flag sets, RunE-based handlers).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orneryd/retrievalcore/adapters/lexicalstore/bleve"
	"github.com/orneryd/retrievalcore/adapters/vectorstore/hnsw"
	"github.com/orneryd/retrievalcore/internal/guardrail"
	"github.com/orneryd/retrievalcore/internal/orchestrator"
	"github.com/orneryd/retrievalcore/internal/tenant"
	"github.com/orneryd/retrievalcore/internal/types"
	"github.com/orneryd/retrievalcore/pkg/embed"
)

var version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "retrievalctl",
		Short: "retrievalctl - local smoke test harness for the hybrid retrieval pipeline",
		Long: `retrievalctl drives the hybrid retrieval pipeline end to end against
in-memory vector (coder/hnsw) and lexical (bleve) adapters, for local
development and smoke testing without a running qdrant or cross-encoder
service.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("retrievalctl v%s\n", version)
		},
	})
	root.AddCommand(seedCmd())
	root.AddCommand(queryCmd())
	root.AddCommand(configDumpCmd())
	return root
}

// embedDimensions is the fixed dimensionality used by the in-memory demo
// corpus; a real deployment sizes this from its embedding model.
const embedDimensions = 1024

func buildEmbedder(ollamaURL, model string) embed.Embedder {
	cfg := embed.DefaultOllamaConfig()
	if ollamaURL != "" {
		cfg.APIURL = ollamaURL
	}
	if model != "" {
		cfg.Model = model
	}
	return embed.NewCachedEmbedder(embed.NewOllama(cfg), 512)
}

func seedCmd() *cobra.Command {
	var dataDir, ollamaURL, model string
	cmd := &cobra.Command{
		Use:   "seed [file]",
		Short: "Index a newline-delimited JSON document file into the in-memory stores",
		Long: `Each line of [file] is a JSON object with at least "id", "tenant",
"docId", "acl" (array of strings), and "content" fields; "sectionPath" is
optional. Every document is embedded and written into both the hnsw vector
store and the bleve lexical store at dataDir.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), args[0], dataDir, ollamaURL, model)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data/retrievalctl", "Directory for the bleve on-disk index")
	cmd.Flags().StringVar(&ollamaURL, "embedding-url", "", "Embedding API URL (default: Ollama at localhost)")
	cmd.Flags().StringVar(&model, "embedding-model", "", "Embedding model name")
	return cmd
}

func runSeed(ctx context.Context, path, dataDir, ollamaURL, model string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer file.Close()

	vecStore, err := hnsw.New(hnsw.DefaultConfig(embedDimensions))
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	lexStore, err := bleve.New(dataDir)
	if err != nil {
		return fmt.Errorf("init lexical store: %w", err)
	}
	defer lexStore.Close()

	embedder := buildEmbedder(ollamaURL, model)

	batch := make(map[string]map[string]any)
	count := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			return fmt.Errorf("parse line %d: %w", count+1, err)
		}
		id, _ := payload["id"].(string)
		content, _ := payload["content"].(string)
		if id == "" || content == "" {
			return fmt.Errorf("line %d: missing id or content", count+1)
		}

		vec, err := embedder.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("embed document %s: %w", id, err)
		}
		if err := vecStore.Upsert(id, vec, payload); err != nil {
			return fmt.Errorf("index vector for %s: %w", id, err)
		}
		batch[id] = payload
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	if err := lexStore.Index(batch); err != nil {
		return fmt.Errorf("index lexical batch: %w", err)
	}

	fmt.Printf("seeded %d documents into %s\n", count, dataDir)
	return nil
}

func queryCmd() *cobra.Command {
	var (
		dataDir, ollamaURL, model, tenantID, userID string
		limit                                       int
		sectionAware                                bool
	)
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Run the hybrid retrieval pipeline against the in-memory stores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), args[0], dataDir, ollamaURL, model, tenantID, userID, limit, sectionAware)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data/retrievalctl", "Directory holding the bleve on-disk index (must match seed)")
	cmd.Flags().StringVar(&ollamaURL, "embedding-url", "", "Embedding API URL (default: Ollama at localhost)")
	cmd.Flags().StringVar(&model, "embedding-model", "", "Embedding model name")
	cmd.Flags().StringVar(&tenantID, "tenant", "default", "Requesting principal's tenant")
	cmd.Flags().StringVar(&userID, "user", "cli-user", "Requesting principal's id")
	cmd.Flags().IntVar(&limit, "limit", 10, "Result limit")
	cmd.Flags().BoolVar(&sectionAware, "sections", false, "Run the section-completion wrapper")
	return cmd
}

func runQuery(ctx context.Context, query, dataDir, ollamaURL, model, tenantID, userID string, limit int, sectionAware bool) error {
	vecStore, err := hnsw.New(hnsw.DefaultConfig(embedDimensions))
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	lexStore, err := bleve.New(dataDir)
	if err != nil {
		return fmt.Errorf("init lexical store: %w", err)
	}
	defer lexStore.Close()

	embedder := buildEmbedder(ollamaURL, model)

	hybrid := &orchestrator.Hybrid{
		Vector:   vecStore,
		Lexical:  lexStore,
		Embedder: embedder,
		Timeouts: orchestrator.DefaultTimeouts(),
		Opts:     orchestrator.DefaultOptions(),
	}

	var retriever guardrail.Retriever = hybrid
	if sectionAware {
		retriever = &orchestrator.SectionAware{Hybrid: hybrid, Lexical: lexStore, Opts: orchestrator.DefaultSectionOptions()}
	}

	svc := &guardrail.Service{Retriever: retriever}

	principal := types.Principal{ID: userID, Tenant: tenantID}
	req := types.RetrieveRequest{Query: query, Limit: limit, TenantID: tenantID}
	cfg := tenant.BootstrapDefaults()
	cfg.TenantID = tenantID

	result, err := svc.RetrieveGuarded(ctx, "docs", req, principal, cfg)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}

	printGuardedResult(result)
	return nil
}

func printGuardedResult(result types.RetrieveGuardedResult) {
	if !result.Answerable {
		fmt.Printf("IDK [%s]: %s\n", result.IDK.ReasonCode, result.IDK.Message)
		for _, s := range result.IDK.Suggestions {
			fmt.Printf("  - %s\n", s)
		}
		return
	}
	fmt.Printf("answerable=true confidence=%.3f\n", result.Decision.Score.Confidence)
	for i, c := range result.Results {
		fmt.Printf("%d. [%s] score=%.4f doc=%s\n   %s\n", i+1, c.ID, c.Score, c.Payload.DocID, truncate(c.Content, 120))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func configDumpCmd() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "config-dump",
		Short: "Print the bootstrap TenantConfig as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := tenant.BootstrapDefaults()
			cfg.TenantID = tenantID
			out, err := tenant.MarshalJSON(cfg)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "default", "Tenant id to stamp onto the dumped config")
	return cmd
}
