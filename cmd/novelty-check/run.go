package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/inventa-labs/noveltycheck/internal/aigateway"
	"github.com/inventa-labs/noveltycheck/internal/config"
	"github.com/inventa-labs/noveltycheck/internal/memorylog"
	"github.com/inventa-labs/noveltycheck/internal/noveltycheck"
	"github.com/inventa-labs/noveltycheck/internal/searchcache"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a novelty assessment",
	Long: `Run assesses one invention. Describe it with flags, or point --request at
a JSON file with the full request shape (invention_name, description,
problem_statement, target_audience, key_features, user_id, project_id).

The JSON verdict goes to stdout. --report additionally writes a markdown
report; --html writes the same report rendered to HTML.`,
	RunE: runNoveltyCheck,
}

func init() {
	runCmd.Flags().String("request", "", "path to a JSON request file")
	runCmd.Flags().String("name", "", "invention name")
	runCmd.Flags().String("description", "", "what the invention is and does")
	runCmd.Flags().String("problem", "", "problem the invention solves")
	runCmd.Flags().String("audience", "", "target audience")
	runCmd.Flags().StringSlice("feature", nil, "key feature (repeatable)")
	runCmd.Flags().String("user", "", "user id for the memory log")
	runCmd.Flags().String("project", "", "project id for the memory log")
	runCmd.Flags().String("report", "", "write a markdown report to this path")
	runCmd.Flags().String("html", "", "write an HTML report to this path")
	runCmd.Flags().String("cache-db", "", "path to the result cache database")
	runCmd.Flags().String("memory-db", "", "path to the memory log database")
	runCmd.Flags().Duration("timeout", 5*time.Minute, "overall run timeout")

	rootCmd.AddCommand(runCmd)
}

func runNoveltyCheck(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(cmd)
	if err != nil {
		return err
	}

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("cache-db"); v != "" {
		cfg.CacheDBPath = v
	}
	if v, _ := cmd.Flags().GetString("memory-db"); v != "" {
		cfg.MemoryDBPath = v
	}

	gw, err := buildGateway(cfg)
	if err != nil {
		return err
	}
	log.Printf("novelty-check channels web=%v retail=%v patent=%v anthropic=%v openai=%v",
		cfg.WebConfigured(), cfg.RetailConfigured(), cfg.PatentConfigured(),
		cfg.AnthropicConfigured(), cfg.OpenAIConfigured())

	cache, err := searchcache.New(cfg.CacheDBPath)
	if err != nil {
		log.Printf("novelty-check cache_unavailable path=%s err=%q", cfg.CacheDBPath, err.Error())
		cache = nil
	} else {
		defer cache.Close()
	}

	var memory *memorylog.Store
	if req.UserID != "" {
		memory, err = memorylog.New(cfg.MemoryDBPath)
		if err != nil {
			log.Printf("novelty-check memory_unavailable path=%s err=%q", cfg.MemoryDBPath, err.Error())
			memory = nil
		} else {
			defer memory.Close()
		}
	}

	agents, closeClients := buildAgents(cfg, cache, gw)
	defer closeClients()
	aggregator := noveltycheck.NewAggregator(noveltycheck.NewExpander(gw), agents, memory)

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	resp := aggregator.Run(ctx, req)

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	reportPath, _ := cmd.Flags().GetString("report")
	htmlPath, _ := cmd.Flags().GetString("html")
	if reportPath == "" && htmlPath == "" {
		return nil
	}
	markdown := noveltycheck.BuildReportMarkdown(req, resp)
	if reportPath != "" {
		if err := os.WriteFile(reportPath, []byte(markdown), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if htmlPath != "" {
		html, err := noveltycheck.RenderReportHTML(markdown)
		if err != nil {
			return err
		}
		if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
			return fmt.Errorf("write html report: %w", err)
		}
	}
	return nil
}

func buildRequest(cmd *cobra.Command) (noveltycheck.Request, error) {
	var req noveltycheck.Request

	if path, _ := cmd.Flags().GetString("request"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return req, fmt.Errorf("read request file: %w", err)
		}
		if err := json.Unmarshal(b, &req); err != nil {
			return req, fmt.Errorf("parse request file: %w", err)
		}
	}

	if v, _ := cmd.Flags().GetString("name"); v != "" {
		req.InventionName = v
	}
	if v, _ := cmd.Flags().GetString("description"); v != "" {
		req.Description = v
	}
	if v, _ := cmd.Flags().GetString("problem"); v != "" {
		req.ProblemStatement = v
	}
	if v, _ := cmd.Flags().GetString("audience"); v != "" {
		req.TargetAudience = v
	}
	if v, _ := cmd.Flags().GetStringSlice("feature"); len(v) > 0 {
		req.KeyFeatures = v
	}
	if v, _ := cmd.Flags().GetString("user"); v != "" {
		req.UserID = v
	}
	if v, _ := cmd.Flags().GetString("project"); v != "" {
		req.ProjectID = v
	}

	if strings.TrimSpace(req.InventionName) == "" || strings.TrimSpace(req.Description) == "" {
		return req, fmt.Errorf("an invention name and description are required (--name/--description or --request)")
	}
	return req, nil
}

func buildGateway(cfg config.Config) (*aigateway.Gateway, error) {
	var primary, fallback aigateway.Provider
	if p := aigateway.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel); p != nil {
		primary = p
	}
	if p := aigateway.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel); p != nil {
		fallback = p
	}
	return aigateway.NewGateway(primary, fallback)
}

func buildAgents(cfg config.Config, cache *searchcache.Store, gw *aigateway.Gateway) ([]noveltycheck.ChannelAgent, func()) {
	web := noveltycheck.NewWebClient(noveltycheck.WebSearchConfig{
		APIKey:     cfg.SerpAPIKey,
		BaseURL:    cfg.SerpAPIBaseURL,
		MaxResults: cfg.WebMaxResults,
	})
	retail := noveltycheck.NewRetailClient(noveltycheck.RetailSearchConfig{
		APIKey:     cfg.SerpAPIKey,
		BaseURL:    cfg.SerpAPIBaseURL,
		MaxResults: cfg.RetailMaxResults,
	})
	patent := noveltycheck.NewPatentClient(noveltycheck.PatentSearchConfig{
		APIKey:     cfg.PatentsViewAPIKey,
		BaseURL:    cfg.PatentsViewBaseURL,
		MaxResults: cfg.PatentMaxResults,
	})
	agents := []noveltycheck.ChannelAgent{
		noveltycheck.NewAgent(noveltycheck.AgentWeb, noveltycheck.NewCachedSearcher(web, cache), gw),
		noveltycheck.NewAgent(noveltycheck.AgentRetail, noveltycheck.NewCachedSearcher(retail, cache), gw),
		noveltycheck.NewAgent(noveltycheck.AgentPatent, noveltycheck.NewCachedSearcher(patent, cache), gw),
	}
	closeClients := func() {
		web.Close()
		retail.Close()
		patent.Close()
	}
	return agents, closeClients
}
