// Package commands wires the cobra command tree for kbenginectl.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/localkb/engine/configs"
	"github.com/localkb/engine/internal/chunk"
	"github.com/localkb/engine/internal/config"
	"github.com/localkb/engine/internal/embed"
	"github.com/localkb/engine/internal/index"
	"github.com/localkb/engine/internal/llmkit"
	"github.com/localkb/engine/internal/logging"
	"github.com/localkb/engine/internal/provider"
	"github.com/localkb/engine/internal/search"
	"github.com/localkb/engine/internal/store"
	"github.com/localkb/engine/internal/ui"
	"github.com/localkb/engine/internal/unified"
	"github.com/localkb/engine/internal/watcher"
	"github.com/localkb/engine/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:           "kbenginectl",
	Short:         "Local knowledge-base search engine",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd, indexCmd, searchCmd, watchCmd, statusCmd)
	indexCmd.Flags().Bool("force", false, "reindex unchanged documents and regenerate metadata")
	indexCmd.Flags().Bool("embed", true, "compute embeddings after indexing")
	searchCmd.Flags().IntP("limit", "n", 10, "maximum results")
	searchCmd.Flags().Bool("json", false, "emit results as JSON")
	searchCmd.Flags().Bool("smart", false, "plan a multi-step workflow instead of single-strategy search")
}

// runtimeEnv bundles everything a command needs.
type runtimeEnv struct {
	cfg     *config.Config
	db      *store.DB
	keyword store.BM25Index
	cleanup func()
}

func openRuntime() (*runtimeEnv, error) {
	cwd, _ := os.Getwd()
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:    cfg.Logging.Level,
		FilePath: logging.DefaultLogPath(),
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		cleanup()
		return nil, err
	}

	keyword, err := store.NewBM25Index(
		store.BM25Backend(cfg.Search.BM25Backend), db, cfg.DatabasePath+".bleve")
	if err != nil {
		_ = db.Close()
		cleanup()
		return nil, err
	}
	return &runtimeEnv{cfg: cfg, db: db, keyword: keyword, cleanup: func() {
		_ = keyword.Close()
		_ = db.Close()
		cleanup()
	}}, nil
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter " + config.ConfigFileName + " in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(config.ConfigFileName); err == nil {
			return fmt.Errorf("%s already exists", config.ConfigFileName)
		}
		return os.WriteFile(config.ConfigFileName, []byte(configs.ProjectConfigExample), 0o644)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index every configured collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openRuntime()
		if err != nil {
			return err
		}
		defer env.cleanup()

		force, _ := cmd.Flags().GetBool("force")
		doEmbed, _ := cmd.Flags().GetBool("embed")
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		registry := provider.DefaultRegistry()
		splitter := chunk.NewSplitter()
		defer splitter.Close()

		llm := llmkit.NewHTTPLLMClient(llmkit.HTTPConfig{
			BaseURL: env.cfg.LLM.BaseURL,
			Model:   env.cfg.LLM.Model,
			APIKey:  env.cfg.APIKey(),
		}, embed.DefaultOllamaDimensions)
		metadata := llmkit.NewCachedMetadataGenerator(
			llmkit.NewLLMMetadataGenerator(llm), env.db, env.cfg.LLM.Model)
		pipeline := index.NewPipeline(env.db, splitter, metadata, nil)
		pipeline.Keyword = env.keyword

		for _, colCfg := range env.cfg.Collections {
			col := store.Collection{
				Name:         colCfg.Name,
				Path:         colCfg.Path,
				Pattern:      colCfg.Pattern,
				ProviderType: colCfg.Provider,
			}
			if len(colCfg.Options) > 0 {
				raw, err := json.Marshal(colCfg.Options)
				if err != nil {
					return err
				}
				col.ProviderConfig = string(raw)
			}
			if col.ProviderType == "" {
				col.ProviderType = provider.FilesystemType
			}
			if err := env.db.UpsertCollection(col); err != nil {
				return err
			}
			prov, err := registry.Get(col.ProviderType)
			if err != nil {
				return err
			}
			stats, err := pipeline.IndexCollection(ctx, prov, col, force)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d listed, %d indexed, %d unchanged, %d failed, %d chunks\n",
				col.Name, stats.Listed, stats.Indexed, stats.Unchanged, stats.Failed, stats.Chunks)
		}

		if doEmbed {
			embedder, err := embed.NewEmbedder(ctx,
				embed.ProviderType(env.cfg.Embeddings.Provider), env.cfg.Embeddings.Model)
			if err != nil {
				return err
			}
			defer embedder.Close()

			renderer := ui.NewPlain(os.Stdout)
			report, err := pipeline.EmbedDocuments(ctx, embedder, force, func(r index.EmbedReport) {
				renderer.UpdateProgress(ui.ProgressEvent{
					Stage:   ui.StageEmbedding,
					Current: r.ProcessedDocs,
					Total:   r.TotalDocs,
					Message: fmt.Sprintf("%d chunks (%d cached)", r.TotalChunks, r.CachedChunks),
				})
			})
			if err != nil {
				return err
			}
			renderer.Complete(ui.CompletionStats{
				Files:  report.ProcessedDocs,
				Chunks: report.TotalChunks,
				Embedder: ui.EmbedderInfo{
					Backend:    env.cfg.Embeddings.Provider,
					Model:      embedder.ModelName(),
					Dimensions: embedder.Dimensions(),
				},
			})
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openRuntime()
		if err != nil {
			return err
		}
		defer env.cleanup()

		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		smart, _ := cmd.Flags().GetBool("smart")
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		embedder, err := embed.NewEmbedder(ctx,
			embed.ProviderType(env.cfg.Embeddings.Provider), env.cfg.Embeddings.Model)
		if err != nil {
			return err
		}
		defer embedder.Close()

		engine := unified.New(env.db, embedder, nil)
		engine.Keyword = env.keyword
		query := args[0]
		opts := search.Options{Limit: limit, MinScore: env.cfg.Search.MinScore, PreferDocs: env.cfg.Search.PreferDocs}

		var results []*search.Result
		if smart {
			results, _, err = engine.SmartSearch(ctx, query, opts)
		} else {
			results, err = engine.Search(ctx, query, opts)
		}
		if err != nil {
			return err
		}

		if asJSON {
			return json.NewEncoder(os.Stdout).Encode(results)
		}
		for _, r := range results {
			location := r.Collection + "/" + r.Path
			if r.Breadcrumb != "" {
				location += " " + r.Breadcrumb
			}
			fmt.Printf("#%s %7.2f %s\n", r.Docid, r.Score, location)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch filesystem collections and index changes incrementally",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openRuntime()
		if err != nil {
			return err
		}
		defer env.cleanup()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		splitter := chunk.NewSplitter()
		defer splitter.Close()
		llm := llmkit.NewHTTPLLMClient(llmkit.HTTPConfig{
			BaseURL: env.cfg.LLM.BaseURL,
			Model:   env.cfg.LLM.Model,
			APIKey:  env.cfg.APIKey(),
		}, embed.DefaultOllamaDimensions)
		metadata := llmkit.NewCachedMetadataGenerator(
			llmkit.NewLLMMetadataGenerator(llm), env.db, env.cfg.LLM.Model)
		pipeline := index.NewPipeline(env.db, splitter, metadata, nil)
		pipeline.Keyword = env.keyword

		prov := provider.NewFilesystemProvider()
		var watchers []*watcher.Watcher
		for _, colCfg := range env.cfg.Collections {
			if colCfg.Provider != "" && colCfg.Provider != provider.FilesystemType {
				continue
			}
			col := store.Collection{
				Name:         colCfg.Name,
				Path:         colCfg.Path,
				Pattern:      colCfg.Pattern,
				ProviderType: provider.FilesystemType,
			}
			coordinator := index.NewCoordinator(pipeline, col, prov)

			w, err := watcher.New(watcher.Options{RespectGitignore: true})
			if err != nil {
				return err
			}
			if err := w.Start(ctx, col.Path); err != nil {
				return err
			}
			watchers = append(watchers, w)
			fmt.Printf("watching %s (%s)\n", col.Name, col.Path)

			go func(w *watcher.Watcher, c *index.Coordinator) {
				for batch := range w.Events() {
					if err := c.HandleEvents(ctx, batch); err != nil {
						slog.Warn("incremental update failed", slog.String("error", err.Error()))
					}
				}
			}(w, coordinator)
		}
		if len(watchers) == 0 {
			return fmt.Errorf("no filesystem collections configured")
		}
		defer func() {
			for _, w := range watchers {
				_ = w.Stop()
			}
		}()

		<-ctx.Done()
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openRuntime()
		if err != nil {
			return err
		}
		defer env.cleanup()

		collections, err := env.db.ListCollections()
		if err != nil {
			return err
		}
		stats := env.keyword.Stats()
		fmt.Printf("collections: %d\n", len(collections))
		for _, col := range collections {
			docs, err := env.db.ActiveDocuments(col.Name)
			if err != nil {
				return err
			}
			fmt.Printf("  %s: %d documents (%s)\n", col.Name, len(docs), col.ProviderType)
		}
		fmt.Printf("chunks indexed: %d\n", stats.DocumentCount)
		fmt.Printf("vector index: %v\n", env.db.HasVectorIndex())
		return nil
	},
}
