// Command pixlieai is the graph engine's CLI entry point: start the HTTP
// API server, initialize a settings file, or manage projects.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/pixlieai/graphengine/pkg/api"
	"github.com/pixlieai/graphengine/pkg/config"
	"github.com/pixlieai/graphengine/pkg/fetcher"
	"github.com/pixlieai/graphengine/pkg/graph"
	"github.com/pixlieai/graphengine/pkg/kv"
	"github.com/pixlieai/graphengine/pkg/llm"
	"github.com/pixlieai/graphengine/pkg/registry"
	"github.com/pixlieai/graphengine/pkg/scraper"
	"github.com/pixlieai/graphengine/pkg/supervisor"
)

// shutdownTimeout bounds how long serve waits for in-flight HTTP
// requests to drain on SIGINT/SIGTERM.
const shutdownTimeout = 5 * time.Second

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "pixlieai",
		Short: "Knowledge graph engine: crawl, classify, and extract from the web",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pixlieai v%s\n", version)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server and its supervisor loop",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")
	rootCmd.AddCommand(serveCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter settings.toml to the config directory",
		RunE:  runInit,
	}
	initCmd.Flags().String("storage-dir", "", "Directory where project graphs are stored")
	rootCmd.AddCommand(initCmd)

	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects in the registry",
	}
	projectListCmd := &cobra.Command{
		Use:   "list",
		Short: "List known projects",
		RunE:  runProjectList,
	}
	projectCreateCmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new project",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectCreate,
	}
	projectCreateCmd.Flags().String("description", "", "Project description")
	projectCmd.AddCommand(projectListCmd, projectCreateCmd)
	rootCmd.AddCommand(projectCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	status := settings.Complete()
	if !status.Complete {
		fmt.Printf("warning: settings incomplete, missing: %v\n", status.Missing)
	}

	configDir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("resolving config directory: %w", err)
	}
	configPath := configDir + "/settings.toml"

	registryStore, err := kv.NewBadgerStore(kv.BadgerOptions{DataDir: settings.StorageDir + "/registry.badger"})
	if err != nil {
		return fmt.Errorf("opening registry store: %w", err)
	}
	reg := registry.New(registryStore)
	if _, err := reg.EnsureWorkspace(registry.DefaultWorkspaceID, "default"); err != nil {
		return fmt.Errorf("ensuring default workspace: %w", err)
	}

	f := fetcher.New()
	scr := scraper.New()

	factory := supervisor.NewBadgerEngineFactory(settings.StorageDir, f, scr, newLLMProvider(settings), nil)
	sup := supervisor.New(factory, f)

	server := api.New(sup, reg, configPath)
	if err := server.Start(addr); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}
	fmt.Printf("pixlieai listening on %s\n", addr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(ctx) }()

	<-ctx.Done()
	fmt.Println("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		fmt.Printf("api shutdown error: %v\n", err)
	}
	<-runErr
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	storageDir, _ := cmd.Flags().GetString("storage-dir")
	configDir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("resolving config directory: %w", err)
	}
	configPath := configDir + "/settings.toml"

	current, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("reading existing settings: %w", err)
	}
	updates := config.Settings{StorageDir: storageDir}
	merged := config.Merge(current, updates)
	if err := config.SaveTo(configPath, merged); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	fmt.Printf("wrote settings to %s\n", configPath)
	return nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	store, err := kv.NewBadgerStore(kv.BadgerOptions{DataDir: settings.StorageDir + "/registry.badger"})
	if err != nil {
		return fmt.Errorf("opening registry store: %w", err)
	}
	reg := registry.New(store)
	projects, err := reg.ListProjects()
	if err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}
	for _, p := range projects {
		fmt.Printf("%s\t%s\t%s\n", p.UUID, p.Name, p.Description)
	}
	return nil
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	description, _ := cmd.Flags().GetString("description")
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	store, err := kv.NewBadgerStore(kv.BadgerOptions{DataDir: settings.StorageDir + "/registry.badger"})
	if err != nil {
		return fmt.Errorf("opening registry store: %w", err)
	}
	reg := registry.New(store)
	p, err := reg.CreateProject(args[0], description)
	if err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	fmt.Printf("created project %s (%s)\n", p.Name, p.UUID)
	return nil
}

// newLLMProvider returns a nil graph.LLMProvider interface (not a typed
// nil *AnthropicProvider) when no API key is configured, so the engine's
// "eng.llm == nil" checks correctly skip LLM-backed processors.
func newLLMProvider(settings config.Settings) graph.LLMProvider {
	if settings.AnthropicAPIKey == "" {
		return nil
	}
	return llm.NewAnthropicProvider(settings.AnthropicAPIKey, anthropic.Model(settings.AnthropicModel))
}
