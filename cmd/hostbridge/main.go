// Command hostbridge is a demonstration host: it resolves document content,
// publishes sample bridge objects into an embedded scripting environment,
// and runs a document-side script against the channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hostbridge/hostbridge/internal/bridge"
	"github.com/hostbridge/hostbridge/internal/config"
	"github.com/hostbridge/hostbridge/internal/content"
	"github.com/hostbridge/hostbridge/internal/transport"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file path (default: HOSTBRIDGE_CONFIG or ~/.hostbridge/config)")
	contentRoot := flag.String("content-root", "", "production content root directory")
	devDocument := flag.String("dev-document", "", "development document file")
	inlineFile := flag.String("inline", "", "file whose contents become inline development content")
	scriptPath := flag.String("script", "", "document-side script to run against the channel")
	validate := flag.Bool("validate", false, "validate the content root and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	for _, warning := range cfg.Warnings {
		logger.Warn("config warning", "warning", warning)
	}

	// Flags override config.
	if *contentRoot == "" {
		*contentRoot = cfg.Content.ProductionRoot
	}
	if *devDocument == "" {
		*devDocument = cfg.Content.DevDocument
	}
	if *inlineFile == "" {
		*inlineFile = cfg.Content.DevInlineFile
	}

	if *validate {
		ok, issues := content.ValidateContentRoot(*contentRoot)
		for _, issue := range issues {
			fmt.Println(issue)
		}
		if !ok {
			return fmt.Errorf("content root failed validation: %s", *contentRoot)
		}
		fmt.Println("content root ok")
		return nil
	}

	resolver := content.NewResolver()
	resolver.SetProductionRoot(*contentRoot)
	resolver.SetDevelopmentPath(*devDocument)
	if *inlineFile != "" {
		text, err := os.ReadFile(*inlineFile)
		if err != nil {
			return fmt.Errorf("read inline content: %w", err)
		}
		resolver.SetDevelopmentInline(string(text))
	}

	resolution, err := resolver.ResolveOrErr()
	if err != nil {
		return err
	}

	switch resolution.Kind {
	case content.KindPath:
		fmt.Printf("document content: %s\n", resolution.Path)
	case content.KindInline:
		scratch, err := content.NewScratch("")
		if err != nil {
			return err
		}
		defer func() { _ = scratch.Release() }()
		path, err := scratch.WriteInline(resolution.Inline)
		if err != nil {
			return err
		}
		fmt.Printf("document content (inline, materialized): %s\n", path)
	}

	ctx := context.Background()
	rt, err := transport.NewRuntime(ctx)
	if err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}
	defer func() { _ = rt.Close() }()
	if cfg.Channel.SyncTimeoutSeconds > 0 {
		rt.SetSyncTimeout(time.Duration(cfg.Channel.SyncTimeoutSeconds) * time.Second)
	}

	registry := bridge.NewRegistry()
	registerSampleBridges(registry, logger)

	adapter, err := transport.NewAdapter(rt, registry, logger)
	if err != nil {
		return fmt.Errorf("attach adapter: %w", err)
	}
	defer adapter.Close()

	source := demoScript
	name := "demo"
	if *scriptPath != "" {
		data, err := os.ReadFile(*scriptPath)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		source = string(data)
		name = *scriptPath
	}
	if err := adapter.LoadDocumentScript(name, source); err != nil {
		return fmt.Errorf("document script: %w", err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// registerSampleBridges wires the two stock specializations with demo
// content so the channel has something to talk to.
func registerSampleBridges(registry *bridge.Registry, logger *slog.Logger) {
	assets := bridge.NewDataBridge("assets")
	assets.SetErrorCallback(func(msg string) {
		logger.Warn("assets bridge error", "message", msg)
	})
	assets.ReplaceAll([]bridge.Record{
		{"id": "1", "name": "Character Rig", "description": "biped rig v3"},
		{"id": "2", "name": "Environment Kit", "description": "modular walls"},
		{"id": "3", "name": "Skybox", "description": "dusk gradient"},
	})
	registry.Register("assets", assets.Object)

	actions := bridge.NewActionBridge("actions")
	actions.RegisterAction("echo", func(params map[string]any) (any, error) {
		return params, nil
	})
	actions.RegisterAction("now", func(map[string]any) (any, error) {
		return map[string]any{"time": time.Now().Format(time.RFC3339)}, nil
	})
	registry.Register("actions", actions.Object)
}

const demoScript = `
console.log("bridge objects:", Object.keys(channel.objects).join(", "));

var info = channel.objects.assets.getBridgeInfo();
console.log("assets capabilities:", info.value.capabilities.join(", "));

channel.objects.assets.connect("searchResults", function (payload) {
	console.log("searchResults:", payload);
});
var result = channel.objects.assets.requestSearch({query: "rig"});
console.log("search status:", result.status);

var completed = channel.objects.actions.executeAction({action: "now", params: {}});
console.log("now:", JSON.stringify(completed.value));
`
