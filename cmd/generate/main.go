package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"dailyjokes/internal/config"
	"dailyjokes/internal/generator"
	"dailyjokes/pkg/logger"
)

func main() {
	category := flag.String("category", "general", "category to generate jokes for")
	description := flag.String("description", "", "category description passed to the model")
	count := flag.Int("count", 5, "number of jokes to request")
	flag.Parse()

	logger.Init("debug", nil)

	fmt.Println("=== Testing Generator ===")
	fmt.Println()

	cfg := config.GeneratorConfig{
		APIKey:      os.Getenv("OPENAI_API_KEY"),
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-3.5-turbo",
		MaxTokens:   2000,
		Temperature: 0.7,
	}

	g := generator.New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Printf("Requesting %d jokes for %q...\n", *count, *category)
	jokes, err := g.Generate(ctx, *category, *description, *count)
	if err != nil {
		logger.Error("Generation error", logger.Err(err))
		os.Exit(1)
	}

	fmt.Printf("✓ Generated %d jokes\n", len(jokes))
	for i, joke := range jokes {
		fmt.Printf("  %d: %s\n", i+1, joke)
	}

	fmt.Println()
	fmt.Println("=== Test Complete ===")
}
