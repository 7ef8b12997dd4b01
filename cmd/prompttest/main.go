package main

// Try a prompt template against a transcript without going through the
// queue:
//   go run ./cmd/prompttest -transcript ./meeting.txt -prompt ./summary.md

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/drewano/VocalAlchemy/internal/llm"
	openai "github.com/drewano/VocalAlchemy/internal/llm/openai"
	"github.com/drewano/VocalAlchemy/internal/pipeline"
	"github.com/drewano/VocalAlchemy/internal/shared/config"
)

func main() {
	cfg := config.Load()

	transcriptPath := flag.String("transcript", "", "Path to a transcript text file")
	promptPath := flag.String("prompt", "", "Path to a prompt template file")
	renderOnly := flag.Bool("render-only", false, "Print the rendered prompt without calling the model")
	provider := flag.String("provider", cfg.LLMProvider, "LLM provider")
	model := flag.String("model", cfg.LLMModel, "LLM model")
	flag.Parse()

	if strings.TrimSpace(*transcriptPath) == "" {
		exitErr("transcript path is required")
	}
	if strings.TrimSpace(*promptPath) == "" {
		exitErr("prompt path is required")
	}

	transcript, err := os.ReadFile(*transcriptPath)
	if err != nil {
		exitErr(fmt.Sprintf("read transcript: %v", err))
	}
	template, err := os.ReadFile(*promptPath)
	if err != nil {
		exitErr(fmt.Sprintf("read prompt: %v", err))
	}

	instruction := pipeline.Render(string(template), map[string]string{
		"transcript": string(transcript),
	})

	if *renderOnly {
		fmt.Println(instruction)
		return
	}

	client, err := buildClient(*provider, *model)
	if err != nil {
		exitErr(err.Error())
	}

	output, err := client.Complete(context.Background(), instruction, string(transcript))
	if err != nil {
		exitErr(fmt.Sprintf("complete: %v", err))
	}
	fmt.Println(output)
}

func buildClient(provider, model string) (llm.Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return openai.NewClient(os.Getenv("OPENAI_API_KEY"), model)
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}

func exitErr(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
