package cli

import (
	"github.com/chatscribe/chatscribe/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		OllamaURL:    "http://localhost:11434",
		VisionModel:  "llama3.2-vision:latest",
		VisionPrompt: "Describe this image in detail but concisely",
		Model:        "base",
		Language:     "auto",
	}
}
