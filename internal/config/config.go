package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config carries the backend settings that rarely change between runs.
// CLI flags take priority over environment variables, which take priority
// over a .env file in the working directory.
type Config struct {
	OllamaURL    string `env:"CHATSCRIBE_OLLAMA_URL" envDefault:"http://localhost:11434"`
	VisionModel  string `env:"CHATSCRIBE_VISION_MODEL" envDefault:"llama3.2-vision:latest"`
	VisionPrompt string `env:"CHATSCRIBE_VISION_PROMPT" envDefault:"Describe this image in detail but concisely"`
	Model        string `env:"CHATSCRIBE_MODEL" envDefault:"base"`
	ModelDir     string `env:"CHATSCRIBE_MODEL_DIR"`
	Language     string `env:"CHATSCRIBE_LANGUAGE" envDefault:"auto"`
}

// Load reads configuration from a .env file (silent if missing) and the
// process environment.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
