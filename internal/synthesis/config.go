package synthesis

import "github.com/abhisek/examprep/internal/llm"

// Config tunes the synthesizer.
type Config struct {
	// MaxContextChunks caps the retrieved chunks quoted in the prompt.
	MaxContextChunks int

	// MaxContextChars bounds the size of the quoted material.
	MaxContextChars int

	// PreviewRunes truncates each quoted chunk.
	PreviewRunes int

	// KeepChunks is the number of chunks returned in Result for tracing.
	KeepChunks int

	// Temperature nil means the default; zero is a valid setting.
	Temperature *float64
	MaxTokens   int
}

func DefaultConfig() Config {
	return Config{
		MaxContextChunks: 30,
		MaxContextChars:  12000,
		PreviewRunes:     400,
		KeepChunks:       10,
		Temperature:      llm.Float(0.3),
		MaxTokens:        4000,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxContextChunks <= 0 {
		c.MaxContextChunks = def.MaxContextChunks
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = def.MaxContextChars
	}
	if c.PreviewRunes <= 0 {
		c.PreviewRunes = def.PreviewRunes
	}
	if c.KeepChunks <= 0 {
		c.KeepChunks = def.KeepChunks
	}
	if c.Temperature == nil {
		c.Temperature = def.Temperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	return c
}
