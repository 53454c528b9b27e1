package config

import "time"

// NewGeminiForTest creates a Gemini config for testing purposes
func NewGeminiForTest(projectID, location string, temperature float64, maxTokens int) *Gemini {
	return &Gemini{
		projectID:   projectID,
		location:    location,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, projectID, postgresURL string) *Repository {
	return &Repository{
		backend:     backend,
		projectID:   projectID,
		postgresURL: postgresURL,
	}
}

// NewEmbeddingForTest creates an Embedding config for testing purposes
func NewEmbeddingForTest(provider, model string, dimension int) *Embedding {
	return &Embedding{
		provider:  provider,
		model:     model,
		dimension: dimension,
		maxChars:  1000,
		rps:       0,
		burst:     1,
	}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output, file string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: output,
		file:   file,
	}
}

// NewWorkflowForTest creates a Workflow config for testing purposes
func NewWorkflowForTest(configPath string) *Workflow {
	return &Workflow{configPath: configPath}
}

// NewCaseLawForTest creates a CaseLaw config for testing purposes
func NewCaseLawForTest(apiKey, depth string, minScore float64) *CaseLaw {
	return &CaseLaw{
		apiKey:    apiKey,
		depth:     depth,
		minScore:  minScore,
		rpm:       60,
		cacheTTL:  time.Hour,
		cacheSize: 16,
	}
}
