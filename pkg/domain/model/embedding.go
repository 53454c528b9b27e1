package model

// DefaultEmbeddingDimension is the vector length used when no dimension is configured
const DefaultEmbeddingDimension = 1536

// MaxEmbeddingTextLength is the character limit applied to text before embedding
const MaxEmbeddingTextLength = 32000
