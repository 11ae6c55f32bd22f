package config

// Config consolidates every environment-driven option. It is built once at
// process start and passed explicitly into each component; nothing else in the
// repository reads the process environment for behaviour.
type Config struct {
	// Store
	StoreURL string

	// Embedder
	EmbeddingModel   string
	EmbeddingBaseURL string
	EmbeddingAPIKey  string
	EmbeddingDim     int
	EmbeddingBatch   int

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Ingest
	DefaultProjectID string

	// Retrieval
	ANNProbes    int
	VectorWeight float64
	TextWeight   float64

	// LLM
	LLMProvider string // openai (default, covers Groq via base URL), claude, gemini
	LLMAPIKey   string
	LLMModel    string
	LLMBaseURL  string

	// Optional backends
	RedisAddr     string
	RedisPassword string
	MongoURI      string

	// HTTP
	HTTPAddr string
}

// Load builds the configuration from the environment, applying defaults that
// match the shipped retrieval behaviour.
func Load() *Config {
	return &Config{
		StoreURL: GetEnv("STORE_URL", ""),

		EmbeddingModel:   GetEnv("EMBEDDING_MODEL", "hiiamsid/sentence_similarity_spanish_es"),
		EmbeddingBaseURL: GetEnv("EMBEDDING_BASE_URL", ""),
		EmbeddingAPIKey:  GetEnv("EMBEDDING_API_KEY", ""),
		EmbeddingDim:     GetEnvInt("EMBEDDING_DIM", 768),
		EmbeddingBatch:   GetEnvInt("EMBEDDING_BATCH", 64),

		ChunkSize:    GetEnvInt("CHUNK_SIZE", 500),
		ChunkOverlap: GetEnvInt("CHUNK_OVERLAP", 50),

		DefaultProjectID: GetEnv("DEFAULT_PROJECT_ID", "GENERAL"),

		ANNProbes:    GetEnvInt("ANN_PROBES", 10),
		VectorWeight: GetEnvFloat("VECTOR_WEIGHT", 0.6),
		TextWeight:   GetEnvFloat("TEXT_WEIGHT", 0.4),

		LLMProvider: GetEnv("LLM_PROVIDER", "openai"),
		LLMAPIKey:   GetEnv("LLM_API_KEY", ""),
		LLMModel:    GetEnv("LLM_MODEL", "llama-3.3-70b-versatile"),
		LLMBaseURL:  GetEnv("LLM_BASE_URL", ""),

		RedisAddr:     GetEnv("REDIS_ADDR", ""),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		MongoURI:      GetEnv("MONGO_URI", ""),

		HTTPAddr: GetEnv("HTTP_ADDR", ":8000"),
	}
}

// Validate checks the invariants the pipeline depends on. The LLM key is
// deliberately not required: its absence only disables the generative path.
func (c *Config) Validate() error {
	return NewValidator().
		RequireNonEmpty("STORE_URL", c.StoreURL).
		RequireNonEmpty("EMBEDDING_MODEL", c.EmbeddingModel).
		RequirePositive("EMBEDDING_DIM", c.EmbeddingDim).
		RequirePositive("CHUNK_SIZE", c.ChunkSize).
		RequireLess("CHUNK_OVERLAP", c.ChunkOverlap, c.ChunkSize).
		ValidateRange("ANN_PROBES", c.ANNProbes, 1, 100).
		ValidateFloatRange("VECTOR_WEIGHT", c.VectorWeight, 0, 1).
		ValidateFloatRange("TEXT_WEIGHT", c.TextWeight, 0, 1).
		RequireSumOne("VECTOR_WEIGHT+TEXT_WEIGHT", c.VectorWeight, c.TextWeight).
		Err()
}
