package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Load()
	cfg.StoreURL = "postgres://localhost/construdocs"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRequiresStoreURL(t *testing.T) {
	cfg := validConfig()
	cfg.StoreURL = "   "
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "STORE_URL") {
		t.Fatalf("err = %v, want STORE_URL failure", err)
	}
}

func TestValidateRejectsOverlapNotLessThanSize(t *testing.T) {
	cfg := validConfig()
	cfg.ChunkOverlap = cfg.ChunkSize
	if err := cfg.Validate(); err == nil {
		t.Fatal("overlap equal to chunk size must fail")
	}
}

func TestValidateRejectsWeightsNotSummingToOne(t *testing.T) {
	cfg := validConfig()
	cfg.VectorWeight = 0.6
	cfg.TextWeight = 0.6
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "VECTOR_WEIGHT+TEXT_WEIGHT") {
		t.Fatalf("err = %v, want weight-sum failure", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.StoreURL = ""
	cfg.EmbeddingDim = 0
	cfg.ANNProbes = 500
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, field := range []string{"STORE_URL", "EMBEDDING_DIM", "ANN_PROBES"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error missing field %s: %v", field, err)
		}
	}
}
