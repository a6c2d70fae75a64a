package postgres

import (
	"context"
	"strings"
	"testing"
)

func TestEmbeddingParam(t *testing.T) {
	if got := embeddingParam(nil); got != nil {
		t.Errorf("embeddingParam(nil) = %v, want SQL NULL", got)
	}
	if got := embeddingParam([]float32{}); got != nil {
		t.Errorf("embeddingParam(empty) = %v, want SQL NULL", got)
	}
	if got := embeddingParam([]float32{0.1, 0.2}); got == nil {
		t.Error("embeddingParam(vector) = nil, want a pgvector value")
	}
}

func TestNewStore_RejectsNonPositiveDimensions(t *testing.T) {
	for _, dims := range []int{0, -1} {
		_, err := NewStore(context.Background(), "postgres://localhost/earshot", dims)
		if err == nil {
			t.Fatalf("NewStore(dims=%d): expected error", dims)
		}
		if !strings.Contains(err.Error(), "embedding dimensions") {
			t.Errorf("NewStore(dims=%d): error %q does not mention dimensions", dims, err)
		}
	}
}

func TestDDLUsesConfiguredDimensions(t *testing.T) {
	if ddl := ddlExchanges(1536); !strings.Contains(ddl, "vector(1536)") {
		t.Errorf("DDL does not carry the embedding dimension:\n%s", ddl)
	}
}
