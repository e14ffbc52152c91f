package postgres

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stackport-labs/stackport-go/internal/domain"
	"github.com/stackport-labs/stackport-go/internal/repo"
)

func TestEncodeDecodeParamsPreservesOrder(t *testing.T) {
	in := domain.Params{
		{Name: "size", Value: "small"},
		{Name: "region", Value: "westeurope"},
	}
	raw, err := encodeParams(in)
	if err != nil {
		t.Fatalf("encodeParams() err=%v", err)
	}
	out, err := decodeParams(raw)
	if err != nil {
		t.Fatalf("decodeParams() err=%v", err)
	}
	if !out.Equal(in) {
		t.Fatalf("round-trip changed params: %+v", out)
	}

	empty, err := decodeParams(nil)
	if err != nil || empty == nil {
		t.Fatalf("decodeParams(nil)=%v, %v", empty, err)
	}
}

func TestNullIfEmpty(t *testing.T) {
	if nullIfEmpty("  ").Valid {
		t.Fatal("whitespace should encode as NULL")
	}
	v := nullIfEmpty(" cc-100 ")
	if !v.Valid || v.String != "cc-100" {
		t.Fatalf("got %+v", v)
	}
}

func TestNullTime(t *testing.T) {
	if nullTime(nil).Valid {
		t.Fatal("nil should encode as NULL")
	}
	var zero time.Time
	if nullTime(&zero).Valid {
		t.Fatal("zero time should encode as NULL")
	}
	now := time.Now()
	if v := nullTime(&now); !v.Valid {
		t.Fatal("non-zero time should be valid")
	}
}

func TestHandleNotFound(t *testing.T) {
	if err := handleNotFound(sql.ErrNoRows); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
	sentinel := errors.New("boom")
	if err := handleNotFound(sentinel); !errors.Is(err, sentinel) {
		t.Fatalf("got %v", err)
	}
}

func TestRequestColumnsCoverConditionalUpdateFields(t *testing.T) {
	for _, col := range []string{
		"status", "decision_kind", "build_id", "output",
		"expiration_warning_sent", "resource_health", "parent_request_id",
	} {
		if !strings.Contains(requestColumns, col) {
			t.Fatalf("requestColumns missing %q", col)
		}
	}
}
