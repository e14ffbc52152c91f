package lineageevent

import (
	"testing"
	"time"
)

func TestComputeIntegritySHA256_Deterministic(t *testing.T) {
	occurredAt := time.Unix(1700000000, 0).UTC()
	event := Event{
		OccurredAt:  occurredAt,
		Actor:       "alice@example.com",
		RequestID:   "rid-123",
		SubjectType: SubjectRequest,
		SubjectID:   "req-2",
		Predicate:   PredicateDerivesFrom,
		ObjectType:  SubjectRequest,
		ObjectID:    "req-1",
	}
	metadataJSON := []byte(`{"request_type":"scale"}`)

	a, err := ComputeIntegritySHA256(event, metadataJSON)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, err := ComputeIntegritySHA256(event, metadataJSON)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a != b {
		t.Fatalf("integrity mismatch: %q vs %q", a, b)
	}
}

func TestComputeIntegritySHA256_ChangesOnMetadata(t *testing.T) {
	occurredAt := time.Unix(1700000000, 0).UTC()
	event := Event{
		OccurredAt:  occurredAt,
		Actor:       "alice@example.com",
		SubjectType: SubjectRequest,
		SubjectID:   "req-2",
		Predicate:   PredicateReleased,
		ObjectType:  SubjectRequest,
		ObjectID:    "req-1",
	}

	a, err := ComputeIntegritySHA256(event, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, err := ComputeIntegritySHA256(event, []byte(`{"a":2}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a == b {
		t.Fatalf("expected integrity to differ")
	}
}
