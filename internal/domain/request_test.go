package domain

import (
	"testing"
	"time"
)

func validDeploy() DeploymentRequest {
	now := time.Now().UTC()
	return DeploymentRequest{
		ID:            "req-1",
		RequestType:   RequestTypeDeploy,
		Status:        StatusPendingApproval,
		CatalogItemID: "aks-cluster",
		Params:        Params{{Name: "region", Value: "westeurope"}, {Name: "size", Value: "small"}},
		Requester:     Requester{Email: "dev@example.com", Name: "Dev"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestDeploymentRequestValidate(t *testing.T) {
	if err := validDeploy().Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	withParent := validDeploy()
	withParent.ParentRequestID = "req-0"
	if err := withParent.Validate(); err == nil {
		t.Fatal("deploy with parent should be invalid")
	}

	destroy := validDeploy()
	destroy.RequestType = RequestTypeDestroy
	if err := destroy.Validate(); err == nil {
		t.Fatal("destroy without parent should be invalid")
	}
	destroy.ParentRequestID = "req-0"
	if err := destroy.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	scale := validDeploy()
	scale.RequestType = RequestTypeScale
	scale.ParentRequestID = "req-0"
	scale.PreviousSize = "small"
	scale.NewSize = "small"
	if err := scale.Validate(); err == nil {
		t.Fatal("scale without size change should be invalid")
	}
	scale.NewSize = "large"
	if err := scale.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestDecisionValidate(t *testing.T) {
	now := time.Now().UTC()
	approved := Decision{Kind: DecisionApproved, By: "ops@example.com", At: now}
	if err := approved.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	approved.Reason = "looks fine"
	if err := approved.Validate(); err == nil {
		t.Fatal("approval with reason should be invalid")
	}

	rejected := Decision{Kind: DecisionRejected, By: "ops@example.com", At: now}
	if err := rejected.Validate(); err == nil {
		t.Fatal("rejection without reason should be invalid")
	}
	rejected.Reason = "quota exhausted"
	if err := rejected.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestCanDestroyAndScale(t *testing.T) {
	req := validDeploy()
	req.Status = StatusCompleted
	if !req.CanDestroy() || !req.CanScale() {
		t.Fatal("completed deploy should allow destroy and scale")
	}

	req.Status = StatusDeploying
	if req.CanDestroy() || req.CanScale() {
		t.Fatal("deploying request should not allow destroy or scale")
	}

	child := validDeploy()
	child.RequestType = RequestTypeDestroy
	child.ParentRequestID = "req-0"
	child.Status = StatusCompleted
	if child.CanDestroy() {
		t.Fatal("destroy request is never a destroy parent")
	}
}
