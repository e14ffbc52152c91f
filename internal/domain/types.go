package domain

// Metadata is an unstructured metadata container for audit payloads.
type Metadata map[string]any

func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	copy := make(Metadata, len(m))
	for k, v := range m {
		copy[k] = v
	}
	return copy
}

// Actor is the identity performing a life-cycle operation. Guards are pure
// functions of (record, actor, transition); no operation reads ambient user
// state.
type Actor struct {
	Email      string
	Name       string
	IsApprover bool
}

// Requester identifies who opened a request. Write-once at creation.
type Requester struct {
	Email string
	Name  string
}
