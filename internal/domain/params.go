package domain

import "strings"

// Param is a single template parameter captured at request creation.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Params is an ordered list of template parameters. Order is part of the
// captured record, so a plain map will not do; encoding round-trips preserve
// the order parameters were submitted in.
type Params []Param

func (p Params) Get(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}
	return "", false
}

// With returns a copy with the named parameter set, appending it when absent.
// The receiver is never mutated; a Scale request captures a fresh Params
// value rather than editing the parent's.
func (p Params) With(name, value string) Params {
	name = strings.TrimSpace(name)
	out := p.Clone()
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Param{Name: name, Value: value})
}

func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	out := make(Params, len(p))
	copy(out, p)
	return out
}

func (p Params) Equal(other Params) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// ToMap flattens the parameters for callers that need name -> value lookup,
// such as the pipeline trigger payload. Order is lost.
func (p Params) ToMap() map[string]string {
	out := make(map[string]string, len(p))
	for _, param := range p {
		out[param.Name] = param.Value
	}
	return out
}
