package keyso

import "github.com/helixir/keyword-hunter/internal/domain"

// suggestRequest is the body of POST /tools/suggest.
type suggestRequest struct {
	List   []string `json:"list"`
	Region int      `json:"region"`
}

// keysResponse is returned by /tools/suggest and /tools/delete_double.
type keysResponse struct {
	Keys []string `json:"keys"`
}

// expansionRequest is the body of POST /tools/extended_keywords.
type expansionRequest struct {
	Base   string                 `json:"base"`
	List   []string               `json:"list"`
	Config domain.ExpansionConfig `json:"config"`
}

// expansionCreated is returned when an expansion job is created.
type expansionCreated struct {
	UID string `json:"uid"`
}

// expansionState is returned by GET /tools/extended_keywords/state/{uid}.
// Some deployments encode numbers as floats.
type expansionState struct {
	State    float64 `json:"state"`
	Progress float64 `json:"progress"`
}

// deleteDoubleRequest is the body of POST /tools/delete_double.
type deleteDoubleRequest struct {
	List []string `json:"list"`
}
