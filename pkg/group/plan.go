package group

// Plan describes a mutation the reconciler is about to make. Guardrail
// policies receive it before anything is written.
type Plan struct {
	Name    string            `json:"name"`
	State   State             `json:"state"`
	Action  Action            `json:"action"`
	Current *Group            `json:"current,omitempty"`
	Desired *Group            `json:"desired,omitempty"`
	Changes map[string]Change `json:"changes,omitempty"`
	DryRun  bool              `json:"dry_run,omitempty"`
}
