package policy

// EvaluationContext carries what the decision pipeline builds up before
// calling the evaluator: the principal/resource/action UIDs and the request
// context attributes. The attribute maps loaded from the store reach the
// evaluator as entity records, not through this struct.
type EvaluationContext struct {
	Tenant    string
	Principal string // Cedar UID, e.g. User::"alice"
	Resource  string // Cedar UID, e.g. Document::"readme"
	Action    string // Cedar UID, e.g. Action::"read"

	// Context holds request-derived attributes. On the hot path it always
	// includes "timeOfDay" and "path"; the admin "what-if" path uses the
	// caller-supplied context as given.
	Context map[string]any

	// PrincipalAttrs/ResourceAttrs are not set by the pipeline or the admin
	// path; both pass the loaded attribute maps to the evaluator separately.
	PrincipalAttrs map[string]any
	ResourceAttrs  map[string]any
}
