package routes

// Phase names a group of rules evaluated together.
type Phase string

// Phases. Null, Main and Resource are visited at the top level; the rest
// are reached from the filesystem check.
const (
	PhaseNull       Phase = "null"
	PhaseMain       Phase = "main"
	PhaseFilesystem Phase = "filesystem"
	PhaseMiss       Phase = "miss"
	PhaseRewrite    Phase = "rewrite"
	PhaseHit        Phase = "hit"
	PhaseError      Phase = "error"
	PhaseResource   Phase = "resource"
)

// TopLevel is the evaluation order for an incoming request.
var TopLevel = []Phase{PhaseNull, PhaseMain, PhaseResource}

// handles lists the phases a rule file may open with a "handle" delimiter.
var handles = map[string]Phase{
	string(PhaseFilesystem): PhaseFilesystem,
	string(PhaseMiss):       PhaseMiss,
	string(PhaseRewrite):    PhaseRewrite,
	string(PhaseHit):        PhaseHit,
	string(PhaseError):      PhaseError,
	string(PhaseResource):   PhaseResource,
}

// AllowsHeaderOverride reports whether rules in the phase may honor the
// override flag. Hit and miss rules only ever add headers.
func (p Phase) AllowsHeaderOverride() bool {
	return p != PhaseHit && p != PhaseMiss
}

func (p Phase) String() string {
	return string(p)
}
