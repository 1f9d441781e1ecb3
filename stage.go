package valuez

// Stage names a point in a Change's lifecycle at which handlers run.
type Stage string

// Built-in stages. Every stage list is bracketed by StageBegin and
// StageComplete whether or not they are listed.
const (
	StageBegin    Stage = "begin"
	StageProcess  Stage = "process"
	StagePending  Stage = "pending"
	StageComplete Stage = "complete"
)

// DefaultStages is the process-wide intermediate stage sequence.
var DefaultStages = []Stage{StageProcess, StagePending}

// ActionNext is the action name used for field updates.
const ActionNext = "next"

// normalizeStages brackets stages with begin and complete, dropping empty
// names and duplicates.
func normalizeStages(stages []Stage) []Stage {
	out := make([]Stage, 0, len(stages)+2)
	out = append(out, StageBegin)
	seen := map[Stage]bool{StageBegin: true, StageComplete: true}
	for _, s := range stages {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return append(out, StageComplete)
}

// stageConfig resolves the stage list for an action: per-action lists win
// over the owner's default, which wins over DefaultStages.
type stageConfig struct {
	defaults []Stage
	actions  map[string][]Stage
}

func (s *stageConfig) set(action string, stages []Stage) {
	if s.actions == nil {
		s.actions = make(map[string][]Stage)
	}
	s.actions[action] = append([]Stage(nil), stages...)
}

func (s *stageConfig) resolve(action string) []Stage {
	if stages, ok := s.actions[action]; ok {
		return stages
	}
	if s.defaults != nil {
		return s.defaults
	}
	return DefaultStages
}
