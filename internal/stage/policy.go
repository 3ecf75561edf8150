package stage

import "strings"

// NextStage derives the stage a case should move to when a task is assigned,
// by ordered keyword matching over the task's free-text title or declared type.
// First matching rule wins; unmatched input falls back to LEAD rather than
// erroring. The function deliberately ignores the case's current stage, so a
// stray site-visit task can regress an executing case; callers wanting a
// guarded policy swap this function, not the engine.
func NextStage(titleOrType string) Stage {
	t := strings.ToLower(titleOrType)
	switch {
	case strings.Contains(t, "site") && (strings.Contains(t, "visit") || strings.Contains(t, "inspection")):
		return SiteVisit
	case strings.Contains(t, "drawing") || strings.Contains(t, "design"):
		return Drawing
	case strings.Contains(t, "quotation") || strings.Contains(t, "boq"):
		return BOQ
	case strings.Contains(t, "execution") || strings.Contains(t, "install"):
		return ExecutionActive
	default:
		return Lead
	}
}
