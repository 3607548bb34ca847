package facade

import (
	"context"

	"github.com/libreary/libreary/internal/dcontext"
)

// ScheduleChecks starts one periodic job per durability level that
// declares a positive CheckFrequency, each invoking CheckSingleResource
// (deep per the deep argument) against every resource currently
// assigned that level. Levels with CheckFrequency <= 0 are treated as
// unscheduled — a caller must still reach them via a manual RunCheck.
// Re-calling ScheduleChecks after a level's frequency changes replaces
// its job, per internal/scheduler.Schedule's own replace-on-reschedule
// behavior.
func (a *Archive) ScheduleChecks(ctx context.Context, deep bool) error {
	levels, err := a.store.ListLevels(ctx)
	if err != nil {
		return err
	}

	for _, l := range levels {
		if l.CheckFrequency <= 0 {
			continue
		}
		level := l
		dcontext.GetLogger(ctx).Debugf("facade: scheduling checks for level %s every %s", level.Name, level.CheckFrequency)
		a.sched.Schedule(ctx, level.Name, level.CheckFrequency, func(jobCtx context.Context) error {
			return a.checkLevelResources(jobCtx, level.Name, deep)
		})
	}
	return nil
}

// StopChecks cancels the scheduled job for a single level, leaving the
// others running.
func (a *Archive) StopChecks(level string) {
	a.sched.Cancel(level)
}

// checkLevelResources runs CheckSingleResource against every resource
// assigned to level, logging (rather than aborting on) a single
// resource's failure so one bad object doesn't stop the rest of the
// level's periodic pass.
func (a *Archive) checkLevelResources(ctx context.Context, level string, deep bool) error {
	resources, err := a.store.ListResources(ctx)
	if err != nil {
		return err
	}
	for _, r := range resources {
		if !hasLevel(r.Levels, level) {
			continue
		}
		if _, err := a.CheckSingleResource(ctx, r.UUID, deep); err != nil {
			dcontext.GetLogger(ctx).Errorf("facade: scheduled check for resource %s (level %s) failed: %v", r.UUID, level, err)
		}
	}
	return nil
}

func hasLevel(levels []string, name string) bool {
	for _, l := range levels {
		if l == name {
			return true
		}
	}
	return false
}
