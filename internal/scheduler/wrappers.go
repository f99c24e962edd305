package scheduler

import (
	"log/slog"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// namedJob keeps the name of the wrapped job visible to outer wrappers.
type namedJob struct {
	name string
	run  func()
}

func (j namedJob) Run()         { j.run() }
func (j namedJob) Name() string { return j.name }

// jobWrappers is the chain applied to every scheduled job, outermost first.
// SkipIfStillRunning hides the job behind a FuncJob and must stay outermost.
func jobWrappers(logger *slog.Logger) []cron.JobWrapper {
	return []cron.JobWrapper{
		cron.SkipIfStillRunning(cron.DiscardLogger),
		NewPanicRecoveryWrapper(logger),
		NewLoggingWrapper(logger),
	}
}

// NewLoggingWrapper logs the start and end of every job run, tagged with a
// unique execution id.
func NewLoggingWrapper(logger *slog.Logger) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		name := jobName(j)
		return namedJob{name: name, run: func() {
			jobLogger := logger.With(
				slog.String("job_name", name),
				slog.String("execution_id", uuid.NewString()),
			)

			start := time.Now()
			jobLogger.Info("job execution started")
			j.Run()
			jobLogger.Info("job execution finished", slog.Duration("duration", time.Since(start)))
		}}
	}
}

// NewPanicRecoveryWrapper logs a panicking job with its stack instead of
// crashing the process.
func NewPanicRecoveryWrapper(logger *slog.Logger) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		name := jobName(j)
		return namedJob{name: name, run: func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("job panicked",
						slog.String("job_name", name),
						slog.Any("panic", r),
						slog.String("stack_trace", string(debug.Stack())),
					)
				}
			}()
			j.Run()
		}}
	}
}

// jobName prefers the job's own Name method and falls back to its type name.
func jobName(j cron.Job) string {
	if named, ok := j.(interface{ Name() string }); ok {
		return named.Name()
	}
	t := reflect.TypeOf(j)
	if t.Kind() == reflect.Ptr {
		return t.Elem().String()
	}
	return t.String()
}
