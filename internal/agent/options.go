package agent

import (
	"strings"

	"github.com/spf13/pflag"
)

// Options are the process start parameters passed by the scheduler.
type Options struct {
	UserID         int64
	JobID          int64
	SchedulerStart bool
}

// ParseOptions reads --userID, --jobId and --scheduler_start from args.
// Any other argument is ignored.
func ParseOptions(args []string) (Options, error) {
	var opts Options
	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	fs.Int64Var(&opts.UserID, "userID", 0, "user that requested the job")
	fs.Int64Var(&opts.JobID, "jobId", 0, "job the task belongs to")
	fs.BoolVar(&opts.SchedulerStart, "scheduler_start", false, "launched by the scheduler")
	if err := ParseKnown(fs, args); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// ParseKnown parses args with fs after dropping every flag fs does not
// define, so several flag sets can share one command line. Positional
// arguments are kept.
func ParseKnown(fs *pflag.FlagSet, args []string) error {
	keep := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			keep = append(keep, args[i:]...)
			break
		}
		if len(a) < 2 || a[0] != '-' {
			keep = append(keep, a)
			continue
		}

		var f *pflag.Flag
		hasValue := false
		if strings.HasPrefix(a, "--") {
			name, _, eq := strings.Cut(a[2:], "=")
			f, hasValue = fs.Lookup(name), eq
		} else {
			f, hasValue = fs.ShorthandLookup(a[1:2]), len(a) > 2
		}
		if f == nil {
			continue
		}
		keep = append(keep, a)
		if !hasValue && f.NoOptDefVal == "" && i+1 < len(args) {
			i++
			keep = append(keep, args[i])
		}
	}
	return fs.Parse(keep)
}
