package cycle

import (
	"time"

	"go.uber.org/multierr"

	"github.com/kelomina/ADGHRuleTool/pkg/serrors"
)

// SourceResult describes what one source contributed to a cycle.
type SourceResult struct {
	ID       string `json:"id"`
	Location string `json:"url"`
	Rules    int    `json:"rules"`
	Error    string `json:"error,omitempty"`
	// Kind names the error kind of a failed source, e.g. SOURCE_FETCH.
	Kind string `json:"kind,omitempty"`
}

// Report summarizes one fetch cycle.
type Report struct {
	Cycle    int64          `json:"cycle"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Sources  int            `json:"sources"`
	Fetched  int            `json:"fetched"`
	Failed   int            `json:"failed"`
	Rules    int            `json:"rules"`
	Results  []SourceResult `json:"results"`
	// Err combines every per-source failure of the cycle.
	Err error `json:"-"`
}

// Errors returns the individual per-source failures.
func (r Report) Errors() []string {
	errs := multierr.Errors(r.Err)
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

func (r *Report) record(result SourceResult, err error) {
	if err != nil {
		r.Failed++
		result.Error = err.Error()
		if kind := serrors.KindOf(err); kind != nil {
			result.Kind = kind.Error()
		}
		r.Err = multierr.Append(r.Err, err)
	} else {
		r.Fetched++
		r.Rules += result.Rules
	}
	r.Results = append(r.Results, result)
}
