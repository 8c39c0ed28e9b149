package rules

import (
	"bufio"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/kelomina/ADGHRuleTool/pkg/serrors"
)

const outputPerm = 0o644

// OutputOptions configures an Output.
type OutputOptions struct {
	// Sorted writes each source's rules in lexical order.
	Sorted bool
	// DedupeAcrossSources skips rules already appended earlier in the cycle.
	DedupeAcrossSources bool
}

// Output owns the cumulative rule file of the current cycle. Appends are
// serialized so concurrent callers cannot interleave lines.
type Output struct {
	fs   afero.Fs
	path string
	opts OutputOptions

	mu   sync.Mutex
	seen *RuleSet
}

// NewOutput creates an Output writing to path on fs.
func NewOutput(fs afero.Fs, path string, opts OutputOptions) *Output {
	return &Output{fs: fs, path: path, opts: opts}
}

// Path returns the output artifact path.
func (o *Output) Path() string {
	return o.path
}

// Reset creates the output artifact or truncates it to empty and forgets
// every rule seen in the previous cycle.
func (o *Output) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	file, err := o.fs.OpenFile(o.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, outputPerm)
	if err != nil {
		return serrors.Wrap(serrors.ErrArtifactIO, err, "reset output %s", o.path)
	}
	if err := file.Close(); err != nil {
		return serrors.Wrap(serrors.ErrArtifactIO, err, "close output %s", o.path)
	}
	if o.opts.DedupeAcrossSources {
		o.seen = NewRuleSet()
	} else {
		o.seen = nil
	}
	return nil
}

// Append writes every rule of set to the end of the output artifact, one per
// line. Existing content is never truncated. It returns the number of lines
// written.
func (o *Output) Append(set *RuleSet) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	file, err := o.fs.OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, outputPerm)
	if err != nil {
		return 0, serrors.Wrap(serrors.ErrArtifactIO, err, "open output %s", o.path)
	}

	written := 0
	writer := bufio.NewWriter(file)
	for _, rule := range set.Rules(o.opts.Sorted) {
		if o.seen != nil && o.seen.Contains(rule) {
			continue
		}
		if _, err := writer.WriteString(rule + "\n"); err != nil {
			_ = file.Close()
			return written, serrors.Wrap(serrors.ErrArtifactIO, err, "write output %s", o.path)
		}
		written++
		if o.seen != nil {
			o.seen.Add(rule)
		}
	}
	if err := writer.Flush(); err != nil {
		_ = file.Close()
		return written, serrors.Wrap(serrors.ErrArtifactIO, err, "flush output %s", o.path)
	}
	if err := file.Close(); err != nil {
		return written, serrors.Wrap(serrors.ErrArtifactIO, err, "close output %s", o.path)
	}
	return written, nil
}
