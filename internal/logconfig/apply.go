package logconfig

import (
	"time"

	"github.com/smazurov/logwire/internal/logging"
)

// Policy decides what happens to already added sinks when a later one fails.
type Policy int

const (
	// PolicyPartial keeps sinks added before the failure active. The previous
	// sinks stay removed and the error is marked Partial.
	PolicyPartial Policy = iota
	// PolicyAtomic builds every sink first and leaves the state untouched
	// unless all of them succeed.
	PolicyAtomic
)

func (p Policy) String() string {
	if p == PolicyAtomic {
		return "atomic"
	}
	return "partial"
}

// ApplyOptions tunes Apply.
type ApplyOptions struct {
	Policy Policy
}

// Result describes a completed apply.
type Result struct {
	SinkIDs    []int     `json:"sink_ids"`
	Generation uint64    `json:"generation"`
	Applied    time.Time `json:"applied"`
}

// Apply replaces the state's configuration with cfg in one transaction:
// every active sink is removed, cfg's sinks are added in order, then levels,
// patch, extra and activation are set. Sections cfg does not contain are left
// as they are.
//
// Under PolicyPartial a failing sink yields an ApplyError with Partial set and
// a non-nil Result listing the sinks that were added.
func Apply(state *logging.State, cfg *Config, opts ApplyOptions) (*Result, error) {
	res := &Result{}
	var partial *Error

	err := state.Reconfigure(func(tx *logging.Tx) error {
		if cfg.HasSinks {
			tx.RemoveAll()
			for i, spec := range cfg.Sinks {
				id, err := tx.AddSink(spec.Options())
				if err != nil {
					applyErr := newError(ApplyError, Path{keySinks}.Index(i), err, "cannot add sink %s", describeTarget(spec.Target))
					if opts.Policy == PolicyAtomic {
						return applyErr
					}
					applyErr.Partial = true
					partial = applyErr
					return nil
				}
				res.SinkIDs = append(res.SinkIDs, id)
			}
		}

		if cfg.HasLevels {
			tx.ResetLevels()
			for _, l := range cfg.Levels {
				if err := tx.AddLevel(l); err != nil {
					return newError(ApplyError, Path{keyLevels, l.Name}, err, "cannot add level")
				}
			}
		}
		if cfg.HasPatch {
			tx.SetPatch(cfg.Patch)
		}
		if cfg.HasExtra {
			tx.SetExtra(cfg.Extra)
		}
		if cfg.HasActivation {
			tx.SetActivation(cfg.Activation)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Generation = state.Generation()
	res.Applied = time.Now()
	if partial != nil {
		return res, partial
	}
	return res, nil
}

func describeTarget(t any) string {
	if s, ok := t.(string); ok {
		return `"` + s + `"`
	}
	return "of type " + typeName(t)
}
