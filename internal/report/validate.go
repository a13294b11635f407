package report

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/readykit/internal/fault"
)

//go:embed schema.cue
var schemaCUE string

// Validator checks reports against the embedded CUE schema.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so every
// call is serialized through mu.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile report schema: %w", err)
	}
	return &Validator{
		ctx:    ctx,
		schema: v.LookupPath(cue.ParsePath("#IncidentReport")),
	}, nil
}

// Validate returns a fault.KindValidation error describing every violation,
// or nil.
func (v *Validator) Validate(r IncidentReport) error {
	// Length limits apply to the normalized form.
	r.Description = norm.NFC.String(r.Description)
	data, err := json.Marshal(r)
	if err != nil {
		return fault.Wrap(fault.KindValidation, "validate report", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	doc := v.ctx.CompileBytes(data, cue.Filename(r.ID+".json"))
	if err := doc.Err(); err != nil {
		return fault.Wrap(fault.KindValidation, "validate report", err)
	}
	if err := v.schema.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return fault.Wrap(fault.KindValidation, "validate report", summarize(err))
	}
	return nil
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
	defaultErr       error
)

// Validate checks r with a lazily compiled shared Validator.
func Validate(r IncidentReport) error {
	defaultOnce.Do(func() {
		defaultValidator, defaultErr = NewValidator()
	})
	if defaultErr != nil {
		return defaultErr
	}
	return defaultValidator.Validate(r)
}

// summarize flattens a CUE error list into one line per violation.
func summarize(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) <= 1 {
		return err
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return errors.New(msg)
}
