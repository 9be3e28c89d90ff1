package scoring

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/dop251/goja"
)

const scriptCallTimeout = 100 * time.Millisecond

// ErrBadFormula is wrapped by every formula compile or evaluation failure.
var ErrBadFormula = errors.New("invalid score formula")

// Script evaluates a JavaScript expression such as
//
//	depth * 10 - mistakes * 5 - Math.floor(elapsedSeconds / 60) * 2
//
// with the variables depth, mistakes, questionsAnswered and elapsedSeconds.
// The result is rounded down and clamped at zero. When the expression fails
// at runtime the fallback scorer is used, so a bad formula never blocks play.
type Script struct {
	source   string
	program  *goja.Program
	fallback Scorer
	logger   *log.Logger
	timeout  time.Duration

	mu      sync.Mutex
	runtime *goja.Runtime
}

// NewScript compiles a formula. The formula is run once against zero inputs
// so obvious mistakes surface at startup.
func NewScript(source string, fallback Scorer, logger *log.Logger) (*Script, error) {
	program, err := goja.Compile("score", "("+source+"\n)", true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormula, err)
	}
	if fallback == nil {
		fallback = Standard{}
	}
	s := &Script{
		source:   source,
		program:  program,
		fallback: fallback,
		logger:   logger,
		timeout:  scriptCallTimeout,
		runtime:  newSandbox(),
	}
	if _, err := s.eval(Inputs{}); err != nil {
		return nil, err
	}
	return s, nil
}

// newSandbox creates a runtime without access to code loading.
func newSandbox() *goja.Runtime {
	rt := goja.New()
	rt.Set("require", goja.Undefined())
	rt.Set("eval", goja.Undefined())
	rt.Set("Function", goja.Undefined())
	return rt
}

// Source returns the formula text.
func (s *Script) Source() string { return s.source }

// Score implements Scorer.
func (s *Script) Score(in Inputs) int {
	v, err := s.eval(in)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("score_formula_failed error=%q fallback=true", err)
		}
		return s.fallback.Score(in)
	}
	return v
}

func (s *Script) eval(in Inputs) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt := s.runtime
	rt.Set("depth", in.Depth)
	rt.Set("mistakes", in.Mistakes)
	rt.Set("questionsAnswered", in.QuestionsAnswered)
	rt.Set("elapsedSeconds", math.Floor(in.Elapsed.Seconds()))

	fired := make(chan struct{})
	timer := time.AfterFunc(s.timeout, func() {
		rt.Interrupt("score formula timeout")
		close(fired)
	})
	v, err := rt.RunProgram(s.program)
	if !timer.Stop() {
		// The interrupt must land before it is cleared, or it would abort
		// the next run.
		<-fired
	}
	rt.ClearInterrupt()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadFormula, err)
	}

	f := v.ToFloat()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: result is %v", ErrBadFormula, f)
	}
	if f < 0 {
		return 0, nil
	}
	if f > math.MaxInt32 {
		return math.MaxInt32, nil
	}
	return int(math.Floor(f)), nil
}
