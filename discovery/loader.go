package discovery

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/magetools/grimorium/registry"
)

// candidate is one spell registration collected while a unit loads, before
// the admission policy has been applied.
type candidate struct {
	name       string
	doc        string
	collection string
	invoke     registry.InvokeFunc
}

// unit is one loaded source file with its dedicated VM. goja runtimes are
// not safe for concurrent use, so every invocation of a unit's spells is
// serialized behind the unit's mutex.
type unit struct {
	mu sync.Mutex
	vm *goja.Runtime
}

// loadUnit compiles and runs one spell source file in a fresh VM and returns
// the spells it registered. The syntax pre-check runs before any code
// executes; a unit that throws during load yields an error and no
// candidates.
func loadUnit(ctx context.Context, path string, logger *zap.Logger) (candidates []candidate, err error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	prog, err := goja.Compile(path, string(src), false)
	if err != nil {
		return nil, fmt.Errorf("syntax check failed: %w", err)
	}

	u := &unit{vm: goja.New()}

	var loadErrs []error
	err = u.vm.Set("spell", func(call goja.FunctionCall) goja.Value {
		c, cerr := u.newCandidate(ctx, call)
		if cerr != nil {
			loadErrs = append(loadErrs, cerr)
			return goja.Undefined()
		}
		candidates = append(candidates, c)
		return goja.Undefined()
	})
	if err != nil {
		return nil, err
	}
	err = u.vm.Set("log", func(msg goja.Value) {
		logger.Debug("spell unit log", zap.String("path", path), zap.String("message", msg.String()))
	})
	if err != nil {
		return nil, err
	}

	if err := u.run(ctx, prog); err != nil {
		return nil, err
	}
	if len(loadErrs) > 0 {
		// Registrations that did succeed are still returned; only the
		// malformed ones are reported.
		for _, lerr := range loadErrs {
			logger.Warn("ignoring malformed spell registration",
				zap.String("path", path),
				zap.Error(lerr),
			)
		}
	}
	return candidates, nil
}

// run executes the compiled program, converting thrown values and host
// panics into errors so one bad unit cannot take down the scan.
func (u *unit) run(ctx context.Context, prog *goja.Program) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while loading unit: %v", r)
		}
	}()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			u.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	_, err = u.vm.RunProgram(prog)
	close(done)
	u.vm.ClearInterrupt()
	return err
}

// newCandidate validates one spell(def, fn) call and wraps the JS function
// in an InvokeFunc.
func (u *unit) newCandidate(ctx context.Context, call goja.FunctionCall) (candidate, error) {
	def, ok := call.Argument(0).Export().(map[string]any)
	if !ok {
		return candidate{}, fmt.Errorf("spell() requires a definition object")
	}
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		return candidate{}, fmt.Errorf("spell() requires a function as its second argument")
	}

	name, _ := def["name"].(string)
	if name == "" {
		return candidate{}, fmt.Errorf("spell() definition has no name")
	}
	doc, _ := def["doc"].(string)
	collection, _ := def["collection"].(string)

	return candidate{
		name:       name,
		doc:        doc,
		collection: collection,
		invoke:     u.invokeFunc(fn),
	}, nil
}

// invokeFunc wraps a JS callable for execution outside the scan. Calls are
// serialized per unit and honor context cancellation by interrupting the VM.
func (u *unit) invokeFunc(fn goja.Callable) registry.InvokeFunc {
	return func(ctx context.Context, args map[string]any) (result any, err error) {
		u.mu.Lock()
		defer u.mu.Unlock()

		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic during spell execution: %v", r)
			}
		}()

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				u.vm.Interrupt(ctx.Err())
			case <-done:
			}
		}()
		value, callErr := fn(goja.Undefined(), u.vm.ToValue(args))
		close(done)
		u.vm.ClearInterrupt()

		if callErr != nil {
			return nil, fmt.Errorf("spell execution failed: %w", callErr)
		}
		return value.Export(), nil
	}
}
