package fhirpath

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Fragment is one leaf (or intermediate, for chained evaluation) result of
// walking a Path over a document. Suffix carries the polymorphic
// discriminator (e.g. "Quantity" for a valueQuantity match) when the step
// that produced it was a value[x] step; it is empty otherwise.
type Fragment struct {
	Value  gjson.Result
	Suffix string
}

// Eval walks doc along path, returning every matching fragment. Missing
// keys at any step simply contribute no fragments (never an error); arrays
// encountered mid-walk are flat-mapped so a multi-valued field (multiple
// name.given, for instance) yields one fragment per occurrence.
func Eval(doc []byte, path Path) []Fragment {
	root := gjson.ParseBytes(doc)
	fragments := []Fragment{{Value: root}}

	for _, step := range path.Steps {
		var next []Fragment
		for _, f := range fragments {
			next = append(next, applyStep(f, step)...)
		}
		fragments = next
		if len(fragments) == 0 {
			return nil
		}
	}
	return fragments
}

// EvalAny walks every path in exprs against doc and returns the union of
// all fragments they produce, in order. IX indexes every fragment this
// returns for every parameter: fragments from all paths are kept, and no
// parameter is limited to the first path that yields a value.
func EvalAny(doc []byte, exprs []string) []Fragment {
	var out []Fragment
	for _, expr := range exprs {
		out = append(out, Eval(doc, Parse(expr))...)
	}
	return out
}

func applyStep(f Fragment, step Step) []Fragment {
	switch step.Kind {
	case StepField:
		return applyField(f.Value, step.Field)
	case StepPolymorphic:
		return applyPolymorphic(f.Value, step.Field)
	case StepWhereResolve:
		return applyWhereResolve(f, step.Type)
	default:
		return nil
	}
}

func applyField(v gjson.Result, field string) []Fragment {
	if v.IsArray() {
		// The step is applied to every element of an array context that
		// arrived here from a prior array flatten (defensive; normal walks
		// never leave a raw array fragment between steps).
		var out []Fragment
		v.ForEach(func(_, elem gjson.Result) bool {
			out = append(out, applyField(elem, field)...)
			return true
		})
		return out
	}
	if !v.IsObject() {
		return nil
	}
	child := v.Get(field)
	if !child.Exists() {
		return nil
	}
	return flatten(child)
}

func applyPolymorphic(v gjson.Result, prefix string) []Fragment {
	if !v.IsObject() {
		return nil
	}
	var out []Fragment
	v.ForEach(func(key, val gjson.Result) bool {
		k := key.String()
		if !strings.HasPrefix(k, prefix) {
			return true
		}
		suffix := strings.TrimPrefix(k, prefix)
		if suffix == "" || !isUpper(suffix[0]) {
			return true
		}
		for _, frag := range flatten(val) {
			frag.Suffix = suffix
			out = append(out, frag)
		}
		return true
	})
	return out
}

func applyWhereResolve(f Fragment, targetType string) []Fragment {
	v := f.Value
	if v.IsArray() {
		var out []Fragment
		v.ForEach(func(_, elem gjson.Result) bool {
			out = append(out, applyWhereResolve(Fragment{Value: elem, Suffix: f.Suffix}, targetType)...)
			return true
		})
		return out
	}
	ref := v.Get("reference")
	if !ref.Exists() {
		return nil
	}
	if !strings.HasPrefix(ref.String(), targetType+"/") {
		return nil
	}
	return []Fragment{f}
}

// flatten expands an array-valued gjson.Result into one fragment per
// element; a scalar/object value becomes a single fragment.
func flatten(v gjson.Result) []Fragment {
	if v.IsArray() {
		var out []Fragment
		v.ForEach(func(_, elem gjson.Result) bool {
			out = append(out, Fragment{Value: elem})
			return true
		})
		return out
	}
	return []Fragment{{Value: v}}
}

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
