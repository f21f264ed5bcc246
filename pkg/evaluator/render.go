package evaluator

import (
	"math"
	"strconv"
	"strings"
)

// FormatNumber renders n the way Tern prints numbers: integral values have
// no fraction, everything else uses the shortest round-tripping form.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "nan"
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// Render converts v to display text. A top-level string renders raw.
func Render(v Value) string {
	if s, ok := v.(String); ok {
		return s.Value
	}
	return RenderNested(v)
}

// RenderNested converts v to display text with strings single-quoted, the form used
// for collection elements and error messages. Containers already being
// rendered show as (...).
func RenderNested(v Value) string {
	var b strings.Builder
	render(&b, v, make(map[Value]bool))
	return b.String()
}

func render(b *strings.Builder, v Value, active map[Value]bool) {
	switch val := v.(type) {
	case nil, Nil:
		b.WriteString("nil")
	case Bool:
		b.WriteString(strconv.FormatBool(val.Value))
	case Number:
		b.WriteString(FormatNumber(val.Value))
	case String:
		b.WriteString("'" + val.Value + "'")
	case *List:
		if active[val] {
			b.WriteString("(...)")
			return
		}
		if len(val.Items) == 0 {
			b.WriteString("(,)")
			return
		}
		active[val] = true
		b.WriteByte('(')
		for i, item := range val.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			render(b, item, active)
		}
		if len(val.Items) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
		delete(active, val)
	case *Map:
		if active[val] {
			b.WriteString("(...)")
			return
		}
		if val.Len() == 0 {
			b.WriteString("(:)")
			return
		}
		active[val] = true
		b.WriteByte('(')
		for i, kv := range val.Pairs {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("'" + kv.Key + "'")
			b.WriteString(": ")
			render(b, kv.Value, active)
		}
		b.WriteByte(')')
		delete(active, val)
	case *Closure:
		b.WriteString("<lambda/" + strconv.Itoa(len(val.Params)) + ">")
	case *Builtin:
		b.WriteString("<builtin " + val.Name + ">")
	default:
		b.WriteString("<unknown>")
	}
}
