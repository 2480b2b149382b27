package remapper

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var numberOperators = map[string]Factory{
	"number.parse":  numberParseOperator,
	"number.format": numberFormatOperator,
	"math.add":      mathOperator("math.add", func(a, b float64) (float64, bool) { return a + b, true }),
	"math.subtract": mathOperator("math.subtract", func(a, b float64) (float64, bool) { return a - b, true }),
	"math.multiply": mathOperator("math.multiply", func(a, b float64) (float64, bool) { return a * b, true }),
	"math.divide": mathOperator("math.divide", func(a, b float64) (float64, bool) {
		if b == 0 {
			return 0, false
		}
		return a / b, true
	}),
	"math.mod": mathOperator("math.mod", func(a, b float64) (float64, bool) {
		if b == 0 {
			return 0, false
		}
		return math.Mod(a, b), true
	}),
}

// numberParseOperator converts the value its argument remaps to into a
// float64. Numbers pass through; strings that do not parse resolve to nil.
func numberParseOperator(c *Compiler, arg any) (Func, error) {
	fn, err := c.Compile(arg)
	if err != nil {
		return nil, err
	}
	return func(input any, s *Scope) any {
		v := fn(input, s)
		if f, ok := toFloat(v); ok {
			return f
		}
		str, ok := v.(string)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return nil
		}
		return f
	}, nil
}

type numberFormat struct {
	style   string
	minFrac int
	maxFrac int
}

// numberFormatOperator renders the input number for the context locale.
// Options: style (decimal or percent), minFractionDigits, maxFractionDigits.
// Non-numeric input resolves to nil.
func numberFormatOperator(c *Compiler, arg any) (Func, error) {
	nf := numberFormat{style: "decimal", minFrac: -1, maxFrac: -1}
	if arg != nil {
		obj, ok := AsObject(arg)
		if !ok {
			return nil, c.Errorf("number.format", "expected an options object, got %T", arg)
		}
		for _, key := range obj.Keys() {
			v, _ := obj.Get(key)
			switch key {
			case "style":
				style, _ := v.(string)
				if style != "decimal" && style != "percent" {
					return nil, c.Errorf("number.format", "style must be decimal or percent, got %v", v)
				}
				nf.style = style
			case "minFractionDigits", "maxFractionDigits":
				n, ok := toInt(v)
				if !ok || n < 0 {
					return nil, c.Errorf("number.format", "%s must be a non-negative integer", key)
				}
				if key == "minFractionDigits" {
					nf.minFrac = n
				} else {
					nf.maxFrac = n
				}
			default:
				return nil, c.Errorf("number.format", "unknown option %q", key)
			}
		}
		if nf.minFrac >= 0 && nf.maxFrac >= 0 && nf.minFrac > nf.maxFrac {
			return nil, c.Errorf("number.format", "minFractionDigits exceeds maxFractionDigits")
		}
	}

	var opts []number.Option
	if nf.minFrac >= 0 {
		opts = append(opts, number.MinFractionDigits(nf.minFrac))
	}
	if nf.maxFrac >= 0 {
		opts = append(opts, number.MaxFractionDigits(nf.maxFrac))
	}

	return func(input any, s *Scope) any {
		f, ok := toFloat(input)
		if !ok {
			return nil
		}
		p := message.NewPrinter(s.ctx.tag())
		if nf.style == "percent" {
			return p.Sprint(number.Percent(f, opts...))
		}
		return p.Sprint(number.Decimal(f, opts...))
	}, nil
}

// mathOperator folds its operands left to right. A nil operand stands for the
// input, so {"math.multiply": [null, 2]} doubles it. Any non-numeric operand
// or a division by zero resolves to nil. Results are always float64.
func mathOperator(name string, op func(a, b float64) (float64, bool)) Factory {
	return func(c *Compiler, arg any) (Func, error) {
		fns, err := compileList(c, name, arg)
		if err != nil {
			return nil, err
		}
		if len(fns) < 2 {
			return nil, c.Errorf(name, "expected at least 2 operands, got %d", len(fns))
		}
		return func(input any, s *Scope) any {
			acc, ok := toFloat(fns[0](input, s))
			if !ok {
				return nil
			}
			for _, fn := range fns[1:] {
				b, ok := toFloat(fn(input, s))
				if !ok {
					return nil
				}
				if acc, ok = op(acc, b); !ok {
					return nil
				}
			}
			return acc
		}, nil
	}
}
