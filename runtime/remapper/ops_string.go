package remapper

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var stringOperators = map[string]Factory{
	"string.format":     stringFormatOperator,
	"string.case":       stringCaseOperator,
	"string.replace":    stringReplaceOperator,
	"string.contains":   stringTestOperator("string.contains", strings.Contains),
	"string.startsWith": stringTestOperator("string.startsWith", strings.HasPrefix),
	"string.endsWith":   stringTestOperator("string.endsWith", strings.HasSuffix),
	"string.slice":      stringSliceOperator,
}

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_.-]+)\}`)

// stringFormatOperator fills {name} placeholders in a template. The template
// is taken from the translations when messageId resolves, otherwise from the
// template key. Numbers are formatted for the context locale. Unknown
// placeholders are left as they are.
func stringFormatOperator(c *Compiler, arg any) (Func, error) {
	obj, ok := AsObject(arg)
	if !ok {
		return nil, c.Errorf("string.format", "expected an object with template and values, got %T", arg)
	}

	var template, messageID string
	if v, ok := obj.Get("template"); ok {
		if template, ok = v.(string); !ok {
			return nil, c.Errorf("string.format", "template must be a string, got %T", v)
		}
	}
	if v, ok := obj.Get("messageId"); ok {
		if messageID, ok = v.(string); !ok {
			return nil, c.Errorf("string.format", "messageId must be a string, got %T", v)
		}
	}
	if template == "" && messageID == "" {
		return nil, c.Errorf("string.format", "template or messageId is required")
	}

	var values []objectField
	if v, ok := obj.Get("values"); ok && v != nil {
		var err error
		if values, err = compileFields(c, "string.format", v); err != nil {
			return nil, err
		}
	}

	return func(input any, s *Scope) any {
		text := template
		if messageID != "" {
			if msg, ok := s.ctx.translate(messageID); ok {
				text = msg
			} else if text == "" {
				text = messageID
			}
		}
		resolved := make(map[string]string, len(values))
		printer := message.NewPrinter(s.ctx.tag())
		for _, f := range values {
			resolved[f.key] = formatValue(printer, f.fn(input, s))
		}
		return placeholder.ReplaceAllStringFunc(text, func(m string) string {
			name := m[1 : len(m)-1]
			if v, ok := resolved[name]; ok {
				return v
			}
			return m
		})
	}, nil
}

func formatValue(p *message.Printer, v any) string {
	switch v.(type) {
	case string, bool, nil:
		return stringify(v)
	}
	if f, ok := toFloat(v); ok {
		return p.Sprint(number.Decimal(f))
	}
	return stringify(v)
}

// stringCaseOperator converts the input string to upper, lower or title case
// using the context locale. Non-string input is returned unchanged.
func stringCaseOperator(c *Compiler, arg any) (Func, error) {
	mode, _ := arg.(string)
	switch mode {
	case "upper", "lower", "title":
	default:
		return nil, c.Errorf("string.case", "expected upper, lower or title, got %v", arg)
	}
	return func(input any, s *Scope) any {
		str, ok := input.(string)
		if !ok {
			return input
		}
		tag := s.ctx.tag()
		switch mode {
		case "upper":
			return cases.Upper(tag).String(str)
		case "lower":
			return cases.Lower(tag).String(str)
		}
		return cases.Title(tag).String(str)
	}, nil
}

type replacement struct {
	re   *regexp.Regexp
	with string
}

// stringReplaceOperator applies regular expression replacements in definition
// order. Patterns are compiled with the definition, so an invalid pattern is a
// compile error.
func stringReplaceOperator(c *Compiler, arg any) (Func, error) {
	obj, ok := AsObject(arg)
	if !ok || obj.Len() == 0 {
		return nil, c.Errorf("string.replace", "expected an object of pattern: replacement pairs")
	}
	repls := make([]replacement, 0, obj.Len())
	for _, pattern := range obj.Keys() {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, c.Errorf("string.replace", "invalid pattern %q: %v", pattern, err)
		}
		v, _ := obj.Get(pattern)
		with, ok := v.(string)
		if !ok {
			return nil, c.Errorf("string.replace", "replacement for %q must be a string", pattern)
		}
		repls = append(repls, replacement{re: re, with: with})
	}
	return func(input any, _ *Scope) any {
		str, ok := input.(string)
		if !ok {
			return input
		}
		for _, r := range repls {
			str = r.re.ReplaceAllString(str, r.with)
		}
		return str
	}, nil
}

// stringTestOperator checks the input string against the string its argument
// remaps to. Non-string operands give false.
func stringTestOperator(name string, test func(s, sub string) bool) Factory {
	return func(c *Compiler, arg any) (Func, error) {
		needle, err := c.Compile(arg)
		if err != nil {
			return nil, err
		}
		return func(input any, s *Scope) any {
			str, ok := input.(string)
			if !ok {
				return false
			}
			sub, ok := needle(input, s).(string)
			if !ok {
				return false
			}
			return test(str, sub)
		}, nil
	}
}

// stringSliceOperator slices strings by rune and arrays by element. The
// argument is a start index or a [start, end] pair; negative indices count
// from the end. Other input resolves to nil.
func stringSliceOperator(c *Compiler, arg any) (Func, error) {
	start, end, hasEnd := 0, 0, false
	if bounds, ok := asSlice(arg); ok {
		if len(bounds) == 0 || len(bounds) > 2 {
			return nil, c.Errorf("string.slice", "expected [start] or [start, end]")
		}
		if start, ok = toInt(bounds[0]); !ok {
			return nil, c.Errorf("string.slice", "start must be an integer")
		}
		if len(bounds) == 2 {
			if end, ok = toInt(bounds[1]); !ok {
				return nil, c.Errorf("string.slice", "end must be an integer")
			}
			hasEnd = true
		}
	} else {
		var ok bool
		if start, ok = toInt(arg); !ok {
			return nil, c.Errorf("string.slice", "expected an integer or [start, end], got %T", arg)
		}
	}

	bounds := func(n int) (int, int) {
		from, to := start, n
		if hasEnd {
			to = end
		}
		from, to = clampIndex(from, n), clampIndex(to, n)
		if to < from {
			to = from
		}
		return from, to
	}

	return func(input any, _ *Scope) any {
		if str, ok := input.(string); ok {
			runes := []rune(str)
			from, to := bounds(len(runes))
			return string(runes[from:to])
		}
		if items, ok := asSlice(input); ok {
			from, to := bounds(len(items))
			out := make([]any, to-from)
			copy(out, items[from:to])
			return out
		}
		return nil
	}, nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
