package remapper

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goodsign/monday"
)

var dateOperators = map[string]Factory{
	"date.now":    dateNowOperator,
	"date.parse":  dateParseOperator,
	"date.format": dateFormatOperator,
	"date.add":    dateAddOperator,
}

// Dates travel between operators as RFC 3339 strings in UTC.
const dateLayout = time.RFC3339Nano

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var formatAliases = map[string]string{
	"iso":      time.RFC3339,
	"date":     "2006-01-02",
	"time":     "15:04",
	"datetime": "2006-01-02 15:04",
	"short":    "02/01/2006",
	"medium":   "Jan 2, 2006",
	"long":     "January 2, 2006",
	"full":     "Monday, January 2, 2006",
}

func resolveFormat(format string) string {
	if alias, ok := formatAliases[format]; ok {
		return alias
	}
	return format
}

// parseDate parses s with layout, or with the known layouts when layout is
// empty.
func parseDate(s, layout string) (time.Time, bool) {
	if layout != "" {
		t, err := time.Parse(resolveFormat(layout), s)
		return t, err == nil
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// toTime accepts time values, date strings and Unix milliseconds.
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return parseDate(t, "")
	}
	if ms, ok := toFloat(v); ok {
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	return time.Time{}, false
}

func dateNowOperator(_ *Compiler, _ any) (Func, error) {
	return func(_ any, s *Scope) any {
		return s.ctx.now().UTC().Format(dateLayout)
	}, nil
}

// dateParseOperator normalizes the input into a date string. The optional
// argument is the layout the input is in. Unparseable input resolves to nil.
func dateParseOperator(c *Compiler, arg any) (Func, error) {
	layout, ok := arg.(string)
	if arg != nil && !ok {
		return nil, c.Errorf("date.parse", "expected a layout string, got %T", arg)
	}
	return func(input any, _ *Scope) any {
		var (
			t  time.Time
			ok bool
		)
		if str, isStr := input.(string); isStr && layout != "" {
			t, ok = parseDate(str, layout)
		} else {
			t, ok = toTime(input)
		}
		if !ok {
			return nil
		}
		return t.UTC().Format(dateLayout)
	}, nil
}

// dateFormatOperator formats the input date with a Go layout or one of the
// named aliases, translating month and day names for the context locale.
func dateFormatOperator(c *Compiler, arg any) (Func, error) {
	layout := time.RFC3339
	if arg != nil {
		str, ok := arg.(string)
		if !ok || str == "" {
			return nil, c.Errorf("date.format", "expected a layout string, got %T", arg)
		}
		layout = resolveFormat(str)
	}
	return func(input any, s *Scope) any {
		t, ok := toTime(input)
		if !ok {
			return nil
		}
		return monday.Format(t, layout, mondayLocale(s.ctx))
	}, nil
}

func mondayLocale(ctx *Context) monday.Locale {
	tag := ctx.tag()
	base, _ := tag.Base()
	region, _ := tag.Region()
	want := monday.Locale(base.String() + "_" + region.String())
	for _, l := range monday.ListLocales() {
		if l == want {
			return l
		}
	}
	return monday.LocaleEnUS
}

var dayDuration = regexp.MustCompile(`^(-?\d+)([dw])$`)

// parseOffset accepts Go durations plus whole days (d) and weeks (w).
func parseOffset(s string) (time.Duration, error) {
	if m := dayDuration.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, err
		}
		day := 24 * time.Hour
		if m[2] == "w" {
			day *= 7
		}
		return time.Duration(n) * day, nil
	}
	return time.ParseDuration(s)
}

// dateAddOperator shifts the input date by a fixed offset such as "1d",
// "-2w" or "90m". Invalid input dates resolve to nil.
func dateAddOperator(c *Compiler, arg any) (Func, error) {
	str, ok := arg.(string)
	if !ok {
		return nil, c.Errorf("date.add", "expected a duration string, got %T", arg)
	}
	offset, err := parseOffset(str)
	if err != nil {
		return nil, c.Errorf("date.add", "invalid duration %q: %v", str, err)
	}
	return func(input any, _ *Scope) any {
		t, ok := toTime(input)
		if !ok {
			return nil
		}
		return t.Add(offset).UTC().Format(dateLayout)
	}, nil
}
