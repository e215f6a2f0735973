package memo

import (
	"errors"
	"fmt"
	"strings"
)

const (
	funcSep  = ":?:"
	paramSep = ":::"

	// emptyArg stands for an argument that formats to "". A lone "%" never
	// comes out of escape, so it cannot collide with a real argument.
	emptyArg = "%"
)

// ErrMalformedKey reports a key that was not built by KeyFromCall.
var ErrMalformedKey = errors.New("memo: malformed call key")

var (
	escaper   = strings.NewReplacer("%", "%25", ":", "%3A")
	unescaper = strings.NewReplacer("%25", "%", "%3A", ":")
)

// KeyFromCall builds the cache key of a call: name, then the arguments
// formatted with fmt.Sprint. Colons and percent signs inside the name or an
// argument are escaped, so different argument lists never share a key.
// Arguments are identified by their text only: 1 and "1" map to the same key.
func KeyFromCall(name string, args ...any) string {
	var b strings.Builder
	escaper.WriteString(&b, name)
	b.WriteString(funcSep)
	for i, a := range args {
		if i > 0 {
			b.WriteString(paramSep)
		}
		s := fmt.Sprint(a)
		if s == "" {
			b.WriteString(emptyArg)
			continue
		}
		escaper.WriteString(&b, s)
	}
	return b.String()
}

// CallFromKey splits a key built by KeyFromCall. Arguments come back in
// their string form.
func CallFromKey(key string) (name string, args []string, err error) {
	name, rest, ok := strings.Cut(key, funcSep)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	name = unescaper.Replace(name)
	if rest == "" {
		return name, nil, nil
	}
	args = strings.Split(rest, paramSep)
	for i, a := range args {
		if a == emptyArg {
			args[i] = ""
			continue
		}
		args[i] = unescaper.Replace(a)
	}
	return name, args, nil
}
