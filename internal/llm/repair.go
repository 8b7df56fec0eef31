package llm

import (
	"bytes"
)

// RepairTruncatedJSON cuts a response that ran into the output token ceiling
// back to its last complete array element (falling back to the last closed
// object of any kind) and appends the closers for every bracket still open at
// that point. Braces inside string literals are ignored. When no object ever
// closed the input is returned unchanged.
func RepairTruncatedJSON(raw []byte) []byte {
	var (
		stack       []byte
		inString    bool
		escaped     bool
		lastElement = -1 // index just past a '}' whose parent is an array
		lastObject  = -1 // index just past any '}'
		elemStack   []byte
		objStack    []byte
	)

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				continue
			}
			open := stack[len(stack)-1]
			if (c == '}' && open != '{') || (c == ']' && open != '[') {
				// mismatched closer; nothing sensible to repair beyond this point
				return closeAt(raw, lastElement, elemStack, lastObject, objStack)
			}
			stack = stack[:len(stack)-1]
			if c == '}' {
				lastObject = i + 1
				objStack = append(objStack[:0], stack...)
				if len(stack) > 0 && stack[len(stack)-1] == '[' {
					lastElement = i + 1
					elemStack = append(elemStack[:0], stack...)
				}
			}
		}
	}
	return closeAt(raw, lastElement, elemStack, lastObject, objStack)
}

func closeAt(raw []byte, lastElement int, elemStack []byte, lastObject int, objStack []byte) []byte {
	cut, open := lastElement, elemStack
	if cut < 0 {
		cut, open = lastObject, objStack
	}
	if cut < 0 {
		return raw
	}
	out := make([]byte, 0, cut+len(open))
	out = append(out, bytes.TrimRight(raw[:cut], " \t\r\n")...)
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == '[' {
			out = append(out, ']')
		} else {
			out = append(out, '}')
		}
	}
	return out
}
