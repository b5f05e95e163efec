package trace

import (
	"encoding/json"
	"strconv"
	"time"
)

// Format of rendered events.
type Format uint8

const (
	FormatAuto Format = iota
	FormatText
	FormatNDJSON
)

// AppendEvent renders ev onto dst, newline included.
func AppendEvent(dst []byte, ev *Event, format Format) []byte {
	if format == FormatNDJSON {
		return appendJSON(dst, ev)
	}
	return appendText(dst, ev)
}

var kindMarks = [...]byte{
	KindBegin:     '>',
	KindEnd:       '<',
	KindNote:      '*',
	KindFallback:  '!',
	KindHeartbeat: '~',
}

// appendText renders one line:
//
//	[    12] pass   < const-fold 0.214ms (changed) funcs=3
func appendText(dst []byte, ev *Event) []byte {
	dst = append(dst, '[')
	seq := strconv.FormatUint(ev.Seq, 10)
	for i := len(seq); i < 6; i++ {
		dst = append(dst, ' ')
	}
	dst = append(dst, seq...)
	dst = append(dst, "] "...)
	scope := ev.Scope.String()
	if ev.Kind == KindHeartbeat {
		scope = "-"
	}
	dst = append(dst, scope...)
	for i := len(scope); i < 7; i++ {
		dst = append(dst, ' ')
	}
	mark := byte('?')
	if int(ev.Kind) < len(kindMarks) && kindMarks[ev.Kind] != 0 {
		mark = kindMarks[ev.Kind]
	}
	dst = append(dst, mark, ' ')
	dst = append(dst, ev.Name...)
	if ev.Kind == KindEnd {
		dst = append(dst, ' ')
		dst = strconv.AppendFloat(dst, float64(ev.Elapsed)/float64(time.Millisecond), 'f', 3, 64)
		dst = append(dst, "ms"...)
	}
	if ev.Detail != "" {
		dst = append(dst, " ("...)
		dst = append(dst, ev.Detail...)
		dst = append(dst, ')')
	}
	for _, f := range ev.Fields {
		dst = append(dst, ' ')
		dst = append(dst, f.Key...)
		dst = append(dst, '=')
		dst = append(dst, f.Value...)
	}
	return append(dst, '\n')
}

type jsonEvent struct {
	Seq       uint64            `json:"seq"`
	Time      string            `json:"time"`
	Kind      string            `json:"kind"`
	Scope     string            `json:"scope,omitempty"`
	Span      uint64            `json:"span,omitempty"`
	Parent    uint64            `json:"parent,omitempty"`
	Name      string            `json:"name"`
	Detail    string            `json:"detail,omitempty"`
	ElapsedUS int64             `json:"elapsed_us,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func appendJSON(dst []byte, ev *Event) []byte {
	j := jsonEvent{
		Seq:       ev.Seq,
		Time:      ev.Time.UTC().Format(time.RFC3339Nano),
		Kind:      ev.Kind.String(),
		Span:      ev.Span,
		Parent:    ev.Parent,
		Name:      ev.Name,
		Detail:    ev.Detail,
		ElapsedUS: ev.Elapsed.Microseconds(),
	}
	if ev.Kind != KindHeartbeat {
		j.Scope = ev.Scope.String()
	}
	if len(ev.Fields) > 0 {
		j.Fields = make(map[string]string, len(ev.Fields))
		for _, f := range ev.Fields {
			j.Fields[f.Key] = f.Value
		}
	}
	data, err := json.Marshal(j)
	if err != nil {
		// Only strings and integers are encoded.
		panic(err)
	}
	dst = append(dst, data...)
	return append(dst, '\n')
}
