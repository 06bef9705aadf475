package termrender

import "unicode/utf8"

// decoder converts bytes to runes across chunk boundaries. An incomplete
// sequence at the end of a chunk is held back until the next one.
type decoder struct {
	pending []byte
}

func (d *decoder) decode(p []byte, emit func(rune)) {
	buf := p
	if len(d.pending) > 0 {
		buf = append(d.pending, p...)
		d.pending = nil
	}

	for i := 0; i < len(buf); {
		r, size := utf8.DecodeRune(buf[i:])
		if r == utf8.RuneError && size <= 1 {
			if !utf8.FullRune(buf[i:]) {
				d.pending = append([]byte(nil), buf[i:]...)
				return
			}

			emit(utf8.RuneError)
			i++

			continue
		}

		emit(r)
		i += size
	}
}

// flush materializes a held-back sequence as U+FFFD once no more input will come.
func (d *decoder) flush(emit func(rune)) {
	if len(d.pending) == 0 {
		return
	}

	d.pending = nil
	emit(utf8.RuneError)
}
