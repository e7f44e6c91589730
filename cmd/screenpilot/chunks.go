package main

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// readChunks delivers r to fn one line at a time, or in chunks of size
// runes when size is positive, mimicking streamed model output.
func readChunks(r io.Reader, size int, fn func(string) error) error {
	br := bufio.NewReader(r)
	var (
		sb strings.Builder
		n  int
	)
	for {
		ru, _, err := br.ReadRune()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		sb.WriteRune(ru)
		n++
		if (size > 0 && n >= size) || (size <= 0 && ru == '\n') {
			if err := fn(sb.String()); err != nil {
				return err
			}
			sb.Reset()
			n = 0
		}
	}
	if sb.Len() > 0 {
		return fn(sb.String())
	}
	return nil
}
