// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package csource

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/seedforge/seedforge/pkg/quality"
)

// Header is the metadata block of an emitted seed.
type Header struct {
	ID             int
	Combination    []string
	Score          float64
	NrUniqueBranch int
	Quality        *quality.Report
}

// ParseHeader extracts the metadata block from a seed.
// All four header lines must be present and appear in order.
func ParseHeader(data []byte) (*Header, error) {
	hdr := new(Header)
	next := 0
	s := bufio.NewScanner(bytes.NewReader(data))
	s.Buffer(nil, 64<<20)
	for line := 1; next < 4 && s.Scan(); line++ {
		text := s.Text()
		var err error
		switch {
		case strings.HasPrefix(text, idPrefix):
			err = expect(next, 0)
			if err == nil {
				hdr.ID, err = strconv.Atoi(strings.TrimPrefix(text, idPrefix))
			}
		case strings.HasPrefix(text, combinationPrefix):
			err = expect(next, 1)
			if err == nil {
				hdr.Combination, err = parseCombination(text)
			}
		case strings.HasPrefix(text, scorePrefix):
			err = expect(next, 2)
			if err == nil {
				err = hdr.parseScore(text)
			}
		case strings.HasPrefix(text, qualityPrefix):
			err = expect(next, 3)
			if err == nil {
				hdr.Quality = new(quality.Report)
				err = json.Unmarshal([]byte(strings.TrimPrefix(text, qualityPrefix)), hdr.Quality)
			}
		default:
			if next != 0 {
				err = fmt.Errorf("unexpected line inside header")
			}
			if err == nil {
				continue
			}
		}
		if err != nil {
			return nil, fmt.Errorf("line %v: %w", line, err)
		}
		next++
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if next != 4 {
		return nil, fmt.Errorf("incomplete seed header: got %v of 4 fields", next)
	}
	return hdr, nil
}

var headerFields = [...]string{"ID", "Combination", "score", "Quality"}

func expect(next, field int) error {
	if next != field {
		return fmt.Errorf("<%v> field out of order", headerFields[field])
	}
	return nil
}

func parseCombination(text string) ([]string, error) {
	if !strings.HasSuffix(text, combinationSuffix) {
		return nil, fmt.Errorf("unterminated <Combination> field")
	}
	list := strings.TrimSuffix(strings.TrimPrefix(text, combinationPrefix), combinationSuffix)
	if list == "" {
		return []string{}, nil
	}
	names := strings.Split(list, ", ")
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("empty name in <Combination> field")
		}
	}
	return names, nil
}

func (hdr *Header) parseScore(text string) error {
	score, branches, ok := strings.Cut(strings.TrimPrefix(text, scorePrefix), branchesSep)
	if !ok {
		return fmt.Errorf("malformed <score> field")
	}
	var err error
	if hdr.Score, err = strconv.ParseFloat(score, 64); err != nil {
		return err
	}
	hdr.NrUniqueBranch, err = strconv.Atoi(branches)
	return err
}
