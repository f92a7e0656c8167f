// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

package translate

import (
	"fmt"
	"os"
	"strings"
	"text/scanner"
)

// ReadConfig parses a translation config file. Config files use valid
// Go syntax and are parsed by a go lexical scanner: each entry is
//
//	map = "<logical-prefix> <host-prefix>"
//
// and rule order is match order. See misc/tqftpserv.conf for an
// example.
func ReadConfig(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s scanner.Scanner
	s.Init(f)
	s.Filename = path

	var rules []Rule

	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		if tok != scanner.Ident {
			return nil, fmt.Errorf("%v malformed config: %s, expected identifier, got %s", s.Pos(), s.TokenText(), scanner.TokenString(tok))
		}
		k := s.TokenText()

		tok = s.Scan()
		if tok != '=' {
			return nil, fmt.Errorf("%v malformed config: %s, expected '=', got %s", s.Pos(), s.TokenText(), scanner.TokenString(tok))
		}

		tok = s.Scan()
		if tok != scanner.String && tok != scanner.RawString {
			return nil, fmt.Errorf("%v malformed config %s, expected string, got %s", s.Pos(), s.TokenText(), scanner.TokenString(tok))
		}

		v := strings.Trim(s.TokenText(), "\"`")
		d := strings.Fields(v)

		switch k {
		case "map":
			if len(d) != 2 {
				return nil, fmt.Errorf("%v map wants \"<logical-prefix> <host-prefix>\", got %q", s.Pos(), v)
			}
			rules = append(rules, Rule{Prefix: d[0], Dest: d[1]})
		default:
			return nil, fmt.Errorf("invalid key %s", k)
		}
	}

	return rules, nil
}
