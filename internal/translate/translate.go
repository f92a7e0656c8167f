// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

// Package translate maps the flat filenames coprocessors request onto
// host filesystem paths. An ordered list of prefix rewrite rules
// decides where each logical name lands; compressed artifacts are
// decompressed on the fly so the coprocessor always sees uncompressed
// content.
package translate

import (
	"os"
	"strings"
	"sync"

	log "github.com/a-wai/tqftpserv/pkg/minilog"
)

// Rule rewrites one logical prefix to a host prefix.
type Rule struct {
	Prefix string // logical prefix the coprocessor requests
	Dest   string // host prefix it maps to
}

// Rules is an ordered rule list, swappable at runtime. The first rule
// whose prefix matches a requested name wins.
type Rules struct {
	mu    sync.RWMutex
	rules []Rule
}

// Default returns the built-in rule list used when no config file is
// given, matching the stock deployment layout.
func Default() []Rule {
	return []Rule{
		{"/readonly/firmware/image/", "/lib/firmware/qcom/"},
		{"/readwrite/", "/var/lib/tqftpserv/readwrite/"},
		{"/persistent/", "/var/lib/tqftpserv/persistent/"},
	}
}

func New(rules []Rule) *Rules {
	return &Rules{rules: rules}
}

// Set atomically replaces the rule list. Transfers already holding an
// open handle are unaffected.
func (r *Rules) Set(rules []Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = rules
}

// Rules returns a copy of the current rule list.
func (r *Rules) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]Rule, len(r.rules))
	copy(rules, r.rules)
	return rules
}

// path rewrites a logical name to a host path. A name no rule matches
// does not exist as far as the coprocessor is concerned.
func (r *Rules) path(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rule := range r.rules {
		if strings.HasPrefix(name, rule.Prefix) {
			return rule.Dest + strings.TrimPrefix(name, rule.Prefix), nil
		}
	}

	return "", &os.PathError{Op: "translate", Path: name, Err: os.ErrNotExist}
}

// Open resolves a logical name for reading. If the host path is absent
// but a compressed sibling exists, the sibling is decompressed into an
// anonymous temporary file and that handle is returned instead,
// positioned at offset 0 and stat-ing to the uncompressed size.
func (r *Rules) Open(name string) (*os.File, error) {
	host, err := r.path(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(host)
	if err == nil {
		return f, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	if _, serr := os.Stat(host + zstdSuffix); serr != nil {
		// no compressed sibling either; report the original miss
		return nil, err
	}

	log.Debug("decompressing %v for %v", host+zstdSuffix, name)
	return decompress(host + zstdSuffix)
}

// Create resolves a logical name for writing, creating the host file
// if needed. The file is not truncated; writers stream sequentially
// from the start, as the protocol engine requires.
func (r *Rules) Create(name string) (*os.File, error) {
	host, err := r.path(name)
	if err != nil {
		return nil, err
	}

	return os.OpenFile(host, os.O_WRONLY|os.O_CREATE, 0644)
}
