package pattern

// Validate checks a rule constructed in Go against the same capture rules
// the compiler enforces for rule files. Registries call this before
// accepting a spec, so hand-built Alternation and Contains trees get the
// compile-time guarantees .tlq rules get.
func Validate(spec *RuleSpec) *CompileError {
	if spec.Name == "" {
		return compileErrorf("<registered>", 0, "", ErrIncompleteRule, "rule has no name")
	}

	if spec.Program == nil || len(spec.Program.Branches) == 0 {
		return compileErrorf("<registered>", 0, spec.Name, ErrIncompleteRule, "no match pattern")
	}

	if len(spec.Program.Reports) == 0 {
		return compileErrorf("<registered>", 0, spec.Name, ErrIncompleteRule, "no report action")
	}

	return validateRule(spec, "<registered>", 0)
}

// validateRule enforces the capture rules per match path: every capture a
// where clause or report references must be bound by the enclosing pattern
// (or an earlier clause) in every alternative, and no name may bind twice on
// one path. Wildcard captures ($_x) and anonymous variadics bind nothing and
// are exempt.
func validateRule(spec *RuleSpec, file string, line int) *CompileError {
	multi := len(spec.Program.Branches) > 1

	for branchIdx, branch := range spec.Program.Branches {
		bound := make(map[string]struct{})

		if dup := collectBindings(branch.Pattern, bound); dup != "" {
			return compileErrorf(file, line, spec.Name, ErrDuplicateCapture,
				"$%s bound more than once in match pattern", dup)
		}

		if branch.As != "" {
			if dup := bind(branch.As, bound); dup != "" {
				return compileErrorf(file, line, spec.Name, ErrDuplicateCapture,
					"$%s bound more than once in match pattern", dup)
			}
		}

		if cerr := validateClauses(spec, file, line, branchIdx, multi, bound); cerr != nil {
			return cerr
		}
	}

	return nil
}

// validateClauses replays the where chain and reports against one branch's
// binding set.
func validateClauses(
	spec *RuleSpec, file string, line, branchIdx int, multi bool, bound map[string]struct{},
) *CompileError {
	for _, cond := range spec.Program.Where {
		if _, ok := bound[cond.Capture]; !ok {
			return unboundError(file, line, spec.Name, cond.Capture, "where clause", branchIdx, multi)
		}

		if dup := collectBindings(cond.Sub, bound); dup != "" {
			return compileErrorf(file, line, spec.Name, ErrDuplicateCapture,
				"$%s bound more than once in where clause", dup)
		}

		if cond.As != "" {
			if dup := bind(cond.As, bound); dup != "" {
				return compileErrorf(file, line, spec.Name, ErrDuplicateCapture,
					"$%s bound more than once in where clause", dup)
			}
		}
	}

	for _, rep := range spec.Program.Reports {
		if _, ok := bound[rep.Capture]; !ok {
			return unboundError(file, line, spec.Name, rep.Capture, "report action", branchIdx, multi)
		}
	}

	return nil
}

func unboundError(file string, line int, rule, capture, where string, branchIdx int, multi bool) *CompileError {
	if multi {
		return compileErrorf(file, line, rule, ErrUnboundCapture,
			"$%s in %s is not bound by match alternative %d", capture, where, branchIdx+1)
	}

	return compileErrorf(file, line, rule, ErrUnboundCapture,
		"$%s in %s is not bound by the match pattern", capture, where)
}

// bind adds a name to the set, returning the name if it was already bound.
func bind(name string, bound map[string]struct{}) string {
	if _, exists := bound[name]; exists {
		return name
	}

	bound[name] = struct{}{}

	return ""
}

// collectBindings walks a pattern and records the names it binds, returning
// the first name bound twice. Alternation sub-branches each get their own
// view of the set; only names every sub-branch binds become visible outside
// the alternation, since any single branch may be the one taken.
func collectBindings(node Node, bound map[string]struct{}) string {
	switch pat := node.(type) {
	case *Literal:
		for _, child := range pat.Children {
			if dup := collectBindings(child, bound); dup != "" {
				return dup
			}
		}
	case *Capture:
		if pat.Discards() {
			return ""
		}

		return bind(pat.Name, bound)
	case *Variadic:
		if pat.Name == "" {
			return ""
		}

		return bind(pat.Name, bound)
	case *Contains:
		if dup := collectBindings(pat.Sub, bound); dup != "" {
			return dup
		}

		if pat.As != "" {
			return bind(pat.As, bound)
		}
	case *Alternation:
		return collectAlternationBindings(pat, bound)
	}

	return ""
}

func collectAlternationBindings(alt *Alternation, bound map[string]struct{}) string {
	var common map[string]struct{}

	for _, branch := range alt.Branches {
		branchBound := make(map[string]struct{}, len(bound))
		for name := range bound {
			branchBound[name] = struct{}{}
		}

		if dup := collectBindings(branch, branchBound); dup != "" {
			return dup
		}

		introduced := make(map[string]struct{})

		for name := range branchBound {
			if _, preexisting := bound[name]; !preexisting {
				introduced[name] = struct{}{}
			}
		}

		if common == nil {
			common = introduced

			continue
		}

		for name := range common {
			if _, ok := introduced[name]; !ok {
				delete(common, name)
			}
		}
	}

	for name := range common {
		bound[name] = struct{}{}
	}

	return ""
}
