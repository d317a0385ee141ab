package ratelimit

// DimCheck is one dimension's limiter, key and requested amount.
type DimCheck struct {
	Dim     string
	Limiter Limiter
	Key     string
	Amount  int
}

// MultiDimensionalCheck evaluates every dimension and combines the results:
// the overall check is allowed iff every dimension allows, and the reported
// Remaining/RetryAfter come from the most restrictive dimension (any
// disallowing dimension beats an allowing one; among dimensions with the
// same outcome the lowest Remaining wins, ties going to the earlier one).
func MultiDimensionalCheck(checks []DimCheck) Result {
	allowed := true
	var worst Result
	worstSet := false

	for _, c := range checks {
		res := c.Limiter.Check(c.Key, c.Amount)
		if !res.Allowed {
			allowed = false
		}
		if !worstSet {
			worst = res
			worstSet = true
			continue
		}
		if isMoreRestrictive(res, worst) {
			worst = res
		}
	}

	worst.Allowed = allowed
	return worst
}

// isMoreRestrictive reports whether a is a stricter result than b: a
// rejection beats an allowance, and among two results of the same kind the
// one with fewer remaining tokens wins.
func isMoreRestrictive(a, b Result) bool {
	if a.Allowed != b.Allowed {
		return !a.Allowed
	}
	return a.Remaining < b.Remaining
}
