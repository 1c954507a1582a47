package rules

import "hash/fnv"

// Bucket maps a (user, rule) pair onto a stable bucket in [0, 100)
func Bucket(userID, ruleID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(ruleID))
	return int(h.Sum32() % 100)
}

// InRollout reports whether the pair falls inside the first percent buckets
func InRollout(userID, ruleID string, percent int) bool {
	return Bucket(userID, ruleID) < percent
}
