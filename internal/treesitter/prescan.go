package treesitter

// PreScanFiles runs each registered language's lightweight pre-scan over
// the files it supports and merges the per-language maps. The merge is
// additive: existing entries are never overwritten, new paths are
// appended, and a path already recorded for a name is not repeated.
func PreScanFiles(sess *Session, files []string) map[string][]string {
	byExtractor := map[string][]string{}
	for _, path := range files {
		if e, ok := ExtractorForPath(path); ok {
			byExtractor[e.Lang()] = append(byExtractor[e.Lang()], path)
		}
	}

	merged := map[string][]string{}
	for lang, langFiles := range byExtractor {
		e, ok := ExtractorForLang(lang)
		if !ok {
			continue
		}
		for name, paths := range e.PreScan(sess, langFiles) {
			merged[name] = appendNewPaths(merged[name], paths)
		}
	}
	return merged
}

func appendNewPaths(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p] = true
	}
	for _, p := range incoming {
		if !seen[p] {
			seen[p] = true
			existing = append(existing, p)
		}
	}
	return existing
}
