package native

// MatchFilter matches uri against a resource-request filter pattern, where
// "*" matches any run of characters.
func MatchFilter(pattern, uri string) bool {
	px, ux := 0, 0
	starPx, starUx := -1, -1
	for ux < len(uri) {
		switch {
		case px < len(pattern) && pattern[px] == '*':
			starPx, starUx = px, ux
			px++
		case px < len(pattern) && pattern[px] == uri[ux]:
			px++
			ux++
		case starPx >= 0:
			starUx++
			px = starPx + 1
			ux = starUx
		default:
			return false
		}
	}
	for px < len(pattern) && pattern[px] == '*' {
		px++
	}
	return px == len(pattern)
}
