package grouper

import "strings"

// maxDiffLines is the cap (on either input) past which the diff skips
// the LCS and shows a full removal/addition, avoiding O(n*m) blowup on
// very large outputs.
const maxDiffLines = 500

// unifiedDiff computes a simple unified diff between the norm output
// and an outlier's output.
func unifiedDiff(norm, outlier string) string {
	aLines := splitLines(norm)
	bLines := splitLines(outlier)

	var out strings.Builder
	out.WriteString("--- norm\n")
	out.WriteString("+++ outlier\n")

	if len(aLines) > maxDiffLines || len(bLines) > maxDiffLines {
		for _, line := range aLines {
			out.WriteString("-")
			out.WriteString(line)
			out.WriteString("\n")
		}
		for _, line := range bLines {
			out.WriteString("+")
			out.WriteString(line)
			out.WriteString("\n")
		}
		return out.String()
	}

	lcs := computeLCS(aLines, bLines)

	ai, bi, li := 0, 0, 0
	for li < len(lcs) {
		for ai < len(aLines) && aLines[ai] != lcs[li] {
			out.WriteString("-")
			out.WriteString(aLines[ai])
			out.WriteString("\n")
			ai++
		}
		for bi < len(bLines) && bLines[bi] != lcs[li] {
			out.WriteString("+")
			out.WriteString(bLines[bi])
			out.WriteString("\n")
			bi++
		}
		out.WriteString(" ")
		out.WriteString(lcs[li])
		out.WriteString("\n")
		ai++
		bi++
		li++
	}

	for ai < len(aLines) {
		out.WriteString("-")
		out.WriteString(aLines[ai])
		out.WriteString("\n")
		ai++
	}
	for bi < len(bLines) {
		out.WriteString("+")
		out.WriteString(bLines[bi])
		out.WriteString("\n")
		bi++
	}

	return out.String()
}

// splitLines splits into lines, dropping the empty element a trailing
// newline would produce.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// computeLCS returns the longest common subsequence of two line slices.
func computeLCS(a, b []string) []string {
	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			switch {
			case a[i-1] == b[j-1]:
				dp[i][j] = dp[i-1][j-1] + 1
			case dp[i-1][j] >= dp[i][j-1]:
				dp[i][j] = dp[i-1][j]
			default:
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	lcs := make([]string, 0, dp[m][n])
	i, j := m, n
	for i > 0 && j > 0 {
		switch {
		case a[i-1] == b[j-1]:
			lcs = append(lcs, a[i-1])
			i--
			j--
		case dp[i-1][j] >= dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	for l, r := 0, len(lcs)-1; l < r; l, r = l+1, r-1 {
		lcs[l], lcs[r] = lcs[r], lcs[l]
	}
	return lcs
}
