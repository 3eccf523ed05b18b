package codeindex

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Chunk boundaries and limits.
const (
	maxChunkLines = 200
	minChunkLines = 5
)

// languageByExt maps file extensions to language names. Files outside this
// map are not indexed.
var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".rb":    "ruby",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".kt":    "kotlin",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".sql":   "sql",
}

// DetectLanguage returns the language for a path, or "" when the file is not
// an indexable source file.
func DetectLanguage(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}

// functionBoundary marks lines where a new logical unit starts. It is a
// cross-language heuristic, not a parser.
var functionBoundary = regexp.MustCompile(`^\s*(func |def |class |function |fn |impl |public |private |protected |static |module |interface |struct )`)

// decisionPoint counts branch points for the complexity estimate.
var decisionPoint = regexp.MustCompile(`\b(if|for|while|case|when|catch|except|elif|rescue)\b|&&|\|\||\?\s*.*\s*:`)

// commentLine recognizes line and block comment openers across the
// supported languages.
var commentLine = regexp.MustCompile(`^\s*(//|#|/\*|\*|"""|'''|--)`)

// CodeChunk is one indexable fragment of a source file.
type CodeChunk struct {
	Content    string
	StartLine  int
	LineCount  int
	Complexity int
	HasDoc     bool
}

// SplitChunks slices source text at function boundaries, keeping chunks
// between minChunkLines and maxChunkLines. Short files come back as a
// single chunk.
func SplitChunks(source string) []CodeChunk {
	lines := strings.Split(source, "\n")
	var chunks []CodeChunk
	start := 0

	flush := func(end int) {
		if end <= start {
			return
		}
		// Trailing blank lines belong to no chunk.
		trimmed := end
		for trimmed > start && strings.TrimSpace(lines[trimmed-1]) == "" {
			trimmed--
		}
		if trimmed == start {
			start = end
			return
		}
		body := lines[start:trimmed]
		chunks = append(chunks, CodeChunk{
			Content:    strings.Join(body, "\n"),
			StartLine:  start + 1,
			LineCount:  trimmed - start,
			Complexity: EstimateComplexity(strings.Join(body, "\n")),
			HasDoc:     hasDocumentation(body),
		})
		start = end
	}

	for i := range lines {
		if i-start >= maxChunkLines {
			flush(i)
			continue
		}
		if i > start && i-start >= minChunkLines && functionBoundary.MatchString(lines[i]) {
			// Keep a directly preceding comment block attached to the
			// declaration it documents.
			split := i
			for split > start+1 && commentLine.MatchString(lines[split-1]) {
				split--
			}
			if split-start >= minChunkLines {
				flush(split)
			}
		}
	}
	flush(len(lines))
	return chunks
}

// EstimateComplexity approximates cyclomatic complexity by counting decision
// points plus one.
func EstimateComplexity(source string) int {
	count := 1
	for _, line := range strings.Split(source, "\n") {
		if commentLine.MatchString(line) {
			continue
		}
		count += len(decisionPoint.FindAllString(line, -1))
	}
	return count
}

// hasDocumentation reports whether the chunk opens with a comment.
func hasDocumentation(lines []string) bool {
	for i, line := range lines {
		if i >= 5 {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		return commentLine.MatchString(line)
	}
	return false
}
