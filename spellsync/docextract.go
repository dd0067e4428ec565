package spellsync

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/magetools/grimorium/contenthash"
)

var (
	docBlockRe  = regexp.MustCompile(`(?s)/\*\*(.*?)\*/`)
	spellNameRe = regexp.MustCompile(`spell\s*\(\s*\{[^}]*?name\s*:\s*"([^"]+)"`)
)

// extractDocs collects the sanitized documentation fragments of one
// collection directory for summarization. Extraction is purely textual: the
// sources are scanned for doc blocks, never executed, because this pass walks
// every collection regardless of its manifest policy.
//
// The first doc block of a file describes the file itself and is labeled
// with the file's stem; a block immediately preceding a spell registration is
// labeled with the spell's name.
func extractDocs(dir string, logger *zap.Logger) []string {
	var docs []string
	for _, rel := range contenthash.SourceFiles(dir) {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		src, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read source for summary",
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}

		stem := strings.TrimSuffix(filepath.Base(rel), contenthash.SourceExt)
		blocks := docBlockRe.FindAllSubmatchIndex(src, -1)
		for i, loc := range blocks {
			text := Sanitize(cleanDocBlock(string(src[loc[2]:loc[3]])))
			if text == "" {
				continue
			}
			if i == 0 {
				docs = append(docs, "Module "+stem+": "+text)
				continue
			}
			if name := followingSpellName(src, loc[1], blocks, i); name != "" {
				docs = append(docs, "Spell "+name+": "+text)
			} else {
				docs = append(docs, text)
			}
		}
	}
	return docs
}

// followingSpellName returns the name of the spell registered between this
// doc block and the next one, if any.
func followingSpellName(src []byte, from int, blocks [][]int, i int) string {
	to := len(src)
	if i+1 < len(blocks) {
		to = blocks[i+1][0]
	}
	m := spellNameRe.FindSubmatch(src[from:to])
	if m == nil {
		return ""
	}
	return string(m[1])
}

// cleanDocBlock strips the leading asterisk gutter from a doc block body.
func cleanDocBlock(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "*")
		lines[i] = strings.TrimPrefix(line, " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
