package attribution

import "strings"

// Namer derives a process name from a command line.
type Namer struct {
	// MaxLength truncates names to this many characters when positive.
	MaxLength int
	// MainNameOnly keeps only the last path segment of the first token.
	MainNameOnly bool
}

// Derive returns the process name for cmdline, or "" when nothing usable
// remains once option flags are dropped.
func (n Namer) Derive(cmdline string) string {
	cmdline = strings.ReplaceAll(cmdline, "\n", "")

	var kept []string
	for _, tok := range strings.Split(cmdline, " ") {
		if tok == "" || strings.HasPrefix(tok, "-") {
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) == 0 {
		return ""
	}

	name := strings.Join(kept, " ")
	if n.MainNameOnly {
		main := kept[0]
		name = main[strings.LastIndex(main, "/")+1:]
	}

	if n.MaxLength > 0 {
		if runes := []rune(name); len(runes) > n.MaxLength {
			name = string(runes[:n.MaxLength])
		}
	}
	return name
}
