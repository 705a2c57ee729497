package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/tick-md/tick/pkg/models"
)

// DefaultIDPadWidth zero-pads sequence numbers to three digits (TICK-001).
const DefaultIDPadWidth = 3

// DefaultIDPrefix is used when a project name has no letters or digits.
const DefaultIDPrefix = "TICK"

// DerivePrefix builds an ID prefix from the first four letters or digits of
// project, upper-cased.
func DerivePrefix(project string) string {
	var b strings.Builder
	n := 0
	for _, r := range project {
		if n == 4 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
			n++
		}
	}
	if n == 0 {
		return DefaultIDPrefix
	}
	return b.String()
}

func validatePrefix(prefix string) error {
	bad := strings.IndexFunc(prefix, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if bad >= 0 {
		return &InvalidNameError{Kind: "ID prefix", Name: prefix, Hint: "use letters, digits or underscores"}
	}
	return nil
}

// FormatTaskID renders {prefix}-{seq}. padWidth zero-pads the sequence; use 0
// for no padding (e.g., TICK-1).
func FormatTaskID(prefix string, seq, padWidth int) string {
	if padWidth > 0 {
		return fmt.Sprintf("%s-%0*d", prefix, padWidth, seq)
	}
	return fmt.Sprintf("%s-%d", prefix, seq)
}

// ParseTaskSeq extracts the sequence number from an ID minted with prefix.
func ParseTaskSeq(prefix, id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, prefix+"-")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// mintTaskID takes the next ID from the document counter and advances it.
// The counter only moves forward, so IDs of deleted tasks are never reused.
func mintTaskID(doc *models.TickFile, padWidth int) string {
	if doc.Meta.NextID < 1 {
		doc.Meta.NextID = 1
	}
	id := FormatTaskID(doc.Meta.IDPrefix, doc.Meta.NextID, padWidth)
	for doc.Task(id) != nil {
		doc.Meta.NextID++
		id = FormatTaskID(doc.Meta.IDPrefix, doc.Meta.NextID, padWidth)
	}
	doc.Meta.NextID++
	return id
}
