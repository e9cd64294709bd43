package notify

import "fmt"

// The summary templates registered with the provider have a title plus exactly
// ten numbered slots; the provider cannot render variable-length lists, so
// chunking happens at this size. Changing the provider template's slot count
// requires changing this constant in lockstep.
const TemplateSlotCount = 10

const TitleKey = "title"

// SlotKey returns the personalisation key for a 1-based slot index.
func SlotKey(i int) string {
	return fmt.Sprintf("slot-%d", i)
}

// BuildSummaryPayload maps a title and up to TemplateSlotCount rendered lines
// onto the fixed template keys. Unused trailing slots carry empty strings so
// the provider renders them blank instead of leaving placeholders visible.
func BuildSummaryPayload(title string, lines []string) map[string]string {
	payload := make(map[string]string, TemplateSlotCount+1)
	payload[TitleKey] = title
	for i := 1; i <= TemplateSlotCount; i++ {
		if i <= len(lines) {
			payload[SlotKey(i)] = lines[i-1]
		} else {
			payload[SlotKey(i)] = ""
		}
	}
	return payload
}
