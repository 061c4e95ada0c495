package whatsapp

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	h1Regex       = regexp.MustCompile(`(?m)^#[ \t]+\**(.+?)\**$`)
	h2Regex       = regexp.MustCompile(`(?m)^#{2,}[ \t]+\**(.+?)\**$`)
	boldRegex     = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	bulletRegex   = regexp.MustCompile(`(?m)^[ \t]*[\*\-][ \t]+(.+)$`)
	numberedRegex = regexp.MustCompile(`(?m)^(\d+)\.[ \t]+(.+)$`)
	dangerRegex   = regexp.MustCompile(`(?i)danger level[*: \t]*([1-5])\b(?:\s*/\s*5)?`)
	notesRegex    = regexp.MustCompile(`(?im)^\**(disclaimer|warning|note|important)\**:\**`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

var numberEmojis = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣", "🔟"}

var noteEmojis = map[string]string{
	"disclaimer": "⚕️",
	"warning":    "⚠️",
	"note":       "📝",
	"important":  "❗",
}

// WhatsAppFormatter rewrites the model's markdown into WhatsApp's markup
type WhatsAppFormatter struct{}

// NewWhatsAppFormatter creates a new WhatsApp message formatter
func NewWhatsAppFormatter() *WhatsAppFormatter {
	return &WhatsAppFormatter{}
}

// Format converts headings, bold text and lists to WhatsApp markup. It also
// marks the danger level and the disclaimer lines.
func (f *WhatsAppFormatter) Format(message string) string {
	result := strings.ReplaceAll(message, "\r\n", "\n")

	result = f.formatHeadings(result)
	result = boldRegex.ReplaceAllString(result, "*$1*")
	result = f.formatLists(result)
	result = f.formatDangerLevel(result)
	result = f.formatNotes(result)
	result = blankRuns.ReplaceAllString(result, "\n\n")

	return strings.TrimSpace(result)
}

// formatHeadings turns markdown headings into bold lines
func (f *WhatsAppFormatter) formatHeadings(message string) string {
	message = h2Regex.ReplaceAllString(message, "🔹 *$1*")
	return h1Regex.ReplaceAllString(message, "📌 *$1*")
}

// formatLists replaces bullets with dots and numbers 1-10 with keycap emojis
func (f *WhatsAppFormatter) formatLists(message string) string {
	message = bulletRegex.ReplaceAllString(message, "• $1")

	return numberedRegex.ReplaceAllStringFunc(message, func(match string) string {
		sub := numberedRegex.FindStringSubmatch(match)
		number, err := strconv.Atoi(sub[1])
		if err != nil || number < 1 || number > len(numberEmojis) {
			return match
		}
		return numberEmojis[number-1] + " " + sub[2]
	})
}

// formatDangerLevel follows the 1 to 5 danger level with a traffic light
func (f *WhatsAppFormatter) formatDangerLevel(message string) string {
	return dangerRegex.ReplaceAllStringFunc(message, func(match string) string {
		level, err := strconv.Atoi(dangerRegex.FindStringSubmatch(match)[1])
		if err != nil {
			return match
		}
		return match + " " + dangerIndicator(level)
	})
}

func dangerIndicator(level int) string {
	switch {
	case level >= 4:
		return "🔴"
	case level == 3:
		return "🟠"
	default:
		return "🟢"
	}
}

// formatNotes marks disclaimer, warning, note and important lines
func (f *WhatsAppFormatter) formatNotes(message string) string {
	return notesRegex.ReplaceAllStringFunc(message, func(match string) string {
		word := strings.Trim(match, "*:")
		emoji := noteEmojis[strings.ToLower(word)]
		return emoji + " *" + word + ":*"
	})
}
