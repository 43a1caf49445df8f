package order

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var deadlinePatterns = []struct {
	re    *regexp.Regexp
	hours func(n int) int
}{
	{regexp.MustCompile(`(\d+)\s*(?:дня|день|дней)`), func(n int) int { return n * 24 }},
	{regexp.MustCompile(`(\d+)\s*(?:часа|час|часов)`), func(n int) int { return n }},
	{regexp.MustCompile(`(\d+)\s*(?:недели|неделя|недель)`), func(n int) int { return n * 24 * 7 }},
	// минуты округляются вниз до часов, но не меньше одного часа
	{regexp.MustCompile(`(\d+)\s*(?:минут|минута|минуты)`), func(n int) int { return max(1, n/60) }},
}

// ParseDeadline разбирает сроки вида «3 дня», «5 часов», «2 недели».
func ParseDeadline(text string) (time.Duration, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, p := range deadlinePatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		h := p.hours(n)
		if h <= 0 {
			return 0, false
		}
		return time.Duration(h) * time.Hour, true
	}
	return 0, false
}

// FormatRemaining: строка «⏱ Осталось: …» или «⏰ Время истекло!».
func FormatRemaining(deadline, now time.Time) string {
	if !now.Before(deadline) {
		return "⏰ Время истекло!"
	}
	diff := deadline.Sub(now)
	days := int(diff / (24 * time.Hour))
	hours := int(diff%(24*time.Hour)) / int(time.Hour)
	minutes := int(diff%time.Hour) / int(time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("⏱ Осталось: %d дн. %d ч. %d мин.", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("⏱ Осталось: %d ч. %d мин.", hours, minutes)
	default:
		return fmt.Sprintf("⏱ Осталось: %d мин.", minutes)
	}
}
