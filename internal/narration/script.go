// Package narration reduces a video script to the lines worth speaking.
package narration

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shortsmith/api/internal/model"
)

var (
	labelPattern  = regexp.MustCompile(`(?i)\b(hook|points|cta)\s*:`)
	bulletPattern = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+`)
	pointsLine    = regexp.MustCompile(`(?i)^points\b:?`)
	markdownNoise = strings.NewReplacer("**", "", "__", "", "`", "")
)

// Extract returns the hook followed by the call to action. Middle content
// (points, bullets) is dropped. It returns model.ErrEmptyInput when
// nothing speakable remains.
func Extract(script string) (string, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return "", model.ErrEmptyInput
	}

	if strings.HasPrefix(script, "{") {
		if hook, cta, ok := fromJSON(script); ok {
			return join(hook, cta)
		}
	}

	if labelPattern.MatchString(script) {
		hook, cta := fromLabels(script)
		return join(hook, cta)
	}

	return join(fromLines(script))
}

func fromJSON(script string) (string, string, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(script), &obj); err != nil {
		return "", "", false
	}
	var hook, cta string
	for k, v := range obj {
		s, _ := v.(string)
		switch strings.ToLower(k) {
		case "hook":
			hook = stripLabel(s)
		case "cta":
			cta = stripLabel(s)
		}
	}
	return hook, cta, true
}

// fromLabels splits on every Hook:/Points:/CTA: label, inline or not.
// Anything before the first label (a title, usually) is ignored.
func fromLabels(script string) (string, string) {
	locs := labelPattern.FindAllStringSubmatchIndex(script, -1)
	var hook, cta []string
	for i, loc := range locs {
		end := len(script)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := clean(script[loc[1]:end])
		if body == "" {
			continue
		}
		switch strings.ToLower(script[loc[2]:loc[3]]) {
		case "hook":
			hook = append(hook, body)
		case "cta":
			cta = append(cta, body)
		}
	}
	return strings.Join(hook, " "), strings.Join(cta, " ")
}

func fromLines(script string) (string, string) {
	var lines []string
	for _, l := range strings.Split(script, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || pointsLine.MatchString(l) || bulletPattern.MatchString(l) {
			continue
		}
		if l = clean(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return "", ""
	}
	first, last := lines[0], lines[len(lines)-1]
	if first == last {
		return first, ""
	}
	return first, last
}

func join(hook, cta string) (string, error) {
	hook, cta = strings.TrimSpace(hook), strings.TrimSpace(cta)
	if cta == hook {
		cta = ""
	}
	switch {
	case hook == "" && cta == "":
		return "", model.ErrEmptyInput
	case cta == "":
		return hook, nil
	case hook == "":
		return cta, nil
	}
	sep := " "
	if !strings.ContainsAny(hook[len(hook)-1:], ".!?") {
		sep = ". "
	}
	return hook + sep + cta, nil
}

func stripLabel(s string) string {
	s = strings.TrimSpace(s)
	if loc := labelPattern.FindStringIndex(s); loc != nil && loc[0] == 0 {
		s = s[loc[1]:]
	}
	return clean(s)
}

// clean flattens whitespace and drops markdown emphasis left by the
// script generator.
func clean(s string) string {
	s = markdownNoise.Replace(s)
	s = strings.Trim(s, " \t\r\n*#>-")
	return strings.Join(strings.Fields(s), " ")
}
