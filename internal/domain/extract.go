package domain

import (
	"regexp"
	"strings"
	"sync"
)

// missingScalar is returned by ExtractScalar when a label is absent.
const missingScalar = "0"

const boldSpan = `<span style="font-weight:bold">`

var (
	// membersRe matches "Residents (3)" (current feed) or "Members (3)"; the count is ignored.
	membersRe = regexp.MustCompile(regexp.QuoteMeta(boldSpan) + `.*?(?:Residents|Members)\s*\(\d+\)\s*</span>:\s*(.*?)<br`)

	resourcesRe = regexp.MustCompile(regexp.QuoteMeta(boldSpan) + `.*?Resources\s*</span>:\s*(.*?)<br`)

	// trustedRe also accepts the closing div because the label is often last in the popup.
	trustedRe = regexp.MustCompile(regexp.QuoteMeta(boldSpan) + `.*?Trusted Players\s*</span>:\s*(.*?)(?:<br|</div>)`)

	nationRe = regexp.MustCompile(`<span style="font-size:150%">Member of (.*?)</span>`)

	// peacefulRe requires the flag to be a whole token, so "trueish" is not a match.
	peacefulRe = regexp.MustCompile(regexp.QuoteMeta(boldSpan) + `.*?Peaceful\?\s*</span>\s*((?i:true|false))\b`)

	// scalarPatterns caches compiled scalar patterns by label.
	scalarPatterns sync.Map
)

// ExtractScalar returns the trimmed value that follows the bold label, up to
// the next line break. It returns "0" when the label is not present.
func ExtractScalar(desc, label string) string {
	value, ok := firstCapture(scalarPattern(label), desc)
	if !ok {
		return missingScalar
	}
	return value
}

// ExtractMembers returns the resident list with blanks removed.
func ExtractMembers(desc string) []string {
	value, ok := firstCapture(membersRe, desc)
	if !ok {
		return []string{}
	}
	members := make([]string, 0, strings.Count(value, ",")+1)
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			members = append(members, part)
		}
	}
	return members
}

// ExtractResources returns the resource list. Blank entries produced by stray
// commas are kept so positions line up with the popup text.
func ExtractResources(desc string) []string {
	value, ok := firstCapture(resourcesRe, desc)
	if !ok {
		return []string{}
	}
	return splitKeepEmpty(value)
}

// ExtractTrusted returns the trusted player list, keeping blank entries.
func ExtractTrusted(desc string) []string {
	value, ok := firstCapture(trustedRe, desc)
	if !ok {
		return []string{}
	}
	return splitKeepEmpty(value)
}

// ExtractAffiliation returns the nation named in the "Member of" header, or
// "" for an unaffiliated town.
func ExtractAffiliation(desc string) string {
	value, _ := firstCapture(nationRe, desc)
	return value
}

// ExtractPeaceful reports whether the popup marks the town as peaceful.
func ExtractPeaceful(desc string) bool {
	value, ok := firstCapture(peacefulRe, desc)
	return ok && strings.EqualFold(value, "true")
}

func scalarPattern(label string) *regexp.Regexp {
	if re, ok := scalarPatterns.Load(label); ok {
		return re.(*regexp.Regexp)
	}
	// QuoteMeta makes any label a valid literal, so MustCompile cannot panic here.
	re := regexp.MustCompile(regexp.QuoteMeta(boldSpan) + `.*?` + regexp.QuoteMeta(label) + `\s*</span>:\s*(.*?)<br`)
	actual, _ := scalarPatterns.LoadOrStore(label, re)
	return actual.(*regexp.Regexp)
}

func firstCapture(re *regexp.Regexp, desc string) (string, bool) {
	m := re.FindStringSubmatch(desc)
	if len(m) < 2 {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func splitKeepEmpty(value string) []string {
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
