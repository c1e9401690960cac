package proxy

import "regexp"

var controlTagRe = regexp.MustCompile(`<([a-z_]+)>(.*?)</([a-z_]+)>`)

// parseControlTags extracts <key>value</key> fragments from a control
// channel payload, the same tagged-attribute convention every other
// control message in the platform uses.
func parseControlTags(buf string) map[string]string {
	out := make(map[string]string)
	for _, m := range controlTagRe.FindAllStringSubmatch(buf, -1) {
		if m[1] == m[3] {
			out[m[1]] = m[2]
		}
	}
	return out
}
