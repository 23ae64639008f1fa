package csvtap

import "strings"

const utf8BOM = "\uFEFF"

// normalizeHeaders trims header cells, strips a UTF-8 BOM from the first
// one and maps them through headerMap. Unmapped names are lower-cased with
// spaces turned into underscores.
func normalizeHeaders(h []string, headerMap map[string]string) []string {
	res := make([]string, len(h))
	for i, col := range h {
		c := strings.TrimSpace(col)
		if i == 0 {
			c = strings.TrimPrefix(c, utf8BOM)
		}
		if m, ok := headerMap[c]; ok {
			res[i] = m
			continue
		}
		res[i] = strings.ReplaceAll(strings.ToLower(c), " ", "_")
	}
	return res
}

// positions returns, for every wanted column, its index in headers.
func positions(headers, wanted []string) ([]int, []string) {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	pos := make([]int, len(wanted))
	var missing []string
	for i, w := range wanted {
		p, ok := idx[w]
		if !ok {
			p, ok = idx[strings.ReplaceAll(strings.ToLower(w), " ", "_")]
		}
		if !ok {
			missing = append(missing, w)
			continue
		}
		pos[i] = p
	}
	return pos, missing
}
