package preprocess

import (
	"regexp"
	"strings"
)

// Spanish stopwords stripped from conversational queries. Data, not code: tune
// the sets without touching the retriever.
var queryStopwords = map[string]struct{}{}

// Request/filler tokens that mark a query as conversational.
var queryTriggers = map[string]struct{}{}

func init() {
	for _, w := range []string{
		// request words
		"dame", "busca", "quiero", "necesito", "encuentra", "muestra", "ver",
		"mostrar", "buscar", "encontrar", "traer", "obtener", "conseguir",
		// connectors and prepositions
		"sobre", "acerca", "relacionados", "relacionadas", "relacionado", "relacionada",
		"con", "de", "del", "la", "el", "los", "las", "un", "una", "unos", "unas",
		"para", "por", "en", "a", "al", "que", "se", "me", "te",
		// generic plurals
		"documentos", "archivos", "información", "datos", "cosas",
		// vague words
		"algo", "algún", "alguna", "algunos", "algunas", "todo", "todos", "todas",
		"tipo", "tipos", "clase", "clases",
	} {
		queryStopwords[w] = struct{}{}
	}
	for _, w := range []string{
		"dame", "busca", "quiero", "necesito", "encuentra", "muestra",
		"documentos", "relacionados",
	} {
		queryTriggers[w] = struct{}{}
	}
}

var rePunct = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)

// CleanQuery strips conversational framing from a query, leaving content words:
// "dame documentos sobre seguridad" becomes "seguridad". If cleaning would
// leave nothing, the original query is returned unchanged.
func CleanQuery(query string) string {
	lower := strings.ToLower(strings.TrimSpace(query))
	clean := rePunct.ReplaceAllString(lower, " ")

	var kept []string
	for _, w := range strings.Fields(clean) {
		if _, stop := queryStopwords[w]; stop {
			continue
		}
		if len([]rune(w)) <= 2 {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return strings.TrimSpace(query)
	}
	return strings.Join(kept, " ")
}

// ShouldCleanQuery reports whether a query looks conversational. Short one- or
// two-token queries pass through untouched; they are already specific.
func ShouldCleanQuery(query string) bool {
	lower := strings.ToLower(query)
	if len(strings.Fields(lower)) <= 2 {
		return false
	}
	for _, w := range strings.Fields(lower) {
		if _, ok := queryTriggers[w]; ok {
			return true
		}
	}
	return false
}

// PrepareQuery applies the cleaner when the heuristic says it helps.
func PrepareQuery(query string) string {
	if ShouldCleanQuery(query) {
		return CleanQuery(query)
	}
	return strings.TrimSpace(query)
}
