package tokenize

// phrases maps folded Vietnamese words and word pairs to the English terms
// the application code uses. Pairs are checked before single words.
var phrases = map[string]string{
	"sinh vien":  "student",
	"hoc sinh":   "student",
	"giao vien":  "teacher",
	"giang vien": "teacher",
	"lop hoc":    "class",
	"mon hoc":    "course",
	"khoa hoc":   "course",
	"diem danh":  "attendance",
	"dang nhap":  "login",
	"dang xuat":  "logout",
	"thong ke":   "statistics",
	"bao cao":    "report",
	"phan quyen": "authorization",
	"xep loai":   "classification",
	"co so":      "database",
	"du lieu":    "data",
	"kiem tra":   "validation",
	"giao dien":  "frontend",
	"lop":        "class",
	"diem":       "grade",
	"xuat":       "export",
	"nhap":       "import",
	"quyen":      "role",
	"hoc":        "study",
}

// translate rewrites Vietnamese vocabulary in a folded word sequence.
func translate(words []string) []string {
	out := make([]string, 0, len(words))
	for i := 0; i < len(words); i++ {
		if i+1 < len(words) {
			if en, ok := phrases[words[i]+" "+words[i+1]]; ok {
				out = append(out, en)
				i++
				continue
			}
		}
		if en, ok := phrases[words[i]]; ok {
			out = append(out, en)
			continue
		}
		out = append(out, words[i])
	}
	return out
}

// stopWords are dropped after folding and translation. They cover English
// question words, folded Vietnamese function words and keywords that
// appear in nearly every source file.
var stopWords = func() map[string]struct{} {
	words := []string{
		// English
		"the", "is", "are", "was", "were", "be", "been", "an", "and", "or", "of", "to",
		"in", "on", "at", "by", "for", "with", "from", "as", "it", "its", "this", "that",
		"these", "those", "how", "what", "where", "when", "which", "who", "why", "does",
		"do", "did", "can", "could", "should", "would", "will", "there", "here", "me",
		"my", "we", "our", "you", "your", "about", "into", "show", "tell", "explain",
		"please", "work", "works", "use", "used", "get",
		// Vietnamese (folded)
		"la", "cua", "va", "cac", "nhung", "cho", "trong", "duoc", "co", "khong", "nao",
		"gi", "the", "lam", "sao", "nhu", "bao", "nhieu", "mot", "nay", "do", "thi",
		"de", "ve", "voi", "tu", "den", "khi", "hay", "cach", "giup", "toi",
		// Code keywords
		"var", "let", "const", "func", "function", "def", "return", "if", "else",
		"while", "public", "private", "protected", "static", "void", "new", "using",
		"namespace", "async", "await", "string", "int", "bool",
		"true", "false", "null", "nil", "this", "self",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
