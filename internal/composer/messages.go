package composer

// Language selects the fixed-message catalog and the narration language.
type Language string

// Supported languages.
const (
	LangIndonesian Language = "id"
	LangEnglish    Language = "en"
)

// Catalog holds the fixed user-facing messages.
type Catalog struct {
	AskForDate      string
	NarrationFailed string
	ChatterFailed   string
}

var catalogs = map[Language]Catalog{
	LangIndonesian: {
		AskForDate:      "Tentu, saya bisa carikan datanya. Mohon informasikan tanggal atau rentang tanggal spesifik yang Anda inginkan.",
		NarrationFailed: "Maaf, terjadi kesalahan saat memproses permintaan Anda.",
		ChatterFailed:   "Maaf, ada sedikit kendala. Bisa diulangi lagi pertanyaannya?",
	},
	LangEnglish: {
		AskForDate:      "Sure, I can look that up. Please tell me the specific date or date range you are interested in.",
		NarrationFailed: "Sorry, something went wrong while processing your request.",
		ChatterFailed:   "Sorry, something went wrong. Could you ask that again?",
	},
}

// Messages returns the catalog for lang, falling back to Indonesian.
func Messages(lang Language) Catalog {
	if c, ok := catalogs[lang]; ok {
		return c
	}
	return catalogs[LangIndonesian]
}

func (l Language) name() string {
	if l == LangEnglish {
		return "English"
	}
	return "Indonesian (Bahasa Indonesia)"
}
