package classifier

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy is the business knowledge handed to the classification model.
// Entity expansions live here, never in the matcher.
type Policy struct {
	Year       int         `yaml:"year"`
	Expansions []Expansion `yaml:"expansions"`
	Examples   []Example   `yaml:"examples"`
}

// Expansion tells the model to add related keywords whenever Entity appears.
type Expansion struct {
	Entity string   `yaml:"entity"`
	Add    []string `yaml:"add"`
}

// Example is one few-shot demonstration.
type Example struct {
	Title    string `yaml:"title"`
	Previous string `yaml:"previous,omitempty"`
	Current  string `yaml:"current"`
	Result   string `yaml:"result"`
}

// DefaultPolicy returns the built-in policy for the given year.
func DefaultPolicy(year int) Policy {
	return Policy{
		Year: year,
		Expansions: []Expansion{
			{Entity: "Prabowo", Add: []string{"Presiden"}},
			{Entity: "Setneg", Add: []string{"Sekretariat Negara"}},
			{Entity: "Bahlil", Add: []string{"Bahlil Lahadalia"}},
			{Entity: "Menkeu Purbaya", Add: []string{"Menteri Keuangan Purbaya"}},
		},
		Examples: defaultExamples(year),
	}
}

func defaultExamples(year int) []Example {
	y := func(md string) string { return fmt.Sprintf("%d-%s", year, md) }
	return []Example{
		{
			Title:    "Date-only follow-up",
			Previous: "data prabowo 20 agustus",
			Current:  "kalau 23 agustus?",
			Result:   fmt.Sprintf(`{"type":"Follow-Up","dates":["%s"],"strict_groups":[],"fallback_keywords":[]}`, y("08-23")),
		},
		{
			Title:   "Entity expansion",
			Current: "data prabowo 18 agustus",
			Result:  fmt.Sprintf(`{"type":"New Topic","dates":["%s"],"strict_groups":[["prabowo"],["prabowo subianto"],["presiden"]],"fallback_keywords":["Prabowo","Prabowo Subianto","Presiden"]}`, y("08-18")),
		},
		{
			Title:   "Topic without a date",
			Current: "data tentang Bahlil",
			Result:  `{"type":"New Topic","dates":[],"strict_groups":[["Bahlil"],["Bahlil Lahadalia"]],"fallback_keywords":["Bahlil","Bahlil Lahadalia"]}`,
		},
		{
			Title:    "Month-only follow-up",
			Previous: "data tentang bahlil lahadalia",
			Current:  "full agustus",
			Result:   fmt.Sprintf(`{"type":"Follow-Up","dates":["%s","%s"],"strict_groups":[],"fallback_keywords":[]}`, y("08-01"), y("08-31")),
		},
		{
			Title:   "Topic with a month",
			Current: "data menkeu purbaya bulan mei",
			Result:  fmt.Sprintf(`{"type":"New Topic","dates":["%s","%s"],"strict_groups":[["Menteri Keuangan"],["Purbaya"]],"fallback_keywords":["Menkeu Purbaya","Purbaya","Menkeu"]}`, y("05-01"), y("05-31")),
		},
		{
			Title:    "Analysis request",
			Previous: "data surplus keuangan september 1-18",
			Current:  "analisis sentimen dan engagement nya dong",
			Result:   `{"type":"Follow-Up","dates":[],"strict_groups":[],"fallback_keywords":[]}`,
		},
		{
			Title:    "Conversational new topic",
			Previous: "data surplus keuangan",
			Current:  "coba cari soal stimulus keuangan",
			Result:   `{"type":"New Topic","dates":[],"strict_groups":[["stimulus keuangan"]],"fallback_keywords":["stimulus keuangan"]}`,
		},
		{
			Title:    "Clarifying a follow-up",
			Previous: "analisis sentimennya",
			Current:  "maksudnya dari data surplus keuangan tadi",
			Result:   `{"type":"Follow-Up","dates":[],"strict_groups":[],"fallback_keywords":[]}`,
		},
		{
			Title:   "Non-person topic with a month",
			Current: "Data ekonomi bulan Mei",
			Result:  fmt.Sprintf(`{"type":"New Topic","dates":["%s","%s"],"strict_groups":[["Ekonomi"],["Keuangan"]],"fallback_keywords":["Keuangan","Ekonomi"]}`, y("05-01"), y("05-31")),
		},
		{
			Title:    "Chatter after a clarification",
			Previous: "Mohon informasikan tanggal atau rentang tanggal spesifik yang Anda inginkan.",
			Current:  "iya pasti gaada sih",
			Result:   `{"type":"Chatter","dates":[],"strict_groups":[],"fallback_keywords":[]}`,
		},
		{
			Title:    "Thanks",
			Previous: "Berikut adalah analisis sentimen untuk data Prabowo.",
			Current:  "makasihh",
			Result:   `{"type":"Chatter","dates":[],"strict_groups":[],"fallback_keywords":[]}`,
		},
		{
			Title:    "Filler",
			Previous: "Selamat pagi! Ada yang bisa saya bantu?",
			Current:  "hmm",
			Result:   `{"type":"Chatter","dates":[],"strict_groups":[],"fallback_keywords":[]}`,
		},
	}
}

// LoadPolicy reads a YAML policy file. Fields left out of the file keep their
// default values; a zero year means the current year.
func LoadPolicy(path string, now time.Time) (Policy, error) {
	policy := DefaultPolicy(now.Year())
	if path == "" {
		return policy, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read classifier policy: %w", err)
	}
	var override Policy
	if err := yaml.Unmarshal(data, &override); err != nil {
		return policy, fmt.Errorf("parse classifier policy: %w", err)
	}
	if override.Year != 0 {
		policy.Year = override.Year
		policy.Examples = defaultExamples(override.Year)
	}
	if override.Expansions != nil {
		policy.Expansions = override.Expansions
	}
	if override.Examples != nil {
		policy.Examples = override.Examples
	}
	return policy, nil
}
