package composer

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/ashureev/postlens/internal/domain"
)

// Notice is the fixed "no data" payload narrated when a search matched nothing.
type Notice struct {
	Message  string        `json:"message"`
	Keywords []string      `json:"keywords,omitempty"`
	Dates    []domain.Date `json:"dates,omitempty"`
}

// NoDataNotice describes an empty search for topic on dates.
func NoDataNotice(topic domain.Topic, dates []domain.Date) Notice {
	return Notice{
		Message:  "no data found for this topic and date",
		Keywords: Keywords(topic),
		Dates:    slices.Clone(dates),
	}
}

// Keywords flattens the strict groups and fallback keywords of topic into a
// sorted, duplicate-free list.
func Keywords(topic domain.Topic) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(k string) {
		k = strings.TrimSpace(k)
		if k == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for _, g := range topic.StrictGroups {
		for _, k := range g {
			add(k)
		}
	}
	for _, k := range topic.FallbackKeywords {
		add(k)
	}
	slices.Sort(out)
	return out
}

// DataContext is the narration system prompt for a non-empty result set.
func DataContext(lang Language, topic domain.Topic, summary Summary) (string, error) {
	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful and expert AI data analyst for a social media dashboard. Your primary language is %s, "+
		"but keep media-specific domain terms (likes, comments, post, views, engagement) in English.\n", lang.name())
	b.WriteString("You will be given a JSON object summarizing the data shown on the user's screen. " +
		"Analyze it to answer the user's question with precision.\n\n")
	b.WriteString("**CRITICAL INSTRUCTIONS:**\n")
	if kw := Keywords(topic); len(kw) > 0 {
		fmt.Fprintf(&b, "1. **CONTEXT AWARENESS:** The data has ALREADY been filtered for the topic(s): **%s**. "+
			"All data in the JSON is relevant. Frame your answers directly and confidently.\n", strings.Join(kw, ", "))
	} else {
		b.WriteString("1. **CONTEXT AWARENESS:** The data has been filtered by date only, not by a topic. " +
			"Summarize the key findings for the given date range.\n")
	}
	b.WriteString("2. **FORMATTING:** Use standard Markdown, especially `**text**` for bold. Do NOT use HTML tags.\n")
	b.WriteString("3. **DATA-DRIVEN:** Base your answer exclusively on the JSON. Refer to specific numbers and facts " +
		"without reciting the whole object. Sections listed under \"omitted\" are unavailable in this dataset.\n\n")
	b.WriteString("Here is the data for the user's current view:\n```json\n")
	b.Write(payload)
	b.WriteString("\n```\n\nBased only on the JSON above, answer the user's prompt and focus on what is important and interesting.")
	return b.String(), nil
}

// NoDataContext is the narration system prompt for an empty result set.
func NoDataContext(lang Language, prompt string, notice Notice) (string, error) {
	payload, err := json.Marshal(notice)
	if err != nil {
		return "", fmt.Errorf("marshal notice: %w", err)
	}
	topic := "all topics for the selected date"
	if len(notice.Keywords) > 0 {
		topic = "**" + strings.Join(notice.Keywords, ", ") + "**"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful AI data analyst. Your primary language is %s.\n", lang.name())
	fmt.Fprintf(&b, "**CRITICAL INSTRUCTION:** A search was just performed for %s based on the user's latest prompt (%q), "+
		"and it returned ZERO results.\n", topic, prompt)
	b.WriteString("Inform the user gracefully that no data could be found. Acknowledge the topic or date they asked for, " +
		"state that data for it is unavailable and suggest they try another date or topic. Do not invent any figures.\n")
	b.WriteString("Search notice: ")
	b.Write(payload)
	return b.String(), nil
}

// ChatterContext is the system prompt for conversational turns that carry
// no search.
func ChatterContext(lang Language) string {
	var b strings.Builder
	b.WriteString("You are a helpful and expert AI assistant for a social media data dashboard.\n")
	fmt.Fprintf(&b, "Your primary language is %s.\n", lang.name())
	b.WriteString("Answer the user's questions naturally, based on the conversation history.\n\n")
	b.WriteString("**YOUR CAPABILITIES IN THIS MODE:**\n")
	b.WriteString("- Answer general questions about yourself and what you can do.\n")
	b.WriteString("- Clarify previous analyses or points you made in the conversation.\n")
	b.WriteString("- Engage in polite conversation related to the dashboard's purpose.\n\n")
	b.WriteString("**CRITICAL RULES:**\n")
	b.WriteString("1. Do NOT perform new data searches, analyze new data or produce data summaries.\n")
	b.WriteString("2. If the user wants data on a new topic, guide them to ask a specific question with a topic and a date, " +
		"for example \"carikan data Prabowo tanggal 20 agustus\".\n")
	b.WriteString("3. Base your answers only on the conversation history. Do not invent data or analysis.\n")
	b.WriteString("4. Keep responses concise.\n")
	b.WriteString("5. Wrap any LaTeX in dollar signs: $...$ inline or $$...$$ for blocks.\n")
	return b.String()
}

// Conversation prepends the system context to the running message log.
func Conversation(system string, history []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(history)+1)
	out = append(out, domain.Message{Role: domain.RoleSystem, Content: system})
	return append(out, history...)
}
